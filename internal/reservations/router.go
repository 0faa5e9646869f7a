package reservations

import (
	"github.com/gin-gonic/gin"
)

// SetupReservationRoutes configures all reservation routes
func SetupReservationRoutes(rg *gin.RouterGroup, controller *Controller) {
	reservations := rg.Group("/reservation")
	{
		reservations.POST("/get", controller.GetReservations)              // POST   /api/v1/reservation/get
		reservations.POST("/history", controller.GetCustomerHistory)       // POST   /api/v1/reservation/history
		reservations.POST("/create", controller.CreateReservation)         // POST   /api/v1/reservation/create
		reservations.PUT("/update", controller.UpdateReservation)          // PUT    /api/v1/reservation/update
		reservations.DELETE("/delete/:id", controller.DeleteReservation)   // DELETE /api/v1/reservation/delete/:id
		reservations.GET("/:id", controller.GetReservation)                // GET    /api/v1/reservation/:id
		reservations.POST("/:id/cancel", controller.CancelReservation)     // POST   /api/v1/reservation/:id/cancel
		reservations.POST("/:id/complete", controller.CompleteReservation) // POST   /api/v1/reservation/:id/complete
	}
}

// Route definitions for reference:
//
// LISTING
// POST   /api/v1/reservation/get          - All reservations of a business
// Request body: { "business_id": "..." }
// POST   /api/v1/reservation/history      - A registered customer's bookings, latest first
// Request body: { "customer_username": "..." }
//
// COMMANDS
// POST   /api/v1/reservation/create       - Book a table (Idempotency-Key header optional)
// PUT    /api/v1/reservation/update       - { "reservation_id": "...", "update_data": {...} }
// POST   /api/v1/reservation/:id/cancel   - Cancel, only more than 12h before start
// POST   /api/v1/reservation/:id/complete - Mark a seating finished
// DELETE /api/v1/reservation/delete/:id   - Remove a reservation for good
//
// Every successful command is pushed to /ws/reservations subscribers of the business.
