package reservations

import (
	"errors"
	"net/http"
	"strings"

	"tablebook/internal/shared/utils/response"
	"tablebook/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	service Service
	log     *logger.Logger
}

func NewController(service Service, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Controller{service: service, log: log}
}

// GetReservations handles POST /reservation/get
func (c *Controller) GetReservations(ctx *gin.Context) {
	var req GetReservationsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.fail(ctx, "Invalid request data", NewValidationError(err))
		return
	}

	list, err := c.service.GetReservations(ctx.Request.Context(), req.BusinessID)
	if err != nil {
		c.fail(ctx, "Failed to get reservations", err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Reservations retrieved successfully",
		NewReservationListResponse(req.BusinessID, list))
}

// GetCustomerHistory handles POST /reservation/history
func (c *Controller) GetCustomerHistory(ctx *gin.Context) {
	var req CustomerHistoryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.fail(ctx, "Invalid request data", NewValidationError(err))
		return
	}

	list, err := c.service.GetCustomerHistory(ctx.Request.Context(), req.CustomerUsername)
	if err != nil {
		c.fail(ctx, "Failed to get reservation history", err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Reservation history retrieved successfully",
		NewCustomerHistoryResponse(strings.TrimSpace(req.CustomerUsername), list))
}

// CreateReservation handles POST /reservation/create
func (c *Controller) CreateReservation(ctx *gin.Context) {
	var req CreateReservationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.fail(ctx, "Invalid request data", NewValidationError(err))
		return
	}
	if key := strings.TrimSpace(ctx.GetHeader("Idempotency-Key")); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}

	res, err := c.service.CreateReservation(ctx.Request.Context(), req)
	if err != nil {
		c.fail(ctx, "Failed to create reservation", err)
		return
	}

	response.RespondSuccess(ctx, http.StatusCreated, "Reservation created successfully", res.ToRecord())
}

// UpdateReservation handles PUT /reservation/update
func (c *Controller) UpdateReservation(ctx *gin.Context) {
	var req UpdateReservationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.fail(ctx, "Invalid request data", NewValidationError(err))
		return
	}

	res, err := c.service.UpdateReservation(ctx.Request.Context(), req.ReservationID, req.UpdateData)
	if err != nil {
		c.fail(ctx, "Failed to update reservation", err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Reservation updated successfully", res.ToRecord())
}

// DeleteReservation handles DELETE /reservation/delete/:id
func (c *Controller) DeleteReservation(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.service.DeleteReservation(ctx.Request.Context(), id); err != nil {
		c.fail(ctx, "Failed to delete reservation", err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Reservation deleted successfully", DeleteReservationResponse{ID: id})
}

func (c *Controller) GetReservation(ctx *gin.Context) {
	res, err := c.service.GetReservation(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.fail(ctx, "Failed to get reservation", err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Reservation retrieved successfully", res.ToRecord())
}

func (c *Controller) CancelReservation(ctx *gin.Context) {
	res, err := c.service.CancelReservation(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.fail(ctx, "Failed to cancel reservation", err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Reservation cancelled successfully", res.ToRecord())
}

func (c *Controller) CompleteReservation(ctx *gin.Context) {
	res, err := c.service.CompleteReservation(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.fail(ctx, "Failed to complete reservation", err)
		return
	}

	response.RespondSuccess(ctx, http.StatusOK, "Reservation completed successfully", res.ToRecord())
}

func (c *Controller) fail(ctx *gin.Context, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		c.log.LogHTTPError(ctx, err, status)
	}

	detail := response.ErrorDetail{Code: ErrorCode(err)}
	var verr *ValidationError
	if errors.As(err, &verr) {
		detail.Fields = verr.Fields
	}
	response.RespondError(ctx, status, message+": "+UserMessage(err), detail)
}

func statusFor(err error) int {
	return HTTPStatus(err)
}
