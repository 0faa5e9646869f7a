package reservations

// CreateReservationRequest is the createReservation payload. end_date carries the
// reservation's calendar date; end_time may be left out.
type CreateReservationRequest struct {
	BusinessID  string `json:"business_id" binding:"required,uuid"`
	TableNumber int    `json:"table_number" binding:"required,min=1"`

	CustomerUsername string `json:"customer_username" binding:"required_without=CustomerName,max=100"`
	CustomerName     string `json:"customer_name" binding:"required_without=CustomerUsername,max=150"`
	CustomerNumber   string `json:"customer_number" binding:"required_without=CustomerUsername,max=30"`

	GroupSize int    `json:"group_size" binding:"required,min=1,max=100"`
	SlotType  string `json:"slot_type" binding:"required,oneof=casual fine_dining fine-dining buffet"`
	StartTime string `json:"start_time" binding:"required"`
	EndTime   string `json:"end_time"`
	EndDate   string `json:"end_date" binding:"required"`
	Status    string `json:"status" binding:"omitempty,oneof=Active"`

	IdempotencyKey string `json:"idempotency_key" binding:"omitempty,max=128"`
}

// UpdatePatch lists the fields to change; nil means unchanged
type UpdatePatch struct {
	TableNumber      *int    `json:"table_number,omitempty" binding:"omitempty,min=1"`
	CustomerUsername *string `json:"customer_username,omitempty" binding:"omitempty,max=100"`
	CustomerName     *string `json:"customer_name,omitempty" binding:"omitempty,max=150"`
	CustomerNumber   *string `json:"customer_number,omitempty" binding:"omitempty,max=30"`
	GroupSize        *int    `json:"group_size,omitempty" binding:"omitempty,min=1,max=100"`
	SlotType         *string `json:"slot_type,omitempty" binding:"omitempty,oneof=casual fine_dining fine-dining buffet"`
	EndDate          *string `json:"end_date,omitempty"`
	StartTime        *string `json:"start_time,omitempty"`
	EndTime          *string `json:"end_time,omitempty"`
	Status           *string `json:"status,omitempty" binding:"omitempty,oneof=Active Completed Cancelled"`
}

// IsEmpty reports a patch that changes nothing
func (p UpdatePatch) IsEmpty() bool {
	return p.TableNumber == nil && p.CustomerUsername == nil && p.CustomerName == nil &&
		p.CustomerNumber == nil && p.GroupSize == nil && p.SlotType == nil &&
		p.EndDate == nil && p.StartTime == nil && p.EndTime == nil && p.Status == nil
}

// onlyStatus reports a patch whose sole field is status
func (p UpdatePatch) onlyStatus() bool {
	if p.Status == nil {
		return false
	}
	rest := p
	rest.Status = nil
	return rest.IsEmpty()
}

// movesStart reports a patch that changes when the reservation begins
func (p UpdatePatch) movesStart() bool {
	return p.EndDate != nil || p.StartTime != nil
}

// movesSlot reports a patch that touches anything the availability check depends on
func (p UpdatePatch) movesSlot() bool {
	return p.TableNumber != nil || p.EndDate != nil || p.StartTime != nil ||
		p.EndTime != nil || p.GroupSize != nil
}

type UpdateReservationRequest struct {
	ReservationID string      `json:"reservation_id" binding:"required,uuid"`
	UpdateData    UpdatePatch `json:"update_data"`
}

type CustomerHistoryRequest struct {
	CustomerUsername string `json:"customer_username" binding:"required,max=100"`
}

type GetReservationsRequest struct {
	BusinessID string `json:"business_id" binding:"required,uuid"`
}

// ReservationIDRequest is the payload of deleteReservation, cancelReservation and completeReservation
type ReservationIDRequest struct {
	ReservationID string `json:"reservation_id" binding:"required,uuid"`
}
