package reservations

import "tablebook/pkg/feed"

type ReservationListResponse struct {
	BusinessID   string             `json:"business_id"`
	Count        int                `json:"count"`
	Reservations []feed.Reservation `json:"reservations"`
}

type DeleteReservationResponse struct {
	ID string `json:"id"`
}

type CustomerHistoryResponse struct {
	CustomerUsername string             `json:"customer_username"`
	Count            int                `json:"count"`
	Reservations     []feed.Reservation `json:"reservations"`
}

func NewCustomerHistoryResponse(username string, list []Reservation) CustomerHistoryResponse {
	return CustomerHistoryResponse{
		CustomerUsername: username,
		Count:            len(list),
		Reservations:     ToRecords(list),
	}
}

func NewReservationListResponse(businessID string, list []Reservation) ReservationListResponse {
	return ReservationListResponse{
		BusinessID:   businessID,
		Count:        len(list),
		Reservations: ToRecords(list),
	}
}
