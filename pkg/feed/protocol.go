// Package feed holds the reservation feed wire protocol, the client-side
// reservation cache, and a WebSocket client that keeps the cache in sync.
package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Client → server commands
const (
	EventGetReservations     = "getReservations"
	EventCreateReservation   = "createReservation"
	EventUpdateReservation   = "updateReservation"
	EventDeleteReservation   = "deleteReservation"
	EventCancelReservation   = "cancelReservation"
	EventCompleteReservation = "completeReservation"
)

// Server → client events
const (
	EventAck                = "ack"
	EventReservationsData   = "reservationsData"
	EventReservationAdded   = "reservationAdded"
	EventReservationUpdated = "reservationUpdated"
	EventReservationDeleted = "reservationDeleted"
	EventReservationsError  = "reservationsError"
)

// Envelope is one WebSocket frame. Seq orders change events within one business channel
// and tags snapshots with the channel position they were taken at.
type Envelope struct {
	Event string          `json:"event"`
	AckID string          `json:"ack_id,omitempty"`
	Seq   uint64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Reservation is the wire form of a reservation record
type Reservation struct {
	ID               string    `json:"id"`
	BusinessID       string    `json:"business_id"`
	TableID          string    `json:"table_id"`
	TableNumber      int       `json:"table_number"`
	FloorName        string    `json:"floor_name,omitempty"`
	CustomerUsername string    `json:"customer_username,omitempty"`
	CustomerName     string    `json:"customer_name,omitempty"`
	CustomerNumber   string    `json:"customer_number,omitempty"`
	GroupSize        int       `json:"group_size"`
	SlotType         string    `json:"slot_type"`
	Date             string    `json:"date"`
	StartTime        string    `json:"start_time"`
	EndTime          string    `json:"end_time"`
	Status           string    `json:"status"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Snapshot is the reservationsData payload
type Snapshot struct {
	Success      bool          `json:"success"`
	Reservations []Reservation `json:"reservations"`
	Message      string        `json:"message,omitempty"`
}

// Deleted is the reservationDeleted payload
type Deleted struct {
	ID string `json:"id"`
}

// Ack answers a command that carried an ack_id
type Ack struct {
	Success      bool          `json:"success"`
	Reservation  *Reservation  `json:"reservation,omitempty"`
	Reservations []Reservation `json:"reservations,omitempty"`
	Message      string        `json:"message,omitempty"`
	Code         string        `json:"code,omitempty"`
}

// Event is a confirmed change published on a business channel
type Event struct {
	Type   string       `json:"type"`
	Record *Reservation `json:"record,omitempty"`
	ID     string       `json:"id,omitempty"`
}

func Created(r Reservation) Event { return Event{Type: EventReservationAdded, Record: &r, ID: r.ID} }
func Updated(r Reservation) Event { return Event{Type: EventReservationUpdated, Record: &r, ID: r.ID} }
func Removed(id string) Event     { return Event{Type: EventReservationDeleted, ID: id} }

// Envelope renders the event as the frame subscribers receive
func (e Event) Envelope(seq uint64) (Envelope, error) {
	var payload interface{}
	switch e.Type {
	case EventReservationAdded, EventReservationUpdated:
		if e.Record == nil {
			return Envelope{}, fmt.Errorf("%s event without record", e.Type)
		}
		payload = e.Record
	case EventReservationDeleted:
		payload = Deleted{ID: e.ID}
	default:
		return Envelope{}, fmt.Errorf("unknown event type %q", e.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", e.Type, err)
	}
	return Envelope{Event: e.Type, Seq: seq, Data: data}, nil
}

// NewEnvelope marshals payload into a frame
func NewEnvelope(event, ackID string, seq uint64, payload interface{}) (Envelope, error) {
	env := Envelope{Event: event, AckID: ackID, Seq: seq}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s: %w", event, err)
		}
		env.Data = data
	}
	return env, nil
}
