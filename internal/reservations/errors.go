package reservations

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrConflict               = errors.New("reservation conflict")
	ErrNotFound               = errors.New("reservation not found")
	ErrUpdateNotAllowed       = errors.New("update not allowed")
	ErrCancellationNotAllowed = errors.New("cancellation not allowed")
	ErrStoreUnavailable       = errors.New("reservation store unavailable")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrStaleReservation       = errors.New("reservation was modified concurrently")
	ErrRequestInProgress      = errors.New("a request with this idempotency key is still in progress")

	ErrTableNotFound = fmt.Errorf("%w: table not found", ErrValidation)
	ErrTableChanged  = fmt.Errorf("%w: table was changed on the floor plan, try again", ErrStaleReservation)
)

// ValidationError carries per-field messages for malformed input
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Message: "invalid " + field, Fields: map[string]string{field: msg}}
}

// InvalidField reports one bad input field
func InvalidField(field, msg string) error {
	return invalid(field, msg)
}

// NewValidationError converts validator output into a ValidationError
func NewValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Message: "malformed request: " + err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeTag(fe)
	}
	return &ValidationError{Message: "missing or invalid fields", Fields: fields}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when " + fe.Param() + " is empty"
	case "uuid":
		return "must be a UUID"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

type ConflictReason string

const (
	ConflictOverlap  ConflictReason = "overlap"
	ConflictCapacity ConflictReason = "capacity"
)

// ConflictError names what blocked a booking
type ConflictError struct {
	Reason      ConflictReason
	TableNumber int
	Date        string
	Capacity    int
	PartySize   int
	Blocking    *Reservation
}

func (e *ConflictError) Error() string {
	if e.Reason == ConflictCapacity {
		return fmt.Sprintf("table %d seats %d guests, %d requested", e.TableNumber, e.Capacity, e.PartySize)
	}
	if e.Blocking == nil {
		return fmt.Sprintf("table %d is already reserved on %s", e.TableNumber, e.Date)
	}
	return fmt.Sprintf("table %d is already reserved on %s from %s to %s",
		e.TableNumber, e.Blocking.Date, e.Blocking.StartTime, e.Blocking.EndTime)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ErrorCode is the machine-readable code sent to clients
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUpdateNotAllowed):
		return "update_not_allowed"
	case errors.Is(err, ErrCancellationNotAllowed):
		return "cancellation_not_allowed"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrStaleReservation):
		return "stale_reservation"
	case errors.Is(err, ErrRequestInProgress):
		return "request_in_progress"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps a command error onto a response status
func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case "validation_error":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict", "invalid_transition", "stale_reservation", "request_in_progress":
		return http.StatusConflict
	case "update_not_allowed", "cancellation_not_allowed":
		return http.StatusUnprocessableEntity
	case "store_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the text shown to the person who issued the command
func UserMessage(err error) string {
	switch ErrorCode(err) {
	case "store_unavailable":
		return "The reservation service is temporarily unavailable. Please try again."
	case "internal_error":
		return "Something went wrong while processing the reservation."
	default:
		return err.Error()
	}
}
