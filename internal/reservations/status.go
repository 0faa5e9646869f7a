package reservations

type Status string

const (
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// IsValid checks if the reservation status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// IsActive reports whether the reservation still holds its table
func (s Status) IsActive() bool {
	return s == StatusActive
}

// CanTransitionTo enforces Active → {Completed, Cancelled}; nothing leaves a final status
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusActive && (next == StatusCompleted || next == StatusCancelled)
}

type SlotType string

const (
	SlotCasual     SlotType = "casual"
	SlotFineDining SlotType = "fine_dining"
	SlotBuffet     SlotType = "buffet"
)

func (t SlotType) IsValid() bool {
	switch t {
	case SlotCasual, SlotFineDining, SlotBuffet:
		return true
	}
	return false
}
