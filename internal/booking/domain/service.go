package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound            = errors.New("booking_not_found")
	ErrEmptyServiceSet     = errors.New("empty_service_set")
	ErrInvalidStartTime    = errors.New("invalid_start_time")
	ErrTimeSlotUnavailable = errors.New("time_slot_unavailable")
	ErrInvalidTransition   = errors.New("invalid_booking_transition")
)

// SlotConflictError carries the booking that already occupies the
// requested interval. errors.Is(err, ErrTimeSlotUnavailable) matches.
type SlotConflictError struct {
	ConflictingID snowflake.ID
}

func (e *SlotConflictError) Error() string {
	if e.ConflictingID == 0 {
		return "time_slot_unavailable"
	}
	return fmt.Sprintf("time_slot_unavailable: conflicts with booking %d", e.ConflictingID)
}

func (e *SlotConflictError) Is(target error) bool {
	return target == ErrTimeSlotUnavailable
}

type CreateBookingRequest struct {
	CustomerID snowflake.ID   `json:"customer_id,string" binding:"required"`
	ServiceIDs []snowflake.ID `json:"service_ids" binding:"required"`
	StartTime  time.Time      `json:"start_time" binding:"required"`
	Notes      string         `json:"notes"`
}

type Service interface {
	Create(ctx context.Context, req CreateBookingRequest) (Booking, error)
	Get(ctx context.Context, id snowflake.ID) (Booking, error)
	ListByCustomer(ctx context.Context, customerID snowflake.ID) ([]Booking, error)
	Confirm(ctx context.Context, id snowflake.ID) (Booking, error)
	Cancel(ctx context.Context, id snowflake.ID) (Booking, error)
	Complete(ctx context.Context, id snowflake.ID) (Booking, error)
}
