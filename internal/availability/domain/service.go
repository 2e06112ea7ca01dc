package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateSlotRequest struct {
	StartTime   time.Time
	EndTime     time.Time
	Description string
	Available   bool
}

type UpdateSlotRequest struct {
	ID          snowflake.ID
	StartTime   time.Time
	EndTime     time.Time
	Description string
	Available   bool
}

type Service interface {
	Create(ctx context.Context, req CreateSlotRequest) (Slot, error)
	Update(ctx context.Context, req UpdateSlotRequest) (Slot, error)
	Delete(ctx context.Context, id snowflake.ID) error
	ListByDate(ctx context.Context, date time.Time) ([]Slot, error)
	ListByRange(ctx context.Context, from, to time.Time) ([]Slot, error)
}

var (
	ErrNotFound        = errors.New("slot_not_found")
	ErrInvalidRange    = errors.New("invalid_time_range")
	ErrDurationTooLong = errors.New("slot_duration_too_long")
	ErrSlotConflict    = errors.New("slot_conflict")
)
