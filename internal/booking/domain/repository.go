package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/serene/internal/schedule"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertWithConflictCheck re-runs the overlap query and inserts the
	// booking with its service snapshot in one transaction, so a slot
	// cannot be double booked between validation and persistence.
	InsertWithConflictCheck(ctx context.Context, db *gorm.DB, booking *Booking) error

	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]Booking, error)

	// ListActiveIntervals returns the non-cancelled bookings overlapping
	// [from, to) as bare intervals for conflict detection.
	ListActiveIntervals(ctx context.Context, db *gorm.DB, from, to time.Time) ([]schedule.Interval, error)

	// UpdateStatus moves a booking from one status to another. The
	// guard on the current status makes concurrent transitions lose
	// cleanly: the second writer sees zero rows affected.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, updatedAt time.Time) (bool, error)

	SetCalendarEventID(ctx context.Context, db *gorm.DB, id snowflake.ID, eventID string) error
}
