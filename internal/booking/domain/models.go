package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/serene/internal/catalog/domain"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// allowedTransitions is the single source of truth for the booking
// lifecycle. Terminal states have no outgoing edges.
var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Booking occupies a half-open interval [StartTime, EndTime) on the
// salon timeline. Times are stored in UTC.
type Booking struct {
	ID              snowflake.ID `json:"id"`
	CustomerID      snowflake.ID `json:"customer_id"`
	StartTime       time.Time    `json:"start_time"`
	EndTime         time.Time    `json:"end_time"`
	Status          Status       `json:"status"`
	TotalDuration   int          `json:"total_duration_minutes" gorm:"column:total_duration_minutes"`
	TotalPriceCents int64        `json:"total_price_cents"`
	Currency        string       `json:"currency"`
	Notes           string       `json:"notes,omitempty"`
	CalendarEventID string       `json:"-"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`

	Services []BookedService `json:"services" gorm:"-"`
}

func (Booking) TableName() string { return "bookings" }

// BookedService snapshots the catalog row at booking time so later
// price or duration edits never rewrite history.
type BookedService struct {
	BookingID       snowflake.ID `json:"-"`
	ServiceID       snowflake.ID `json:"service_id"`
	Name            string       `json:"name"`
	DurationMinutes int          `json:"duration_minutes"`
	PriceCents      int64        `json:"price_cents"`
}

func (BookedService) TableName() string { return "booking_services" }

// Totals is the derived cost and length of a service set.
type Totals struct {
	DurationMinutes int
	PriceCents      int64
}

func ComputeTotals(services []catalogdomain.Service) Totals {
	var t Totals
	for _, svc := range services {
		t.DurationMinutes += svc.DurationMinutes
		t.PriceCents += svc.PriceCents
	}
	return t
}

// ValidatedBooking is the output of the validation pipeline: a fully
// resolved, conflict-free candidate ready to be persisted. It is a
// value snapshot and is never mutated after construction.
type ValidatedBooking struct {
	CustomerID snowflake.ID
	StartTime  time.Time
	EndTime    time.Time
	Totals     Totals
	Currency   string
	Notes      string
	Services   []BookedService
}
