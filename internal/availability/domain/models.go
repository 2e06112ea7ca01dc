package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Slot is an administrator-declared open window on the salon calendar.
// Slots advertise availability to customers; they are advisory and distinct
// from the booking timeline, which is owned by the booking module.
type Slot struct {
	ID          snowflake.ID `json:"id"`
	SlotDate    time.Time    `json:"slot_date"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time"`
	Description string       `json:"description"`
	Available   bool         `json:"available"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (Slot) TableName() string { return "availability_slots" }

func (s Slot) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}
