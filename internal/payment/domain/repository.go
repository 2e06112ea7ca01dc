package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	ListByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) ([]Payment, error)
	FindSucceededByBooking(ctx context.Context, db *gorm.DB, bookingID snowflake.ID) (*Payment, error)

	// FindByProviderRef matches on session, payment intent or charge id.
	FindByProviderRef(ctx context.Context, db *gorm.DB, ref string) (*Payment, error)

	// UpdateStatus guards on the current status so concurrent writers
	// lose cleanly, mirroring the booking lifecycle updates.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, updatedAt time.Time) (bool, error)

	// ApplyRefund writes the refund columns guarded on the status and
	// refunded total the caller read, so only one of two concurrent
	// refunds lands.
	ApplyRefund(ctx context.Context, db *gorm.DB, payment *Payment, fromStatus Status, fromRefundCents int64) (bool, error)

	Update(ctx context.Context, db *gorm.DB, payment *Payment) error
}
