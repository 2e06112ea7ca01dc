package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type CreatePaymentRequest struct {
	BookingID snowflake.ID `json:"booking_id,string" binding:"required"`
	Method    Method       `json:"method" binding:"required"`
}

// CreatePaymentResult carries the checkout URL for card payments.
// Cash payments have none and wait for staff confirmation.
type CreatePaymentResult struct {
	Payment     Payment `json:"payment"`
	CheckoutURL string  `json:"checkout_url,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreatePaymentRequest) (CreatePaymentResult, error)
	Get(ctx context.Context, id snowflake.ID) (Payment, error)
	ListByBooking(ctx context.Context, bookingID snowflake.ID) ([]Payment, error)
	Confirm(ctx context.Context, id snowflake.ID) (Payment, error)
	Cancel(ctx context.Context, id snowflake.ID) (Payment, error)
	Refund(ctx context.Context, id snowflake.ID, amountCents int64, reason string) (Payment, error)

	// ApplyEvent folds a canonical provider event into the matching
	// payment. ErrDuplicateSuccess means the payment was already
	// settled and the delivery should be acknowledged as done.
	ApplyEvent(ctx context.Context, event *PaymentEvent) error
}
