package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

type CheckoutRequest struct {
	PaymentID     snowflake.ID
	BookingID     snowflake.ID
	AmountCents   int64
	Currency      string
	CustomerEmail string
	Description   string
}

type CheckoutSession struct {
	SessionID       string
	PaymentIntentID string
	URL             string
}

type RefundRequest struct {
	PaymentIntentID string
	ChargeID        string
	AmountCents     int64
	Reason          string
}

type Refund struct {
	ID          string
	AmountCents int64
}

// Gateway is one payment provider. Verify and Parse handle inbound
// webhooks, the rest drive outbound calls.
type Gateway interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	CreateRefund(ctx context.Context, req RefundRequest) (Refund, error)
	ExpireSession(ctx context.Context, sessionID string) error
}
