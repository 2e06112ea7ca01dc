package notification

import (
	"context"
	"time"
)

// BookingConfirmation is the customer-facing summary sent after a booking
// becomes durable or confirmed.
type BookingConfirmation struct {
	RecipientEmail string
	RecipientName  string
	StartTime      time.Time
	EndTime        time.Time
	ServiceNames   []string
	TotalCents     int64
	Currency       string
}

type PaymentReceipt struct {
	RecipientEmail string
	RecipientName  string
	AmountCents    int64
	Currency       string
	PaidAt         time.Time
}

type Provider interface {
	SendBookingConfirmation(ctx context.Context, confirmation BookingConfirmation) error
	SendPaymentReceipt(ctx context.Context, receipt PaymentReceipt) error
}

type NoOpProvider struct{}

func (NoOpProvider) SendBookingConfirmation(ctx context.Context, confirmation BookingConfirmation) error {
	return nil
}

func (NoOpProvider) SendPaymentReceipt(ctx context.Context, receipt PaymentReceipt) error {
	return nil
}
