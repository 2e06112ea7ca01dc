package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Method string

const (
	MethodCard Method = "CARD"
	MethodCash Method = "CASH"
)

type Status string

const (
	StatusPending              Status = "PENDING"
	StatusProcessing           Status = "PROCESSING"
	StatusRequiresConfirmation Status = "REQUIRES_CONFIRMATION"
	StatusSucceeded            Status = "SUCCEEDED"
	StatusFailed               Status = "FAILED"
	StatusCancelled            Status = "CANCELLED"
	StatusRefunded             Status = "REFUNDED"
	StatusPartiallyRefunded    Status = "PARTIALLY_REFUNDED"
	StatusDisputed             Status = "DISPUTED"
)

var allowedTransitions = map[Status][]Status{
	StatusPending:              {StatusProcessing, StatusRequiresConfirmation, StatusFailed, StatusCancelled},
	StatusProcessing:           {StatusSucceeded, StatusFailed, StatusCancelled},
	StatusRequiresConfirmation: {StatusSucceeded, StatusFailed, StatusCancelled},
	StatusSucceeded:            {StatusRefunded, StatusPartiallyRefunded, StatusDisputed},
}

func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Payment struct {
	ID                snowflake.ID `json:"id"`
	BookingID         snowflake.ID `json:"booking_id"`
	CustomerID        snowflake.ID `json:"customer_id"`
	AmountCents       int64        `json:"amount_cents"`
	Currency          string       `json:"currency"`
	Method            Method       `json:"method"`
	Status            Status       `json:"status"`
	SessionID         string       `json:"-"`
	ChargeID          string       `json:"-"`
	PaymentIntentID   string       `json:"-"`
	TransactionID     string       `json:"transaction_id"`
	RefundAmountCents int64        `json:"refund_amount_cents"`
	RefundReason      string       `json:"refund_reason,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	PaidAt            *time.Time   `json:"paid_at,omitempty"`
	RefundedAt        *time.Time   `json:"refunded_at,omitempty"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeRefunded         = "refunded"
	EventTypeDisputed         = "disputed"
)

// PaymentEvent is the canonical payment event parsed by gateways.
type PaymentEvent struct {
	Provider            string
	ProviderEventID     string
	ProviderPaymentID   string
	ProviderPaymentType string
	ProviderIntentID    string
	Type                string
	Amount              int64
	Currency            string
	Reason              string
	OccurredAt          time.Time
	RawPayload          []byte
}

var (
	ErrNotFound         = errors.New("payment_not_found")
	ErrInvalidAmount    = errors.New("invalid_payment_amount")
	ErrInvalidMethod    = errors.New("invalid_payment_method")
	ErrAlreadyPaid      = errors.New("booking_already_paid")
	ErrInvalidState     = errors.New("invalid_payment_state")
	ErrRefundExceeds    = errors.New("refund_exceeds_amount")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")

	// ErrEventIgnored marks event kinds the platform does not act on.
	// Deliveries carrying them are acknowledged, never retried.
	ErrEventIgnored = errors.New("event_ignored")

	// ErrDuplicateSuccess marks a success event for a payment that is
	// already settled. The delivery is acknowledged as processed.
	ErrDuplicateSuccess = errors.New("duplicate_success")
)
