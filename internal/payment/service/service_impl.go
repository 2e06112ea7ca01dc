package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/smallbiznis/serene/internal/booking/domain"
	"github.com/smallbiznis/serene/internal/clock"
	"github.com/smallbiznis/serene/internal/config"
	customerdomain "github.com/smallbiznis/serene/internal/customer/domain"
	"github.com/smallbiznis/serene/internal/notification"
	"github.com/smallbiznis/serene/internal/observability/metrics"
	"github.com/smallbiznis/serene/internal/payment/domain"
	"github.com/smallbiznis/serene/internal/payment/gateway"
	pkgdb "github.com/smallbiznis/serene/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       *config.PolicyHolder
	Repo         domain.Repository
	BookingSvc   bookingdomain.Service
	CustomerRepo customerdomain.Repository
	Gateways     *gateway.Registry
	Notifier     notification.Provider
	Metrics      *metrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *config.PolicyHolder
	repo         domain.Repository
	bookingSvc   bookingdomain.Service
	customerRepo customerdomain.Repository
	gateways     *gateway.Registry
	notifier     notification.Provider
	metrics      *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		repo:         p.Repo,
		bookingSvc:   p.BookingSvc,
		customerRepo: p.CustomerRepo,
		gateways:     p.Gateways,
		notifier:     p.Notifier,
		metrics:      p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePaymentRequest) (domain.CreatePaymentResult, error) {
	if req.Method != domain.MethodCard && req.Method != domain.MethodCash {
		return domain.CreatePaymentResult{}, domain.ErrInvalidMethod
	}

	booking, err := s.bookingSvc.Get(ctx, req.BookingID)
	if err != nil {
		return domain.CreatePaymentResult{}, err
	}
	if booking.Status == bookingdomain.StatusCancelled {
		return domain.CreatePaymentResult{}, domain.ErrInvalidState
	}
	if booking.TotalPriceCents <= 0 {
		return domain.CreatePaymentResult{}, domain.ErrInvalidAmount
	}

	settled, err := s.repo.FindSucceededByBooking(ctx, s.db, booking.ID)
	if err != nil {
		return domain.CreatePaymentResult{}, err
	}
	if settled != nil {
		return domain.CreatePaymentResult{}, domain.ErrAlreadyPaid
	}

	now := s.clock.Now()
	payment := domain.Payment{
		ID:          s.genID.Generate(),
		BookingID:   booking.ID,
		CustomerID:  booking.CustomerID,
		AmountCents: booking.TotalPriceCents,
		Currency:    booking.Currency,
		Method:      req.Method,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payment.TransactionID = fmt.Sprintf("txn_%s", payment.ID)

	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.CreatePaymentResult{}, domain.ErrAlreadyPaid
		}
		return domain.CreatePaymentResult{}, err
	}

	s.log.Info("payment created",
		zap.Int64("payment_id", int64(payment.ID)),
		zap.Int64("booking_id", int64(booking.ID)),
		zap.String("method", string(payment.Method)),
		zap.Int64("amount_cents", payment.AmountCents),
	)

	if req.Method == domain.MethodCash {
		return s.awaitCashConfirmation(ctx, payment)
	}
	return s.openCheckout(ctx, payment, booking)
}

func (s *Service) awaitCashConfirmation(ctx context.Context, payment domain.Payment) (domain.CreatePaymentResult, error) {
	now := s.clock.Now()
	moved, err := s.repo.UpdateStatus(ctx, s.db, payment.ID, domain.StatusPending, domain.StatusRequiresConfirmation, now)
	if err != nil {
		return domain.CreatePaymentResult{}, err
	}
	if !moved {
		return domain.CreatePaymentResult{}, domain.ErrInvalidState
	}
	payment.Status = domain.StatusRequiresConfirmation
	payment.UpdatedAt = now
	return domain.CreatePaymentResult{Payment: payment}, nil
}

func (s *Service) openCheckout(ctx context.Context, payment domain.Payment, booking bookingdomain.Booking) (domain.CreatePaymentResult, error) {
	gw, err := s.gateways.Get("stripe")
	if err != nil {
		return domain.CreatePaymentResult{}, err
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, booking.CustomerID)
	if err != nil {
		return domain.CreatePaymentResult{}, err
	}
	email := ""
	if customer != nil {
		email = customer.Email
	}

	checkoutCtx, cancel := context.WithTimeout(ctx, s.policy.Current().CheckoutTimeout())
	defer cancel()

	session, err := gw.CreateCheckoutSession(checkoutCtx, domain.CheckoutRequest{
		PaymentID:     payment.ID,
		BookingID:     booking.ID,
		AmountCents:   payment.AmountCents,
		Currency:      payment.Currency,
		CustomerEmail: email,
		Description:   fmt.Sprintf("Salon booking %s", booking.ID),
	})
	if err != nil {
		now := s.clock.Now()
		if _, ferr := s.repo.UpdateStatus(ctx, s.db, payment.ID, domain.StatusPending, domain.StatusFailed, now); ferr != nil {
			s.log.Error("marking payment failed after checkout error", zap.Error(ferr))
		}
		s.log.Warn("checkout session creation failed",
			zap.Int64("payment_id", int64(payment.ID)),
			zap.Error(err),
		)
		return domain.CreatePaymentResult{}, err
	}

	now := s.clock.Now()
	payment.SessionID = session.SessionID
	payment.PaymentIntentID = session.PaymentIntentID
	payment.Status = domain.StatusProcessing
	payment.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, &payment); err != nil {
		return domain.CreatePaymentResult{}, err
	}

	return domain.CreatePaymentResult{Payment: payment, CheckoutURL: session.URL}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *payment, nil
}

func (s *Service) ListByBooking(ctx context.Context, bookingID snowflake.ID) ([]domain.Payment, error) {
	if _, err := s.bookingSvc.Get(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.repo.ListByBooking(ctx, s.db, bookingID)
}

// Confirm settles a cash payment after the customer has paid at the
// counter.
func (s *Service) Confirm(ctx context.Context, id snowflake.ID) (domain.Payment, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.Status != domain.StatusRequiresConfirmation {
		return domain.Payment{}, domain.ErrInvalidState
	}
	return s.settle(ctx, payment)
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (domain.Payment, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if !domain.CanTransition(payment.Status, domain.StatusCancelled) {
		return domain.Payment{}, domain.ErrInvalidState
	}

	now := s.clock.Now()
	moved, err := s.repo.UpdateStatus(ctx, s.db, payment.ID, payment.Status, domain.StatusCancelled, now)
	if err != nil {
		return domain.Payment{}, err
	}
	if !moved {
		return domain.Payment{}, domain.ErrInvalidState
	}

	if payment.SessionID != "" {
		go s.expireSession(payment.SessionID)
	}

	payment.Status = domain.StatusCancelled
	payment.UpdatedAt = now
	return payment, nil
}

func (s *Service) Refund(ctx context.Context, id snowflake.ID, amountCents int64, reason string) (domain.Payment, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment.Status != domain.StatusSucceeded {
		return domain.Payment{}, domain.ErrInvalidState
	}

	remaining := payment.AmountCents - payment.RefundAmountCents
	if amountCents == 0 {
		amountCents = remaining
	}
	if amountCents < 0 || amountCents > remaining {
		return domain.Payment{}, domain.ErrRefundExceeds
	}

	// Claim the refund columns before talking to the gateway. The write
	// is guarded on the status and total the balance check read, so a
	// concurrent refund cannot be granted twice.
	updated, err := s.applyRefund(ctx, payment, amountCents, reason)
	if err != nil {
		return domain.Payment{}, err
	}

	if payment.Method == domain.MethodCard {
		gw, err := s.gateways.Get("stripe")
		if err != nil {
			s.revertRefund(ctx, updated, payment)
			return domain.Payment{}, err
		}
		refundCtx, cancel := context.WithTimeout(ctx, s.policy.Current().CheckoutTimeout())
		defer cancel()
		_, err = gw.CreateRefund(refundCtx, domain.RefundRequest{
			PaymentIntentID: payment.PaymentIntentID,
			ChargeID:        payment.ChargeID,
			AmountCents:     amountCents,
			Reason:          reason,
		})
		if err != nil {
			s.revertRefund(ctx, updated, payment)
			return domain.Payment{}, err
		}
	}

	return updated, nil
}

// applyRefund moves the refund bookkeeping forward in one guarded
// write. A lost guard means a concurrent refund won the row.
func (s *Service) applyRefund(ctx context.Context, payment domain.Payment, amountCents int64, reason string) (domain.Payment, error) {
	fromStatus := payment.Status
	fromRefund := payment.RefundAmountCents

	now := s.clock.Now()
	payment.RefundAmountCents += amountCents
	payment.RefundReason = reason
	payment.RefundedAt = &now
	payment.UpdatedAt = now
	if payment.RefundAmountCents >= payment.AmountCents {
		payment.Status = domain.StatusRefunded
	} else {
		payment.Status = domain.StatusPartiallyRefunded
	}

	moved, err := s.repo.ApplyRefund(ctx, s.db, &payment, fromStatus, fromRefund)
	if err != nil {
		return domain.Payment{}, err
	}
	if !moved {
		return domain.Payment{}, domain.ErrInvalidState
	}

	s.log.Info("payment refunded",
		zap.Int64("payment_id", int64(payment.ID)),
		zap.Int64("refund_amount_cents", amountCents),
		zap.String("status", string(payment.Status)),
	)
	return payment, nil
}

// revertRefund hands the row back after a gateway failure so the
// refund can be retried.
func (s *Service) revertRefund(ctx context.Context, claimed, original domain.Payment) {
	original.UpdatedAt = s.clock.Now()
	moved, err := s.repo.ApplyRefund(ctx, s.db, &original, claimed.Status, claimed.RefundAmountCents)
	if err != nil || !moved {
		s.log.Error("reverting refund claim after gateway failure failed",
			zap.Int64("payment_id", int64(original.ID)),
			zap.Error(err),
		)
	}
}

func (s *Service) ApplyEvent(ctx context.Context, event *domain.PaymentEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}

	payment, err := s.repo.FindByProviderRef(ctx, s.db, event.ProviderPaymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		if event.ProviderPaymentType == "payment_intent" {
			// The intent id is not stored until the checkout session
			// completes, and that session event settles the payment on
			// its own. An unmatched intent delivery is acknowledged so
			// the provider does not retry it forever.
			s.log.Info("unmatched payment intent event acknowledged",
				zap.String("provider_payment_id", event.ProviderPaymentID),
				zap.String("event_type", event.Type),
			)
			return domain.ErrEventIgnored
		}
		return domain.ErrNotFound
	}

	s.metrics.RecordPaymentEvent(ctx, event.Provider, event.Type)

	switch event.Type {
	case domain.EventTypePaymentSucceeded:
		if payment.Status == domain.StatusSucceeded {
			// Settled under an earlier event. Make sure the booking
			// reached CONFIRMED before acknowledging the duplicate.
			if err := s.confirmBooking(ctx, payment.BookingID); err != nil {
				return err
			}
			return domain.ErrDuplicateSuccess
		}
		if !domain.CanTransition(payment.Status, domain.StatusSucceeded) {
			return domain.ErrInvalidState
		}
		if event.ProviderPaymentType == "charge" {
			payment.ChargeID = event.ProviderPaymentID
		}
		if payment.PaymentIntentID == "" && event.ProviderIntentID != "" {
			// Sessions created without an intent get one on completion.
			payment.PaymentIntentID = event.ProviderIntentID
		}
		_, err := s.settle(ctx, *payment)
		return err

	case domain.EventTypePaymentFailed:
		if payment.Status == domain.StatusFailed {
			return nil
		}
		if !domain.CanTransition(payment.Status, domain.StatusFailed) {
			return domain.ErrInvalidState
		}
		moved, err := s.repo.UpdateStatus(ctx, s.db, payment.ID, payment.Status, domain.StatusFailed, s.clock.Now())
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidState
		}
		s.log.Info("payment failed",
			zap.Int64("payment_id", int64(payment.ID)),
			zap.String("reason", event.Reason),
		)
		return nil

	case domain.EventTypeRefunded:
		if payment.Status == domain.StatusRefunded {
			return nil
		}
		if payment.Status != domain.StatusSucceeded && payment.Status != domain.StatusPartiallyRefunded {
			return domain.ErrInvalidState
		}
		// The event carries the cumulative refunded total; the echo of
		// a refund this service initiated nets to zero.
		amount := event.Amount - payment.RefundAmountCents
		if amount <= 0 {
			return nil
		}
		_, err := s.applyRefund(ctx, *payment, amount, event.Reason)
		return err

	case domain.EventTypeDisputed:
		if payment.Status == domain.StatusDisputed {
			return nil
		}
		if !domain.CanTransition(payment.Status, domain.StatusDisputed) {
			return domain.ErrInvalidState
		}
		moved, err := s.repo.UpdateStatus(ctx, s.db, payment.ID, payment.Status, domain.StatusDisputed, s.clock.Now())
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrInvalidState
		}
		s.log.Warn("payment disputed",
			zap.Int64("payment_id", int64(payment.ID)),
			zap.String("reason", event.Reason),
		)
		return nil

	default:
		return domain.ErrEventIgnored
	}
}

// settle moves the payment to SUCCEEDED, stamps it, confirms the
// booking and mails a receipt.
func (s *Service) settle(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	now := s.clock.Now()
	moved, err := s.repo.UpdateStatus(ctx, s.db, payment.ID, payment.Status, domain.StatusSucceeded, now)
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			// Another payment for this booking settled first.
			return domain.Payment{}, domain.ErrAlreadyPaid
		}
		return domain.Payment{}, err
	}
	if !moved {
		current, err := s.repo.FindByID(ctx, s.db, payment.ID)
		if err != nil {
			return domain.Payment{}, err
		}
		if current != nil && current.Status == domain.StatusSucceeded {
			if err := s.confirmBooking(ctx, payment.BookingID); err != nil {
				return domain.Payment{}, err
			}
			return domain.Payment{}, domain.ErrDuplicateSuccess
		}
		return domain.Payment{}, domain.ErrInvalidState
	}

	payment.Status = domain.StatusSucceeded
	payment.PaidAt = &now
	payment.UpdatedAt = now
	if err := s.repo.Update(ctx, s.db, &payment); err != nil {
		return domain.Payment{}, err
	}

	s.log.Info("payment succeeded",
		zap.Int64("payment_id", int64(payment.ID)),
		zap.Int64("booking_id", int64(payment.BookingID)),
		zap.Int64("amount_cents", payment.AmountCents),
	)

	// The payment is settled either way, but a booking left behind is a
	// failure the caller must surface so the event can be redelivered.
	if err := s.confirmBooking(ctx, payment.BookingID); err != nil {
		return domain.Payment{}, err
	}
	go s.sendReceipt(payment)

	return payment, nil
}

// confirmBooking promotes the booking once its payment settles. A
// booking that already made it to CONFIRMED or COMPLETED is fine; any
// other outcome is an error.
func (s *Service) confirmBooking(ctx context.Context, bookingID snowflake.ID) error {
	_, err := s.bookingSvc.Confirm(ctx, bookingID)
	if err == nil {
		return nil
	}
	if errors.Is(err, bookingdomain.ErrInvalidTransition) {
		booking, gerr := s.bookingSvc.Get(ctx, bookingID)
		if gerr != nil {
			return gerr
		}
		if booking.Status == bookingdomain.StatusConfirmed || booking.Status == bookingdomain.StatusCompleted {
			return nil
		}
	}
	s.log.Warn("confirming booking after payment failed",
		zap.Int64("booking_id", int64(bookingID)),
		zap.Error(err),
	)
	return err
}

func (s *Service) sendReceipt(payment domain.Payment) {
	timeout := s.policy.Current().SideEffectTimeout()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	customer, err := s.customerRepo.FindByID(ctx, s.db, payment.CustomerID)
	if err != nil || customer == nil {
		s.log.Warn("loading customer for receipt failed",
			zap.Int64("payment_id", int64(payment.ID)),
			zap.Error(err),
		)
		return
	}

	paidAt := s.clock.Now()
	if payment.PaidAt != nil {
		paidAt = *payment.PaidAt
	}
	err = s.notifier.SendPaymentReceipt(ctx, notification.PaymentReceipt{
		RecipientName:  customer.FullName,
		RecipientEmail: customer.Email,
		AmountCents:    payment.AmountCents,
		Currency:       payment.Currency,
		PaidAt:         paidAt,
	})
	if err != nil {
		s.log.Warn("payment receipt email failed",
			zap.Int64("payment_id", int64(payment.ID)),
			zap.Error(err),
		)
	}
}

func (s *Service) expireSession(sessionID string) {
	gw, err := s.gateways.Get("stripe")
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.policy.Current().CheckoutTimeout())
	defer cancel()
	if err := gw.ExpireSession(ctx, sessionID); err != nil {
		s.log.Warn("expiring checkout session failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
