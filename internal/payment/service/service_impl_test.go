package service_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	bookingdomain "github.com/smallbiznis/serene/internal/booking/domain"
	bookingrepo "github.com/smallbiznis/serene/internal/booking/repository"
	bookingservice "github.com/smallbiznis/serene/internal/booking/service"
	"github.com/smallbiznis/serene/internal/calendar"
	catalogrepo "github.com/smallbiznis/serene/internal/catalog/repository"
	"github.com/smallbiznis/serene/internal/clock"
	"github.com/smallbiznis/serene/internal/config"
	customerrepo "github.com/smallbiznis/serene/internal/customer/repository"
	"github.com/smallbiznis/serene/internal/notification"
	"github.com/smallbiznis/serene/internal/observability/metrics"
	"github.com/smallbiznis/serene/internal/payment/domain"
	"github.com/smallbiznis/serene/internal/payment/gateway"
	paymentrepo "github.com/smallbiznis/serene/internal/payment/repository"
	paymentservice "github.com/smallbiznis/serene/internal/payment/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id BIGINT PRIMARY KEY,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS salon_services (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price_cents BIGINT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id BIGINT PRIMARY KEY,
			customer_id BIGINT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			total_duration_minutes INTEGER NOT NULL,
			total_price_cents BIGINT NOT NULL,
			currency TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			calendar_event_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS booking_services (
			booking_id BIGINT NOT NULL,
			service_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price_cents BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id BIGINT PRIMARY KEY,
			booking_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency TEXT NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			session_id TEXT,
			charge_id TEXT,
			payment_intent_id TEXT,
			transaction_id TEXT NOT NULL,
			refund_amount_cents BIGINT NOT NULL DEFAULT 0,
			refund_reason TEXT,
			created_at TIMESTAMP NOT NULL,
			paid_at TIMESTAMP,
			refunded_at TIMESTAMP,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS payments_booking_succeeded_idx
			ON payments (booking_id) WHERE status = 'SUCCEEDED'`,
	}
	for _, stmt := range stmts {
		db.Exec(stmt)
	}

	return db
}

type fakeGateway struct {
	mu          sync.Mutex
	checkoutErr error
	refundErr   error
	refunds     []domain.RefundRequest

	// emptyIntent mimics a checkout session created before the payment
	// intent exists.
	emptyIntent bool

	// refundEnter and refundGate, when set, let a test hold a refund
	// inside the gateway call.
	refundEnter chan struct{}
	refundGate  chan struct{}
}

func (g *fakeGateway) Provider() string { return "stripe" }

func (g *fakeGateway) Verify(context.Context, []byte, http.Header) error { return nil }

func (g *fakeGateway) Parse(context.Context, []byte) (*domain.PaymentEvent, error) {
	return nil, domain.ErrEventIgnored
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if g.checkoutErr != nil {
		return domain.CheckoutSession{}, g.checkoutErr
	}
	intentID := "pi_" + req.PaymentID.String()
	if g.emptyIntent {
		intentID = ""
	}
	return domain.CheckoutSession{
		SessionID:       "cs_" + req.PaymentID.String(),
		PaymentIntentID: intentID,
		URL:             "https://checkout.stripe.com/pay/cs_test",
	}, nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, req domain.RefundRequest) (domain.Refund, error) {
	if g.refundEnter != nil {
		g.refundEnter <- struct{}{}
		<-g.refundGate
	}
	if g.refundErr != nil {
		return domain.Refund{}, g.refundErr
	}
	g.mu.Lock()
	g.refunds = append(g.refunds, req)
	g.mu.Unlock()
	return domain.Refund{ID: "re_1", AmountCents: req.AmountCents}, nil
}

func (g *fakeGateway) ExpireSession(context.Context, string) error { return nil }

type fixture struct {
	db         *gorm.DB
	bookingSvc bookingdomain.Service
	paymentSvc domain.Service
	gateway    *fakeGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(22)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	holder, err := config.NewPolicyHolder()
	if err != nil {
		t.Fatalf("new policy holder: %v", err)
	}

	clk := clock.NewFakeClock(testNow)
	custRepo := customerrepo.Provide()
	noopMetrics := metrics.NewNoop()

	bookingSvc := bookingservice.New(bookingservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Policy:       holder,
		Repo:         bookingrepo.Provide(),
		CustomerRepo: custRepo,
		CatalogRepo:  catalogrepo.Provide(),
		Calendar:     calendar.NoOpProvider{},
		Notifier:     notification.NoOpProvider{},
		Metrics:      noopMetrics,
	})

	gw := &fakeGateway{}
	paymentSvc := paymentservice.New(paymentservice.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Policy:       holder,
		Repo:         paymentrepo.Provide(),
		BookingSvc:   bookingSvc,
		CustomerRepo: custRepo,
		Gateways:     gateway.NewRegistry(gw),
		Notifier:     notification.NoOpProvider{},
		Metrics:      noopMetrics,
	})

	return &fixture{db: db, bookingSvc: bookingSvc, paymentSvc: paymentSvc, gateway: gw}
}

func (f *fixture) seedBooking(t *testing.T) bookingdomain.Booking {
	t.Helper()
	ctx := context.Background()

	err := f.db.Exec(
		`INSERT INTO customers (id, full_name, email, created_at, updated_at) VALUES (1, 'Ada Lovelace', 'ada@example.com', ?, ?)`,
		testNow, testNow,
	).Error
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	err = f.db.Exec(
		`INSERT INTO salon_services (id, name, duration_minutes, price_cents, active, created_at, updated_at)
		 VALUES (10, 'haircut', 60, 3500, TRUE, ?, ?)`,
		testNow, testNow,
	).Error
	if err != nil {
		t.Fatalf("seed service: %v", err)
	}

	booking, err := f.bookingSvc.Create(ctx, bookingdomain.CreateBookingRequest{
		CustomerID: 1,
		ServiceIDs: []snowflake.ID{10},
		StartTime:  time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return booking
}

func TestCashPaymentFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCash,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if result.Payment.Status != domain.StatusRequiresConfirmation {
		t.Errorf("status = %s, want REQUIRES_CONFIRMATION", result.Payment.Status)
	}
	if result.Payment.AmountCents != 3500 {
		t.Errorf("amount = %d, want 3500", result.Payment.AmountCents)
	}
	if result.CheckoutURL != "" {
		t.Errorf("cash payment should have no checkout url")
	}

	settled, err := f.paymentSvc.Confirm(ctx, result.Payment.ID)
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	if settled.Status != domain.StatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", settled.Status)
	}
	if settled.PaidAt == nil {
		t.Error("paid_at should be set")
	}

	reloaded, err := f.bookingSvc.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if reloaded.Status != bookingdomain.StatusConfirmed {
		t.Errorf("booking status = %s, want CONFIRMED", reloaded.Status)
	}
}

func TestCardPaymentFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCard,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if result.Payment.Status != domain.StatusProcessing {
		t.Errorf("status = %s, want PROCESSING", result.Payment.Status)
	}
	if result.CheckoutURL == "" {
		t.Error("card payment should return a checkout url")
	}

	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		Provider:            "stripe",
		ProviderEventID:     "evt_1",
		ProviderPaymentID:   result.Payment.SessionID,
		ProviderPaymentType: "checkout_session",
		Type:                domain.EventTypePaymentSucceeded,
		Amount:              3500,
		Currency:            "USD",
		OccurredAt:          testNow,
	})
	if err != nil {
		t.Fatalf("apply success event: %v", err)
	}

	settled, err := f.paymentSvc.Get(ctx, result.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if settled.Status != domain.StatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", settled.Status)
	}

	reloaded, err := f.bookingSvc.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if reloaded.Status != bookingdomain.StatusConfirmed {
		t.Errorf("booking status = %s, want CONFIRMED", reloaded.Status)
	}

	// The same success under a new event id is a clean duplicate.
	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_2",
		ProviderPaymentID: result.Payment.SessionID,
		Type:              domain.EventTypePaymentSucceeded,
	})
	if !errors.Is(err, domain.ErrDuplicateSuccess) {
		t.Fatalf("err = %v, want ErrDuplicateSuccess", err)
	}
}

func TestCheckoutFailureMarksPaymentFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)
	f.gateway.checkoutErr = errors.New("stripe_request_failed")

	_, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCard,
	})
	if err == nil {
		t.Fatal("expected checkout error")
	}

	payments, err := f.paymentSvc.ListByBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 || payments[0].Status != domain.StatusFailed {
		t.Fatalf("payments = %+v, want one FAILED", payments)
	}
}

func TestSecondPaymentOnPaidBookingRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCash,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if _, err := f.paymentSvc.Confirm(ctx, result.Payment.ID); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}

	_, err = f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCash,
	})
	if !errors.Is(err, domain.ErrAlreadyPaid) {
		t.Fatalf("err = %v, want ErrAlreadyPaid", err)
	}
}

func TestFailedEventTransitionsPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCard,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_fail",
		ProviderPaymentID: result.Payment.PaymentIntentID,
		Type:              domain.EventTypePaymentFailed,
		Reason:            "card declined",
	})
	if err != nil {
		t.Fatalf("apply failed event: %v", err)
	}

	payment, err := f.paymentSvc.Get(ctx, result.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != domain.StatusFailed {
		t.Errorf("status = %s, want FAILED", payment.Status)
	}

	// Replayed failure is a no-op.
	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		ProviderPaymentID: result.Payment.PaymentIntentID,
		Type:              domain.EventTypePaymentFailed,
	})
	if err != nil {
		t.Fatalf("replay failed event: %v", err)
	}
}

func TestRefunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCard,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		ProviderEventID:   "evt_1",
		ProviderPaymentID: result.Payment.SessionID,
		Type:              domain.EventTypePaymentSucceeded,
	})
	if err != nil {
		t.Fatalf("settle payment: %v", err)
	}

	partial, err := f.paymentSvc.Refund(ctx, result.Payment.ID, 1000, "late cancellation")
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if partial.Status != domain.StatusPartiallyRefunded {
		t.Errorf("status = %s, want PARTIALLY_REFUNDED", partial.Status)
	}
	if partial.RefundAmountCents != 1000 {
		t.Errorf("refund amount = %d, want 1000", partial.RefundAmountCents)
	}
	if len(f.gateway.refunds) != 1 {
		t.Fatalf("gateway refunds = %d, want 1", len(f.gateway.refunds))
	}

	if _, err := f.paymentSvc.Refund(ctx, result.Payment.ID, 10000, ""); !errors.Is(err, domain.ErrInvalidState) {
		// A partially refunded payment cannot be refunded again here.
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestRefundExceedingAmountRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCash,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if _, err := f.paymentSvc.Confirm(ctx, result.Payment.ID); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}

	if _, err := f.paymentSvc.Refund(ctx, result.Payment.ID, 9999, ""); !errors.Is(err, domain.ErrRefundExceeds) {
		t.Fatalf("err = %v, want ErrRefundExceeds", err)
	}

	full, err := f.paymentSvc.Refund(ctx, result.Payment.ID, 0, "no show")
	if err != nil {
		t.Fatalf("full refund: %v", err)
	}
	if full.Status != domain.StatusRefunded {
		t.Errorf("status = %s, want REFUNDED", full.Status)
	}
	if len(f.gateway.refunds) != 0 {
		t.Error("cash refunds must not reach the gateway")
	}
}

func TestCancelPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCard,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	cancelled, err := f.paymentSvc.Cancel(ctx, result.Payment.ID)
	if err != nil {
		t.Fatalf("cancel payment: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", cancelled.Status)
	}

	// Terminal states cannot be cancelled.
	if _, err := f.paymentSvc.Cancel(ctx, result.Payment.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func (f *fixture) settleCardPayment(t *testing.T, booking bookingdomain.Booking) domain.Payment {
	t.Helper()
	ctx := context.Background()

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCard,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		ProviderEventID:   "evt_settle",
		ProviderPaymentID: result.Payment.SessionID,
		Type:              domain.EventTypePaymentSucceeded,
	})
	if err != nil {
		t.Fatalf("settle payment: %v", err)
	}
	payment, err := f.paymentSvc.Get(ctx, result.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	return payment
}

func TestConcurrentRefundsGrantOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	payment := f.settleCardPayment(t, f.seedBooking(t))

	f.gateway.refundEnter = make(chan struct{})
	f.gateway.refundGate = make(chan struct{})

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.paymentSvc.Refund(ctx, payment.ID, 2000, "first")
		firstErr <- err
	}()

	// The first refund has written its claim and is held inside the
	// gateway call. The second one must lose.
	<-f.gateway.refundEnter
	if _, err := f.paymentSvc.Refund(ctx, payment.ID, 2000, "second"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second refund err = %v, want ErrInvalidState", err)
	}

	close(f.gateway.refundGate)
	if err := <-firstErr; err != nil {
		t.Fatalf("first refund: %v", err)
	}

	reloaded, err := f.paymentSvc.Get(ctx, payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if reloaded.RefundAmountCents != 2000 {
		t.Errorf("refund amount = %d, want 2000", reloaded.RefundAmountCents)
	}
	if reloaded.Status != domain.StatusPartiallyRefunded {
		t.Errorf("status = %s, want PARTIALLY_REFUNDED", reloaded.Status)
	}
	if len(f.gateway.refunds) != 1 {
		t.Fatalf("gateway refunds = %d, want 1", len(f.gateway.refunds))
	}
}

func TestRefundGatewayFailureRevertsClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	payment := f.settleCardPayment(t, f.seedBooking(t))

	f.gateway.refundErr = errors.New("stripe_unavailable")
	if _, err := f.paymentSvc.Refund(ctx, payment.ID, 1000, "late cancellation"); err == nil {
		t.Fatal("expected gateway error")
	}

	reloaded, err := f.paymentSvc.Get(ctx, payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if reloaded.Status != domain.StatusSucceeded || reloaded.RefundAmountCents != 0 {
		t.Fatalf("payment = %s/%d, want SUCCEEDED with no refund", reloaded.Status, reloaded.RefundAmountCents)
	}

	// With the claim reverted the retry goes through.
	f.gateway.refundErr = nil
	retried, err := f.paymentSvc.Refund(ctx, payment.ID, 1000, "late cancellation")
	if err != nil {
		t.Fatalf("retry refund: %v", err)
	}
	if retried.Status != domain.StatusPartiallyRefunded || retried.RefundAmountCents != 1000 {
		t.Fatalf("payment = %s/%d, want PARTIALLY_REFUNDED with 1000", retried.Status, retried.RefundAmountCents)
	}
}

func TestSettleFailsWhenBookingCannotConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCard,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if _, err := f.bookingSvc.Cancel(ctx, booking.ID); err != nil {
		t.Fatalf("cancel booking: %v", err)
	}

	// The booking can never reach CONFIRMED, so the event must fail and
	// stay retryable instead of being acknowledged.
	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		ProviderEventID:   "evt_1",
		ProviderPaymentID: result.Payment.SessionID,
		Type:              domain.EventTypePaymentSucceeded,
	})
	if !errors.Is(err, bookingdomain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	// The redelivery finds the payment settled, but it must not be
	// acknowledged as a duplicate while the booking is still behind.
	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		ProviderEventID:   "evt_2",
		ProviderPaymentID: result.Payment.SessionID,
		Type:              domain.EventTypePaymentSucceeded,
	})
	if errors.Is(err, domain.ErrDuplicateSuccess) || err == nil {
		t.Fatalf("err = %v, want a confirmation failure", err)
	}
}

func TestUnmatchedIntentEventAcknowledged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCard,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	// An intent delivery that matches no stored reference is dropped,
	// not retried forever. The session event settles on its own.
	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		ProviderEventID:     "evt_1",
		ProviderPaymentID:   "pi_unknown",
		ProviderPaymentType: "payment_intent",
		Type:                domain.EventTypePaymentSucceeded,
	})
	if !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("err = %v, want ErrEventIgnored", err)
	}

	payment, err := f.paymentSvc.Get(ctx, result.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != domain.StatusProcessing {
		t.Errorf("status = %s, want PROCESSING", payment.Status)
	}
}

func TestSessionEventBackfillsIntentID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.seedBooking(t)
	f.gateway.emptyIntent = true

	result, err := f.paymentSvc.Create(ctx, domain.CreatePaymentRequest{
		BookingID: booking.ID,
		Method:    domain.MethodCard,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if result.Payment.PaymentIntentID != "" {
		t.Fatalf("intent id = %q, want empty before completion", result.Payment.PaymentIntentID)
	}

	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		ProviderEventID:     "evt_1",
		ProviderPaymentID:   result.Payment.SessionID,
		ProviderPaymentType: "checkout_session",
		ProviderIntentID:    "pi_late",
		Type:                domain.EventTypePaymentSucceeded,
	})
	if err != nil {
		t.Fatalf("apply session event: %v", err)
	}

	payment, err := f.paymentSvc.Get(ctx, result.Payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.PaymentIntentID != "pi_late" {
		t.Errorf("intent id = %q, want pi_late", payment.PaymentIntentID)
	}

	// Later intent deliveries now find the payment by the backfilled id.
	err = f.paymentSvc.ApplyEvent(ctx, &domain.PaymentEvent{
		ProviderEventID:     "evt_2",
		ProviderPaymentID:   "pi_late",
		ProviderPaymentType: "payment_intent",
		Type:                domain.EventTypePaymentSucceeded,
	})
	if !errors.Is(err, domain.ErrDuplicateSuccess) {
		t.Fatalf("err = %v, want ErrDuplicateSuccess", err)
	}
}
