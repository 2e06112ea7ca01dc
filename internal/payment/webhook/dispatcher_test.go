package webhook

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/serene/internal/clock"
	"github.com/smallbiznis/serene/internal/config"
	"github.com/smallbiznis/serene/internal/idempotency"
	"github.com/smallbiznis/serene/internal/observability/metrics"
	"github.com/smallbiznis/serene/internal/payment/domain"
	"github.com/smallbiznis/serene/internal/payment/gateway"
	"go.uber.org/zap"
)

type stubGateway struct {
	verifyErr error
	parseErr  error
	event     *domain.PaymentEvent
}

func (stubGateway) Provider() string { return "stripe" }

func (g stubGateway) Verify(context.Context, []byte, http.Header) error { return g.verifyErr }

func (g stubGateway) Parse(context.Context, []byte) (*domain.PaymentEvent, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	return g.event, nil
}

func (stubGateway) CreateCheckoutSession(context.Context, domain.CheckoutRequest) (domain.CheckoutSession, error) {
	return domain.CheckoutSession{}, errors.New("not implemented")
}

func (stubGateway) CreateRefund(context.Context, domain.RefundRequest) (domain.Refund, error) {
	return domain.Refund{}, errors.New("not implemented")
}

func (stubGateway) ExpireSession(context.Context, string) error { return nil }

type stubPaymentService struct {
	domain.Service

	applyErr error
	applied  []*domain.PaymentEvent
}

func (s *stubPaymentService) ApplyEvent(_ context.Context, event *domain.PaymentEvent) error {
	s.applied = append(s.applied, event)
	return s.applyErr
}

func newDispatcher(t *testing.T, gw domain.Gateway, svc domain.Service) *Dispatcher {
	t.Helper()

	holder, err := config.NewPolicyHolder()
	if err != nil {
		t.Fatalf("new policy holder: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	guard := idempotency.NewGuard(nil, idempotency.NewMemoryStore(clk), holder, zap.NewNop())

	return NewDispatcher(Params{
		Log:        zap.NewNop(),
		Gateways:   gateway.NewRegistry(gw),
		Guard:      guard,
		PaymentSvc: svc,
		Metrics:    metrics.NewNoop(),
	})
}

func testEvent() *domain.PaymentEvent {
	return &domain.PaymentEvent{
		Provider:          "stripe",
		ProviderEventID:   "evt_1",
		ProviderPaymentID: "pi_1",
		Type:              domain.EventTypePaymentSucceeded,
	}
}

var validPayload = []byte(`{"id":"evt_1"}`)

func TestDispatchProcessesOnce(t *testing.T) {
	ctx := context.Background()
	svc := &stubPaymentService{}
	d := newDispatcher(t, stubGateway{event: testEvent()}, svc)

	if err := d.Dispatch(ctx, "stripe", validPayload, http.Header{}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if len(svc.applied) != 1 {
		t.Fatalf("applied = %d, want 1", len(svc.applied))
	}

	// Redelivery of the same event id is acknowledged without
	// touching the payment service.
	if err := d.Dispatch(ctx, "stripe", validPayload, http.Header{}); err != nil {
		t.Fatalf("duplicate dispatch: %v", err)
	}
	if len(svc.applied) != 1 {
		t.Fatalf("applied after duplicate = %d, want 1", len(svc.applied))
	}
}

func TestDispatchFailureKeepsEventRetryable(t *testing.T) {
	ctx := context.Background()
	svc := &stubPaymentService{applyErr: errors.New("database unavailable")}
	d := newDispatcher(t, stubGateway{event: testEvent()}, svc)

	if err := d.Dispatch(ctx, "stripe", validPayload, http.Header{}); err == nil {
		t.Fatal("expected processing error")
	}

	// The failure record does not count as completion.
	if handled, err := d.guard.HasBeenHandled(ctx, "stripe:evt_1"); err != nil || handled {
		t.Fatalf("handled after failure: handled=%v err=%v", handled, err)
	}

	// The provider's retry claims over the failure record and is
	// processed again.
	svc.applyErr = nil
	if err := d.Dispatch(ctx, "stripe", validPayload, http.Header{}); err != nil {
		t.Fatalf("retry dispatch: %v", err)
	}
	if len(svc.applied) != 2 {
		t.Fatalf("applied = %d, want 2", len(svc.applied))
	}
}

func TestDispatchDuplicateSuccessIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	svc := &stubPaymentService{applyErr: domain.ErrDuplicateSuccess}
	d := newDispatcher(t, stubGateway{event: testEvent()}, svc)

	if err := d.Dispatch(ctx, "stripe", validPayload, http.Header{}); err != nil {
		t.Fatalf("duplicate success dispatch: %v", err)
	}

	// The claim is tombstoned, not released: the retry is denied.
	svc.applyErr = nil
	if err := d.Dispatch(ctx, "stripe", validPayload, http.Header{}); err != nil {
		t.Fatalf("redelivery dispatch: %v", err)
	}
	if len(svc.applied) != 1 {
		t.Fatalf("applied = %d, want 1", len(svc.applied))
	}
}

func TestDispatchAcknowledgesIgnoredEventKinds(t *testing.T) {
	ctx := context.Background()
	svc := &stubPaymentService{}
	d := newDispatcher(t, stubGateway{parseErr: domain.ErrEventIgnored}, svc)

	if err := d.Dispatch(ctx, "stripe", validPayload, http.Header{}); err != nil {
		t.Fatalf("ignored event dispatch: %v", err)
	}
	if len(svc.applied) != 0 {
		t.Fatal("ignored events must not reach the payment service")
	}
}

func TestDispatchRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := &stubPaymentService{}

	d := newDispatcher(t, stubGateway{event: testEvent()}, svc)
	if err := d.Dispatch(ctx, "unknown", validPayload, http.Header{}); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("err = %v, want ErrProviderNotFound", err)
	}
	if err := d.Dispatch(ctx, "stripe", []byte("not json"), http.Header{}); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}

	d = newDispatcher(t, stubGateway{verifyErr: domain.ErrInvalidSignature}, svc)
	if err := d.Dispatch(ctx, "stripe", validPayload, http.Header{}); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	if len(svc.applied) != 0 {
		t.Fatal("rejected deliveries must not reach the payment service")
	}
}
