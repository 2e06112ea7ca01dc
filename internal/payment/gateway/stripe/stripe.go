package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/serene/internal/payment/domain"
)

type Config struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type Gateway struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Gateway {
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 12 * time.Second},
	}
}

func (g *Gateway) Provider() string { return "stripe" }

func (g *Gateway) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (g *Gateway) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return g.parseCheckoutSession(event, payload)
	case "payment_intent.succeeded":
		return g.parsePaymentIntent(event, payload, paymentdomain.EventTypePaymentSucceeded)
	case "payment_intent.payment_failed":
		return g.parsePaymentIntent(event, payload, paymentdomain.EventTypePaymentFailed)
	case "charge.refunded":
		return g.parseCharge(event, payload, paymentdomain.EventTypeRefunded)
	case "charge.dispute.created":
		return g.parseDispute(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
	Created       int64  `json:"created"`
	URL           string `json:"url"`
}

type stripePaymentIntent struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	AmountReceived   int64  `json:"amount_received"`
	Currency         string `json:"currency"`
	Created          int64  `json:"created"`
	LastPaymentError struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeCharge struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Created        int64  `json:"created"`
}

type stripeDispute struct {
	ID       string `json:"id"`
	Charge   string `json:"charge"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Reason   string `json:"reason"`
	Created  int64  `json:"created"`
}

func (g *Gateway) parseCheckoutSession(event stripeEvent, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.PaymentEvent{
		Provider:            "stripe",
		ProviderEventID:     event.ID,
		ProviderPaymentID:   session.ID,
		ProviderPaymentType: "checkout_session",
		ProviderIntentID:    session.PaymentIntent,
		Type:                paymentdomain.EventTypePaymentSucceeded,
		Amount:              session.AmountTotal,
		Currency:            strings.ToUpper(strings.TrimSpace(session.Currency)),
		OccurredAt:          timestamp(session.Created, event.Created),
		RawPayload:          payload,
	}, nil
}

func (g *Gateway) parsePaymentIntent(event stripeEvent, payload []byte, eventType string) (*paymentdomain.PaymentEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	return &paymentdomain.PaymentEvent{
		Provider:            "stripe",
		ProviderEventID:     event.ID,
		ProviderPaymentID:   intent.ID,
		ProviderPaymentType: "payment_intent",
		Type:                eventType,
		Amount:              amount,
		Currency:            strings.ToUpper(strings.TrimSpace(intent.Currency)),
		Reason:              strings.TrimSpace(intent.LastPaymentError.Message),
		OccurredAt:          timestamp(intent.Created, event.Created),
		RawPayload:          payload,
	}, nil
}

func (g *Gateway) parseCharge(event stripeEvent, payload []byte, eventType string) (*paymentdomain.PaymentEvent, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(charge.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := charge.Amount
	if eventType == paymentdomain.EventTypeRefunded && charge.AmountRefunded > 0 {
		amount = charge.AmountRefunded
	}

	ref := charge.PaymentIntent
	if ref == "" {
		ref = charge.ID
	}

	return &paymentdomain.PaymentEvent{
		Provider:            "stripe",
		ProviderEventID:     event.ID,
		ProviderPaymentID:   ref,
		ProviderPaymentType: "charge",
		Type:                eventType,
		Amount:              amount,
		Currency:            strings.ToUpper(strings.TrimSpace(charge.Currency)),
		OccurredAt:          timestamp(charge.Created, event.Created),
		RawPayload:          payload,
	}, nil
}

func (g *Gateway) parseDispute(event stripeEvent, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var dispute stripeDispute
	if err := json.Unmarshal(event.Data.Object, &dispute); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(dispute.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.PaymentEvent{
		Provider:            "stripe",
		ProviderEventID:     event.ID,
		ProviderPaymentID:   dispute.Charge,
		ProviderPaymentType: "dispute",
		Type:                paymentdomain.EventTypeDisputed,
		Amount:              dispute.Amount,
		Currency:            strings.ToUpper(strings.TrimSpace(dispute.Currency)),
		Reason:              strings.TrimSpace(dispute.Reason),
		OccurredAt:          timestamp(dispute.Created, event.Created),
		RawPayload:          payload,
	}, nil
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSession, error) {
	values := url.Values{}
	values.Set("mode", "payment")
	values.Set("line_items[0][quantity]", "1")
	values.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	values.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	values.Set("line_items[0][price_data][product_data][name]", req.Description)
	values.Set("success_url", g.cfg.SuccessURL)
	values.Set("cancel_url", g.cfg.CancelURL)
	values.Set("metadata[payment_id]", req.PaymentID.String())
	values.Set("metadata[booking_id]", req.BookingID.String())
	if req.CustomerEmail != "" {
		values.Set("customer_email", req.CustomerEmail)
	}

	var session stripeCheckoutSession
	err := g.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions", values, "payment:"+req.PaymentID.String(), &session)
	if err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	if session.ID == "" {
		return paymentdomain.CheckoutSession{}, errors.New("stripe_response_invalid")
	}
	return paymentdomain.CheckoutSession{
		SessionID:       session.ID,
		PaymentIntentID: session.PaymentIntent,
		URL:             session.URL,
	}, nil
}

type stripeRefund struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

func (g *Gateway) CreateRefund(ctx context.Context, req paymentdomain.RefundRequest) (paymentdomain.Refund, error) {
	values := url.Values{}
	if req.PaymentIntentID != "" {
		values.Set("payment_intent", req.PaymentIntentID)
	} else if req.ChargeID != "" {
		values.Set("charge", req.ChargeID)
	} else {
		return paymentdomain.Refund{}, errors.New("refund_reference_missing")
	}
	if req.AmountCents > 0 {
		values.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	}
	if req.Reason != "" {
		values.Set("metadata[reason]", req.Reason)
	}

	var refund stripeRefund
	err := g.doRequest(ctx, http.MethodPost, "/v1/refunds", values, "", &refund)
	if err != nil {
		return paymentdomain.Refund{}, err
	}
	if refund.ID == "" {
		return paymentdomain.Refund{}, errors.New("stripe_response_invalid")
	}
	return paymentdomain.Refund{ID: refund.ID, AmountCents: refund.Amount}, nil
}

func (g *Gateway) ExpireSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	var session stripeCheckoutSession
	return g.doRequest(ctx, http.MethodPost, "/v1/checkout/sessions/"+sessionID+"/expire", url.Values{}, "", &session)
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gateway) doRequest(ctx context.Context, method, path string, values url.Values, idempotencyKey string, out any) error {
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return errors.New("stripe_api_key_missing")
	}

	req, err := http.NewRequestWithContext(ctx, method, "https://api.stripe.com"+path, strings.NewReader(values.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil {
			return errors.New("stripe_request_failed")
		}
		message := strings.TrimSpace(stripeErr.Error.Message)
		if message == "" {
			message = "stripe_request_failed"
		}
		return errors.New(message)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
