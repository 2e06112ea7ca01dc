package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	bookingsCreated    metric.Int64Counter
	bookingConflicts   metric.Int64Counter
	bookingTransitions metric.Int64Counter
	paymentEvents      metric.Int64Counter
	webhookDuplicates  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "serene"
	}
	meter := provider.Meter(name)

	bookingsCreated, err := meter.Int64Counter("serene_bookings_created_total")
	if err != nil {
		return nil, err
	}
	bookingConflicts, err := meter.Int64Counter("serene_booking_conflicts_total")
	if err != nil {
		return nil, err
	}
	bookingTransitions, err := meter.Int64Counter("serene_booking_transitions_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("serene_payment_events_total")
	if err != nil {
		return nil, err
	}
	webhookDuplicates, err := meter.Int64Counter("serene_webhook_duplicates_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		bookingsCreated:    bookingsCreated,
		bookingConflicts:   bookingConflicts,
		bookingTransitions: bookingTransitions,
		paymentEvents:      paymentEvents,
		webhookDuplicates:  webhookDuplicates,
	}, nil
}

// NewNoop builds instruments against a noop provider, for tests.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordBookingCreated increments booking creation counts.
func (m *Metrics) RecordBookingCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.bookingsCreated.Add(ctx, 1)
}

// RecordBookingConflict increments rejected overlap counts.
func (m *Metrics) RecordBookingConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.bookingConflicts.Add(ctx, 1)
}

// RecordBookingTransition increments lifecycle transition counts.
func (m *Metrics) RecordBookingTransition(ctx context.Context, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("to_status", strings.TrimSpace(to)))
	m.bookingTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments payment event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhookDuplicate increments duplicate delivery counts.
func (m *Metrics) RecordWebhookDuplicate(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.webhookDuplicates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":    {},
	"event_type":  {},
	"to_status":   {},
	"status_code": {},
	"endpoint":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
