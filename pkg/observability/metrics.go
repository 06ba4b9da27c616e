// Package observability registers the relay's OpenTelemetry instruments.
// Counters attach to the global meter provider; exporter wiring belongs to
// the deployment.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the relay counters.
type Metrics struct {
	eventsReceived  metric.Int64Counter
	eventsDuplicate metric.Int64Counter
	deliveries      metric.Int64Counter
}

// New creates the relay instruments on the global meter provider.
func New() *Metrics {
	meter := otel.GetMeterProvider().Meter("github.com/Mindburn-Labs/relay")

	received, _ := meter.Int64Counter("relay.events.received",
		metric.WithDescription("Webhook events admitted at ingress"))
	duplicate, _ := meter.Int64Counter("relay.events.duplicate",
		metric.WithDescription("Webhook events deduplicated by fingerprint"))
	deliveries, _ := meter.Int64Counter("relay.deliveries",
		metric.WithDescription("Outbound delivery attempts by outcome"))

	return &Metrics{
		eventsReceived:  received,
		eventsDuplicate: duplicate,
		deliveries:      deliveries,
	}
}

func (m *Metrics) EventReceived(ctx context.Context) {
	if m == nil {
		return
	}
	m.eventsReceived.Add(ctx, 1)
}

func (m *Metrics) EventDuplicate(ctx context.Context) {
	if m == nil {
		return
	}
	m.eventsDuplicate.Add(ctx, 1)
}

// DeliveryAttempt records one outbound attempt. Outcome is "delivered",
// "retry_scheduled" or "abandoned".
func (m *Metrics) DeliveryAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
