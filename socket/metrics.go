package socket

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/kleeedolinux/socketq/socket"

// metrics is nil-safe: a nil *metrics records nothing.
type metrics struct {
	enqueuedTotal     metric.Int64Counter
	replayedTotal     metric.Int64Counter
	replayFailedTotal metric.Int64Counter
	flushedTotal      metric.Int64Counter
}

func newMetrics(provider metric.MeterProvider) *metrics {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	return &metrics{
		enqueuedTotal: counter(meter, "socketq.operations.enqueued",
			"Operations deferred while disconnected"),
		replayedTotal: counter(meter, "socketq.operations.replayed",
			"Deferred operations replayed after connect"),
		replayFailedTotal: counter(meter, "socketq.operations.replay_failed",
			"Deferred operations lost because their replay failed"),
		flushedTotal: counter(meter, "socketq.operations.flushed",
			"Deferred operations discarded on disconnect"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name,
		metric.WithDescription(desc),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return c
}

func kindAttr(kind OpKind) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", kind.String()))
}

func (m *metrics) enqueued(kind OpKind) {
	if m == nil {
		return
	}
	m.enqueuedTotal.Add(context.Background(), 1, kindAttr(kind))
}

func (m *metrics) replayed(kind OpKind) {
	if m == nil {
		return
	}
	m.replayedTotal.Add(context.Background(), 1, kindAttr(kind))
}

func (m *metrics) replayFailed(kind OpKind) {
	if m == nil {
		return
	}
	m.replayFailedTotal.Add(context.Background(), 1, kindAttr(kind))
}

func (m *metrics) flushed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.flushedTotal.Add(context.Background(), int64(n))
}
