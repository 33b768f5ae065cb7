package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/lsendel/relay"
	"github.com/lsendel/relay/channel"
	"github.com/lsendel/relay/id"
	"github.com/lsendel/relay/observability"
	"github.com/lsendel/relay/outbox"
)

func setupExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	return rm
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name != name {
				continue
			}
			sum, ok := sm.Metrics[i].Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64] data", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func testEvent() *outbox.Event {
	return &outbox.Event{
		Entity: relay.NewEntity(),
		ID:     id.NewEventID(),
		Type:   "notification",
		Status: outbox.StatusProcessing,
	}
}

func testChannel() *channel.Channel {
	return &channel.Channel{
		Entity: relay.NewEntity(),
		ID:     id.NewChannelID(),
		UserID: "user-1",
		Type:   channel.TypeWebhook,
	}
}

func TestMetricsExtension_EventLifecycle(t *testing.T) {
	ext, reader := setupExtension()
	ctx := context.Background()
	ev := testEvent()

	_ = ext.OnEventEnqueued(ctx, ev)
	_ = ext.OnEventClaimed(ctx, ev)
	_ = ext.OnEventClaimed(ctx, ev)
	_ = ext.OnEventCompleted(ctx, ev, 50*time.Millisecond)
	_ = ext.OnEventRetrying(ctx, ev, 1, time.Now().Add(time.Minute))
	_ = ext.OnEventFailed(ctx, ev, errors.New("all channels failed"))

	rm := collect(t, reader)

	expected := map[string]int64{
		"relay.outbox.enqueued":  1,
		"relay.outbox.claimed":   2,
		"relay.outbox.completed": 1,
		"relay.outbox.retried":   1,
		"relay.outbox.failed":    1,
	}
	for name, want := range expected {
		if got := counterValue(t, rm, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestMetricsExtension_RecordsProcessDuration(t *testing.T) {
	ext, reader := setupExtension()
	_ = ext.OnEventCompleted(context.Background(), testEvent(), 2*time.Second)

	rm := collect(t, reader)
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name != "relay.outbox.process.duration" {
				continue
			}
			hist, ok := sm.Metrics[i].Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatal("expected Histogram[float64] data")
			}
			if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
				t.Fatal("expected one duration data point")
			}
			if hist.DataPoints[0].Sum != 2.0 {
				t.Errorf("duration sum = %v, want 2.0", hist.DataPoints[0].Sum)
			}
			return
		}
	}
	t.Fatal("relay.outbox.process.duration metric not found")
}

func TestMetricsExtension_ChannelDeliveries(t *testing.T) {
	ext, reader := setupExtension()
	ctx := context.Background()
	ev := testEvent()
	ch := testChannel()

	_ = ext.OnChannelDelivered(ctx, ev, ch, 10*time.Millisecond)
	_ = ext.OnChannelDelivered(ctx, ev, ch, 10*time.Millisecond)
	_ = ext.OnChannelFailed(ctx, ev, ch, errors.New("webhook: unexpected status 503"))

	rm := collect(t, reader)
	if got := counterValue(t, rm, "relay.channel.delivered"); got != 2 {
		t.Errorf("delivered = %d, want 2", got)
	}
	if got := counterValue(t, rm, "relay.channel.failed"); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	ext := observability.NewMetricsExtension()
	if err := ext.OnEventEnqueued(context.Background(), testEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ext.Name() != "observability-metrics" {
		t.Errorf("name = %q", ext.Name())
	}
}
