package capture

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	photosCounter     metric.Int64Counter
	recordingsCounter metric.Int64Counter
	failuresCounter   metric.Int64Counter
	setupStateGauge   metric.Int64Gauge
)

func init() {
	var err error
	meter := otel.Meter("github.com/wachiwi/capturekit/pkg/capture")
	photosCounter, err = meter.Int64Counter("capture.photos",
		metric.WithDescription("Total number of photos taken"),
		metric.WithUnit("{photos}"),
	)
	if err != nil {
		slog.Error("Failed to create photo metrics", "error", err)
	}
	recordingsCounter, err = meter.Int64Counter("capture.recordings",
		metric.WithDescription("Total number of finished recordings"),
		metric.WithUnit("{recordings}"),
	)
	if err != nil {
		slog.Error("Failed to create recording metrics", "error", err)
	}
	failuresCounter, err = meter.Int64Counter("capture.failures",
		metric.WithDescription("Failed controller operations by operation and error kind"),
	)
	if err != nil {
		slog.Error("Failed to create failure metrics", "error", err)
	}
	setupStateGauge, err = meter.Int64Gauge("capture.setup_state",
		metric.WithDescription("Current setup state (0=not_determined ... 6=stopped)"),
	)
	if err != nil {
		slog.Error("Failed to create setup state gauge", "error", err)
	}
}

func recordFailure(op string, err error) {
	if failuresCounter == nil {
		return
	}
	failuresCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("kind", KindOf(err).String()),
	))
}

func recordPhoto() {
	if photosCounter != nil {
		photosCounter.Add(context.Background(), 1)
	}
}

func recordRecording(err error) {
	if recordingsCounter != nil {
		recordingsCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("ok", err == nil)))
	}
}

func recordState(s SetupState) {
	if setupStateGauge != nil {
		setupStateGauge.Record(context.Background(), int64(s), metric.WithAttributes(attribute.String("state", s.String())))
	}
}
