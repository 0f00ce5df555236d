package camera

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "capture-colorspace/camera"

// metrics records configuration outcomes on the global meter provider,
// which is a no-op until telemetry is set up
type metrics struct {
	configurations metric.Int64Counter
	drifts         metric.Int64Counter
}

func newMetrics(logger *zap.Logger) *metrics {
	meter := otel.Meter(meterName)
	m := &metrics{}

	var err error
	m.configurations, err = meter.Int64Counter("colorspace.configurations",
		metric.WithDescription("Color-space configuration attempts by outcome"),
		metric.WithUnit("{configuration}"))
	if err != nil {
		logger.Warn("Failed to create configurations counter", zap.Error(err))
	}

	m.drifts, err = meter.Int64Counter("colorspace.drifts",
		metric.WithDescription("Active color space found different from the applied one"),
		metric.WithUnit("{drift}"))
	if err != nil {
		logger.Warn("Failed to create drift counter", zap.Error(err))
	}
	return m
}

func (m *metrics) recordConfiguration(ctx context.Context, cameraID, outcome string) {
	if m.configurations == nil {
		return
	}
	m.configurations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("camera", cameraID),
		attribute.String("outcome", outcome)))
}

func (m *metrics) recordDrift(ctx context.Context, cameraID string) {
	if m.drifts == nil {
		return
	}
	m.drifts.Add(ctx, 1, metric.WithAttributes(attribute.String("camera", cameraID)))
}
