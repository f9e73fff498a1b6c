package recorder

import (
	"context"

	"SignalSentinel/internal/model"
)

// NoopRecorder is a no-op implementation used when no store is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignals(context.Context, string, []model.SignalRecord) error {
	return nil
}

func (n *NoopRecorder) RecordPortfolio(context.Context, string, model.Valuations, map[string]model.PortfolioMetric) error {
	return nil
}

func (n *NoopRecorder) Close() error { return nil }
