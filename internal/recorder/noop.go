package recorder

import (
	"context"
	"time"

	"SignalScanner/internal/model"
)

// NoopRecorder is a no-op implementation used when no store is configured.
// Reads return empty results.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignal(_ context.Context, _ model.Signal) error       { return nil }
func (n *NoopRecorder) RecordScanRun(_ context.Context, _ model.RunSummary) error  { return nil }
func (n *NoopRecorder) Signals(_ context.Context, _ Query) ([]model.Signal, error) { return []model.Signal{}, nil }
func (n *NoopRecorder) LatestSignal(_ context.Context, _ string) (*model.Signal, error) {
	return nil, nil
}
func (n *NoopRecorder) Stats(_ context.Context, from, to time.Time, _ int) (*model.SignalStats, error) {
	return newStats(from, to), nil
}
func (n *NoopRecorder) RecentRuns(_ context.Context, _ int) ([]model.RunSummary, error) {
	return []model.RunSummary{}, nil
}
func (n *NoopRecorder) Close() error { return nil }
