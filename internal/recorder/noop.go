package recorder

import "MarketVault/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordFetchRun(_ *model.RunManifest, _ model.Classification) error {
	return nil
}
func (n *NoopRecorder) RecordPipelineRun(_ *model.PipelineRunRecord) error { return nil }
func (n *NoopRecorder) Close() error                                      { return nil }
