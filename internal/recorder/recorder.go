package recorder

import "MarketVault/internal/model"

// Recorder persists run history for later analysis.
type Recorder interface {
	RecordFetchRun(m *model.RunManifest, class model.Classification) error
	RecordPipelineRun(rec *model.PipelineRunRecord) error
	Close() error
}
