package model

// SourceStatus records the per-source outcome of one fetch run.
//
// When ok=false, rows is 0 and latest_marker is empty. A successful cache
// fallback reports ok=true with used_cache=true; error keeps the original
// failure reason for audit even though the run is considered healthy.
type SourceStatus struct {
	OK           bool   `json:"ok"`
	Rows         int    `json:"rows"`
	LatestMarker string `json:"latest_marker"`
	UsedCache    bool   `json:"used_cache"`
	Error        string `json:"error"`
}

// RunManifest aggregates all source statuses for one fetch run.
// StaleSources is exactly the set of sources with used_cache=true.
// Notes is non-empty iff at least one source failed or is stale.
type RunManifest struct {
	AsOfUTC      string                  `json:"asof_utc"`
	Sources      map[string]SourceStatus `json:"sources"`
	StaleSources []string                `json:"stale_sources"`
	Notes        string                  `json:"notes"`
}

// Classification is the overall health of a fetch run.
type Classification string

const (
	ClassOK    Classification = "OK"
	ClassWarn  Classification = "WARN"
	ClassError Classification = "ERROR"
)

// Classify derives the run classification from the manifest. It is a pure
// function of the manifest contents and independent of map iteration order.
func Classify(m *RunManifest) Classification {
	for _, st := range m.Sources {
		if !st.OK {
			return ClassError
		}
	}
	if len(m.StaleSources) > 0 || m.Notes != "" {
		return ClassWarn
	}
	return ClassOK
}
