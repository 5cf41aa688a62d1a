package notifier

import (
	"fmt"
	"sort"
	"strings"

	"MarketVault/internal/model"
)

// FormatRunReport renders a fetch-run manifest into a Telegram HTML message.
// Everything shown here is derived from the manifest alone.
func FormatRunReport(m *model.RunManifest, class model.Classification) string {
	var b strings.Builder

	switch class {
	case model.ClassOK:
		b.WriteString("✅ <b>MarketVault fetch: OK</b>\n")
	case model.ClassWarn:
		b.WriteString("⚠️ <b>MarketVault fetch: WARNING</b>\n")
	default:
		b.WriteString("❌ <b>MarketVault fetch: ERROR</b>\n")
	}
	b.WriteString(fmt.Sprintf("<b>asof</b>: %s\n\n", m.AsOfUTC))

	ids := make([]string, 0, len(m.Sources))
	for id := range m.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		st := m.Sources[id]
		switch {
		case st.OK && !st.UsedCache:
			b.WriteString(fmt.Sprintf("• %s: %d rows, latest %s\n", id, st.Rows, st.LatestMarker))
		case st.OK && st.UsedCache:
			b.WriteString(fmt.Sprintf("• %s: %d rows (stale cache, latest %s)\n", id, st.Rows, st.LatestMarker))
		default:
			b.WriteString(fmt.Sprintf("• %s: FAILED — %s\n", id, st.Error))
		}
	}

	if len(m.StaleSources) > 0 {
		b.WriteString(fmt.Sprintf("\n<b>stale</b>: %s\n", strings.Join(m.StaleSources, ", ")))
	}
	if m.Notes != "" {
		b.WriteString(fmt.Sprintf("<b>notes</b>: %s\n", m.Notes))
	}
	return b.String()
}

// FormatPipelineReport renders a staged pipeline run record.
func FormatPipelineReport(rec *model.PipelineRunRecord) string {
	var b strings.Builder

	switch rec.Status {
	case model.StatusOK:
		b.WriteString("✅ <b>MarketVault pipeline: OK</b>\n")
	case model.StatusChallenge:
		b.WriteString("🔒 <b>MarketVault pipeline: CHALLENGE</b> — operator action required\n")
	default:
		b.WriteString("❌ <b>MarketVault pipeline: ERROR</b>\n")
	}
	b.WriteString(fmt.Sprintf("<b>run_id</b>: %s\n", rec.RunID))
	b.WriteString(fmt.Sprintf("<b>steps</b>: %d\n", len(rec.Steps)))

	var ok, bad []string
	for _, s := range rec.Steps {
		if s.OK {
			ok = append(ok, s.Step)
		} else {
			bad = append(bad, fmt.Sprintf("%s (exit %d)", s.Step, s.ExitCode))
		}
	}
	if len(ok) > 0 {
		b.WriteString("<b>steps_ok</b>: " + strings.Join(ok, ", ") + "\n")
	}
	if len(bad) > 0 {
		b.WriteString("<b>steps_failed</b>: " + strings.Join(bad, ", ") + "\n")
	}
	if rec.Error != "" {
		b.WriteString(fmt.Sprintf("<b>error</b>: %s\n", rec.Error))
	}
	return b.String()
}
