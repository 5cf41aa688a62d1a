package scheduler

import (
	"context"
	"strings"
	"testing"

	"MarketVault/internal/model"
	"MarketVault/internal/recorder"
	"MarketVault/internal/runner"
	"MarketVault/internal/source"
	"MarketVault/internal/staged"
	"MarketVault/internal/store"
	"MarketVault/internal/validate"
)

type captureNotifier struct {
	sent []string
}

func (c *captureNotifier) Notify(_ context.Context, text string) error {
	c.sent = append(c.sent, text)
	return nil
}

func newTestScheduler(t *testing.T, src source.Source, policy SendPolicy) (*Scheduler, *captureNotifier) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	orc := runner.New(st, []runner.SourceSpec{{
		Source:   src,
		Rules:    validate.BarRules(0.5, 2.0, 0.1),
		Attempts: 1,
	}}, runner.Options{})
	n := &captureNotifier{}
	s := NewScheduler(context.Background(), orc, st, n, recorder.NewNoopRecorder(), nil, policy)
	return s, n
}

func TestSendPolicy_Allows(t *testing.T) {
	p := SendPolicy{OnSuccess: false, OnWarning: true, OnError: true}
	if p.Allows(model.ClassOK) {
		t.Error("OK should be suppressed")
	}
	if !p.Allows(model.ClassWarn) || !p.Allows(model.ClassError) {
		t.Error("WARN and ERROR should be allowed")
	}
}

func TestFetchTask_NotifiesOnSuccess(t *testing.T) {
	src := &source.MockSource{SourceID: "EURUSD_D1"}
	s, n := newTestScheduler(t, src, SendPolicy{OnSuccess: true, OnWarning: true, OnError: true})
	s.RunFetchNow()
	if len(n.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(n.sent))
	}
	if !strings.Contains(n.sent[0], "OK") {
		t.Errorf("message: %s", n.sent[0])
	}
}

func TestFetchTask_SuppressedByPolicy(t *testing.T) {
	src := &source.MockSource{SourceID: "EURUSD_D1"}
	s, n := newTestScheduler(t, src, SendPolicy{OnSuccess: false, OnWarning: true, OnError: true})
	s.RunFetchNow()
	if len(n.sent) != 0 {
		t.Fatalf("sent %d messages, want 0 for suppressed OK", len(n.sent))
	}
}

func TestFetchTask_ErrorAlwaysClassified(t *testing.T) {
	src := &source.MockSource{
		SourceID: "EURUSD_D1",
		Err:      source.Errorf(source.KindNonRetryable, "bad key"),
	}
	s, n := newTestScheduler(t, src, SendPolicy{OnSuccess: false, OnWarning: false, OnError: true})
	s.RunFetchNow()
	if len(n.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(n.sent))
	}
	if !strings.Contains(n.sent[0], "ERROR") {
		t.Errorf("message: %s", n.sent[0])
	}
}

func TestHandleCommand_Status(t *testing.T) {
	src := &source.MockSource{SourceID: "EURUSD_D1"}
	s, _ := newTestScheduler(t, src, SendPolicy{})

	reply := s.HandleCommand("/status")
	if !strings.Contains(reply, "no run manifest available") {
		t.Errorf("reply before any run: %s", reply)
	}

	s.RunFetchNow()
	reply = s.HandleCommand("/status")
	if !strings.Contains(reply, "EURUSD_D1") {
		t.Errorf("reply after run: %s", reply)
	}
}

func TestPipelineTask_NotifiesOnFailure(t *testing.T) {
	src := &source.MockSource{SourceID: "EURUSD_D1"}
	s, n := newTestScheduler(t, src, SendPolicy{OnSuccess: false, OnError: true})

	pipe, err := staged.New(t.TempDir(), []staged.Step{
		{Name: "capture", Run: func(context.Context, string) int { return 1 }},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	s.Pipeline = pipe
	s.pipelineTask()

	if len(n.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(n.sent))
	}
	if !strings.Contains(n.sent[0], "ERROR") {
		t.Errorf("message: %s", n.sent[0])
	}
}

func TestHandleCommand_Unknown(t *testing.T) {
	src := &source.MockSource{SourceID: "EURUSD_D1"}
	s, _ := newTestScheduler(t, src, SendPolicy{})
	reply := s.HandleCommand("/bogus")
	if !strings.Contains(reply, "/run") || !strings.Contains(reply, "/status") {
		t.Errorf("help reply: %s", reply)
	}
}
