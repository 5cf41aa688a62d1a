package validate

import (
	"errors"
	"testing"
	"time"

	"MarketVault/internal/model"
)

func day(n int) time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func goodBars() *model.Dataset {
	return &model.Dataset{
		SourceID: "EURUSD_D1",
		Columns:  model.BarColumns,
		Records: []model.Record{
			model.Bar(day(0), 1.08, 1.09, 1.07, 1.085, 1000),
			model.Bar(day(1), 1.085, 1.1, 1.08, 1.09, 1200),
			model.Bar(day(2), 1.09, 1.11, 1.085, 1.1, 900),
		},
	}
}

func ruleOf(t *testing.T, err error) string {
	t.Helper()
	var re *RuleError
	if !errors.As(err, &re) {
		t.Fatalf("expected RuleError, got %v", err)
	}
	return re.Rule
}

func TestValidate_CleanBars(t *testing.T) {
	if err := Validate(goodBars(), BarRules(0.5, 2.0, 0.1)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_Empty(t *testing.T) {
	ds := &model.Dataset{SourceID: "x", Columns: model.BarColumns}
	err := Validate(ds, BarRules(0, 10, 0))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := ruleOf(t, err); got != "non_empty" {
		t.Errorf("rule = %s", got)
	}
}

func TestValidate_MissingRatio(t *testing.T) {
	ds := &model.Dataset{
		SourceID: "DGS10",
		Columns:  []string{"value"},
		Records: []model.Record{
			{Time: day(0), Fields: map[string]float64{"value": 4.2}},
			{Time: day(1), Fields: map[string]float64{}},
			{Time: day(2), Fields: map[string]float64{}},
			{Time: day(3), Fields: map[string]float64{"value": 4.3}},
		},
	}
	err := Validate(ds, SeriesRules(0, 100, 0.25))
	if err == nil {
		t.Fatal("expected error, half the values are missing")
	}
	if got := ruleOf(t, err); got != "missing_ratio" {
		t.Errorf("rule = %s", got)
	}

	// A looser threshold accepts the same dataset.
	if err := Validate(ds, SeriesRules(0, 100, 0.5)); err != nil {
		t.Errorf("unexpected error with loose threshold: %v", err)
	}
}

func TestValidate_Range(t *testing.T) {
	ds := goodBars()
	ds.Records[1].Fields["close"] = -3
	err := Validate(ds, BarRules(0.5, 2.0, 0.1))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := ruleOf(t, err); got != "range" {
		t.Errorf("rule = %s", got)
	}
}

func TestValidate_Containment(t *testing.T) {
	ds := goodBars()
	// close above high
	ds.Records[2].Fields["close"] = 1.5
	err := Validate(ds, BarRules(0.5, 2.0, 0.1))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := ruleOf(t, err); got != "containment" {
		t.Errorf("rule = %s", got)
	}
}

func TestValidate_MonotonicTime(t *testing.T) {
	ds := goodBars()
	ds.Records[2].Time = ds.Records[1].Time
	err := Validate(ds, BarRules(0.5, 2.0, 0.1))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := ruleOf(t, err); got != "monotonic_time" {
		t.Errorf("rule = %s", got)
	}
}
