// Package validate runs declarative structural checks over acquired datasets.
// Validation failure is treated by the orchestrator the same way as a fetch
// failure: the source falls back to its cached snapshot.
package validate

import (
	"fmt"

	"MarketVault/internal/model"
)

// Bounds constrains a numeric field to [Min, Max].
type Bounds struct {
	Field string
	Min   float64
	Max   float64
}

// Containment requires Lower <= each Inner field <= Upper per record,
// e.g. low <= open,close <= high for price bars. A record missing any of the
// involved fields is skipped; missing-value density is policed separately.
type Containment struct {
	Lower string
	Upper string
	Inner []string
}

// Rules is the declarative rule set for one source. The non-empty and
// monotonic-time checks always run; the rest apply when configured.
type Rules struct {
	MaxMissingRatio float64
	Bounds          []Bounds
	Containment     []Containment
}

// RuleError names the violated rule and describes the offending value.
type RuleError struct {
	Rule   string
	Detail string
}

func (e *RuleError) Error() string { return e.Rule + ": " + e.Detail }

func ruleErrorf(rule, format string, args ...any) error {
	return &RuleError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// BarRules is the standard rule set for OHLCV price bars.
func BarRules(minPrice, maxPrice, maxMissingRatio float64) Rules {
	return Rules{
		MaxMissingRatio: maxMissingRatio,
		Bounds: []Bounds{
			{Field: "open", Min: minPrice, Max: maxPrice},
			{Field: "high", Min: minPrice, Max: maxPrice},
			{Field: "low", Min: minPrice, Max: maxPrice},
			{Field: "close", Min: minPrice, Max: maxPrice},
		},
		Containment: []Containment{
			{Lower: "low", Upper: "high", Inner: []string{"open", "close"}},
		},
	}
}

// SeriesRules is the rule set for single-value observation series.
func SeriesRules(min, max, maxMissingRatio float64) Rules {
	return Rules{
		MaxMissingRatio: maxMissingRatio,
		Bounds:          []Bounds{{Field: "value", Min: min, Max: max}},
	}
}

// Validate checks the dataset against the rules, failing fast on the first
// violation with the rule name and offending value.
func Validate(ds *model.Dataset, r Rules) error {
	if ds.Rows() == 0 {
		return ruleErrorf("non_empty", "dataset %s has no records", ds.SourceID)
	}

	if r.MaxMissingRatio > 0 || len(ds.Columns) > 0 {
		for _, col := range ds.Columns {
			missing := 0
			for _, rec := range ds.Records {
				if _, ok := rec.Fields[col]; !ok {
					missing++
				}
			}
			ratio := float64(missing) / float64(len(ds.Records))
			if ratio > r.MaxMissingRatio {
				return ruleErrorf("missing_ratio", "field %s: %.4f > %.4f", col, ratio, r.MaxMissingRatio)
			}
		}
	}

	for _, b := range r.Bounds {
		for i, rec := range ds.Records {
			v, ok := rec.Fields[b.Field]
			if !ok {
				continue
			}
			if v < b.Min || v > b.Max {
				return ruleErrorf("range", "field %s row %d: %v outside [%v, %v]", b.Field, i, v, b.Min, b.Max)
			}
		}
	}

	for _, c := range r.Containment {
		for i, rec := range ds.Records {
			lo, okLo := rec.Fields[c.Lower]
			hi, okHi := rec.Fields[c.Upper]
			if !okLo || !okHi {
				continue
			}
			for _, inner := range c.Inner {
				v, ok := rec.Fields[inner]
				if !ok {
					continue
				}
				if v < lo || v > hi {
					return ruleErrorf("containment", "row %d: %s=%v outside %s..%s (%v..%v)", i, inner, v, c.Lower, c.Upper, lo, hi)
				}
			}
		}
	}

	for i := 1; i < len(ds.Records); i++ {
		prev, cur := ds.Records[i-1].Time, ds.Records[i].Time
		if !cur.After(prev) {
			return ruleErrorf("monotonic_time", "row %d: %s not after %s",
				i, cur.UTC().Format("2006-01-02T15:04:05Z"), prev.UTC().Format("2006-01-02T15:04:05Z"))
		}
	}

	return nil
}
