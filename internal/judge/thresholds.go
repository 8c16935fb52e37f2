package judge

import (
	"fmt"
	"math"

	"incubator/internal/baseline"
	"incubator/internal/config"
)

// Threshold rule identifiers.
const (
	RuleFunctionalityDrop = "functionality_drop"
	RuleStabilityRise     = "stability_rise"
	RuleLatencyRise       = "latency_rise"
)

// Deltas are the candidate-vs-baseline percentage changes the comparison
// block of every judge report records.
type Deltas struct {
	FunctionalityPct float64 `json:"functionality_delta_pct"`
	StabilityPct     float64 `json:"stability_delta_pct"`
	LatencyPct       float64 `json:"latency_delta_pct"`
}

// ThresholdResult is the statistical verdict for one suite comparison.
type ThresholdResult struct {
	Pass       bool
	Deltas     Deltas
	Violations []Violation
}

// CheckThresholds compares candidate stats against the baseline reference
// under the change type's thresholds.
//
// Functionality is the pass-rate delta (negative = regression), stability
// the fail-rate delta (positive = regression), latency the relative total
// duration change. An empty baseline duration divides as 1 to avoid a
// zero denominator.
func CheckThresholds(base, cand baseline.Stat, th config.Thresholds) ThresholdResult {
	d := Deltas{
		FunctionalityPct: passRate(cand) - passRate(base),
		StabilityPct:     failRate(cand) - failRate(base),
		LatencyPct:       durationDelta(base.DurationMs, cand.DurationMs),
	}

	res := ThresholdResult{Pass: true, Deltas: d}

	if d.FunctionalityPct < -math.Abs(th.FunctionalityMinPct) {
		res.Pass = false
		res.Violations = append(res.Violations, Violation{
			Rule: RuleFunctionalityDrop,
			Reason: fmt.Sprintf("pass rate dropped %.2f%% (threshold %.2f%%)",
				-d.FunctionalityPct, th.FunctionalityMinPct),
		})
	}
	if d.StabilityPct > th.StabilityMaxPct {
		res.Pass = false
		res.Violations = append(res.Violations, Violation{
			Rule: RuleStabilityRise,
			Reason: fmt.Sprintf("fail rate rose %.2f%% (threshold %.2f%%)",
				d.StabilityPct, th.StabilityMaxPct),
		})
	}
	if d.LatencyPct > th.P95LatencyMaxPct {
		res.Pass = false
		res.Violations = append(res.Violations, Violation{
			Rule: RuleLatencyRise,
			Reason: fmt.Sprintf("total duration rose %.2f%% (threshold %.2f%%)",
				d.LatencyPct, th.P95LatencyMaxPct),
		})
	}

	return res
}

func passRate(s baseline.Stat) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total) * 100
}

func failRate(s baseline.Stat) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Total) * 100
}

func durationDelta(base, cand int64) float64 {
	if base == 0 {
		base = 1
	}
	return float64(cand-base) / float64(base) * 100
}
