package compare

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
	"github.com/stellarlinkco/agent-eval/internal/stats"
)

const defaultAlpha = 0.05

// RateChange is the shift of one rate between two runs. Relative is +Inf or
// -Inf when the baseline rate is exactly 0 and the other run is nonzero.
type RateChange struct {
	Run1     float64 `json:"run1"`
	Run2     float64 `json:"run2"`
	Absolute float64 `json:"absolute"`
	Relative float64 `json:"relative"`
}

// MarshalJSON renders infinite relative changes as strings so the
// comparison stays JSON-encodable.
func (r RateChange) MarshalJSON() ([]byte, error) {
	type alias struct {
		Run1     float64 `json:"run1"`
		Run2     float64 `json:"run2"`
		Absolute float64 `json:"absolute"`
		Relative any     `json:"relative"`
	}
	out := alias{Run1: r.Run1, Run2: r.Run2, Absolute: r.Absolute, Relative: r.Relative}
	if math.IsInf(r.Relative, 1) {
		out.Relative = "+Inf"
	} else if math.IsInf(r.Relative, -1) {
		out.Relative = "-Inf"
	}
	return json.Marshal(out)
}

// TestResult is one statistical test's outcome. A failed test carries an
// error string instead of aborting the comparison.
type TestResult struct {
	Name        string  `json:"name"`
	Statistic   float64 `json:"statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	Error       string  `json:"error,omitempty"`
}

// OverallComparison is the run-level rate shift.
type OverallComparison struct {
	PassRate  RateChange `json:"pass_rate"`
	FailRate  RateChange `json:"fail_rate"`
	ErrorRate RateChange `json:"error_rate"`
}

// MetricComparison compares one metric across the two runs.
type MetricComparison struct {
	Metric     string       `json:"metric"`
	PassRate   RateChange   `json:"pass_rate"`
	ScoreTests []TestResult `json:"score_tests,omitempty"`
	RateTests  []TestResult `json:"rate_tests,omitempty"`
	// CIOverlap is nil when either run lacks an interval for this metric.
	CIOverlap *bool `json:"ci_overlap,omitempty"`
	// Significant is the union of the individual significance signals.
	Significant bool `json:"significant"`
}

// ConversationComparison compares one conversation group's pass rate.
type ConversationComparison struct {
	ConversationGroup string     `json:"conversation_group"`
	PassRate          RateChange `json:"pass_rate"`
}

// Comparison is the full two-run diff, always reported chronologically
// forward: run1 is the earlier run regardless of argument order.
type Comparison struct {
	Summary       string                            `json:"summary"`
	Run1Timestamp time.Time                         `json:"run1_timestamp"`
	Run2Timestamp time.Time                         `json:"run2_timestamp"`
	Alpha         float64                           `json:"alpha"`
	Overall       OverallComparison                 `json:"overall_comparison"`
	Metrics       map[string]MetricComparison       `json:"metric_comparisons"`
	Conversations map[string]ConversationComparison `json:"conversation_comparisons"`
}

// Compare diffs two aggregated run summaries. The earlier timestamp becomes
// run1, so the call-site argument order never changes the report.
func Compare(a, b *stats.RunSummary, alpha float64) (*Comparison, error) {
	if a == nil || b == nil {
		return nil, errors.New("compare: nil run summary")
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = defaultAlpha
	}

	run1, run2 := a, b
	if b.Timestamp.Before(a.Timestamp) {
		run1, run2 = b, a
	}

	out := &Comparison{
		Run1Timestamp: run1.Timestamp,
		Run2Timestamp: run2.Timestamp,
		Alpha:         alpha,
		Overall: OverallComparison{
			PassRate:  rateChange(run1.SummaryStats.Overall.PassRate, run2.SummaryStats.Overall.PassRate),
			FailRate:  rateChange(run1.SummaryStats.Overall.FailRate, run2.SummaryStats.Overall.FailRate),
			ErrorRate: rateChange(run1.SummaryStats.Overall.ErrorRate, run2.SummaryStats.Overall.ErrorRate),
		},
		Metrics:       make(map[string]MetricComparison),
		Conversations: make(map[string]ConversationComparison),
	}

	significantMetrics := 0
	for _, id := range unionKeysMetrics(run1.SummaryStats.ByMetric, run2.SummaryStats.ByMetric) {
		mc := compareMetric(id, run1, run2, alpha)
		out.Metrics[id] = mc
		if mc.Significant {
			significantMetrics++
		}
	}

	for _, id := range unionKeysBasic(run1.SummaryStats.ByConversation, run2.SummaryStats.ByConversation) {
		s1 := run1.SummaryStats.ByConversation[id]
		s2 := run2.SummaryStats.ByConversation[id]
		out.Conversations[id] = ConversationComparison{
			ConversationGroup: id,
			PassRate:          rateChange(s1.PassRate, s2.PassRate),
		}
	}

	out.Summary = fmt.Sprintf(
		"pass rate %.1f%% -> %.1f%% (%+.1f points); %d/%d metrics shifted significantly at alpha=%.2g",
		out.Overall.PassRate.Run1, out.Overall.PassRate.Run2, out.Overall.PassRate.Absolute,
		significantMetrics, len(out.Metrics), alpha,
	)
	return out, nil
}

func compareMetric(id string, run1, run2 *stats.RunSummary, alpha float64) MetricComparison {
	s1 := run1.SummaryStats.ByMetric[id]
	s2 := run2.SummaryStats.ByMetric[id]

	mc := MetricComparison{
		Metric:   id,
		PassRate: rateChange(s1.PassRate, s2.PassRate),
	}

	scores1 := metricScores(run1.Results, id)
	scores2 := metricScores(run2.Results, id)

	if len(scores1) >= 1 && len(scores2) >= 1 {
		tt := TestResult{Name: "t_test"}
		if stat, p, err := welchTTest(scores1, scores2); err != nil {
			tt.Error = err.Error()
		} else {
			tt.Statistic, tt.PValue, tt.Significant = stat, p, p < alpha
		}
		mc.ScoreTests = append(mc.ScoreTests, tt)

		mw := TestResult{Name: "mann_whitney"}
		if stat, p, err := mannWhitneyU(scores1, scores2); err != nil {
			mw.Error = err.Error()
		} else {
			mw.Statistic, mw.PValue, mw.Significant = stat, p, p < alpha
		}
		mc.ScoreTests = append(mc.ScoreTests, mw)
	}

	if s1.Total > 0 && s2.Total > 0 {
		chi := TestResult{Name: "chi_square"}
		if stat, p, err := chiSquare2x2(s1.Pass, s1.Total-s1.Pass, s2.Pass, s2.Total-s2.Pass); err != nil {
			chi.Error = err.Error()
		} else {
			chi.Statistic, chi.PValue, chi.Significant = stat, p, p < alpha
		}
		mc.RateTests = append(mc.RateTests, chi)

		if s1.Total <= 20 || s2.Total <= 20 {
			fe := TestResult{Name: "fisher_exact"}
			if p, err := fisherExact2x2(s1.Pass, s1.Total-s1.Pass, s2.Pass, s2.Total-s2.Pass); err != nil {
				fe.Error = err.Error()
			} else {
				fe.PValue, fe.Significant = p, p < alpha
			}
			mc.RateTests = append(mc.RateTests, fe)
		}
	}

	if s1.ConfidenceInterval != nil && s2.ConfidenceInterval != nil {
		overlap := math.Max(s1.ConfidenceInterval.Low, s2.ConfidenceInterval.Low) <=
			math.Min(s1.ConfidenceInterval.High, s2.ConfidenceInterval.High)
		mc.CIOverlap = &overlap
	}

	// Union of signals: any significant p-value test, or non-overlapping
	// intervals, marks the metric as shifted.
	for _, t := range mc.ScoreTests {
		if t.Significant {
			mc.Significant = true
		}
	}
	for _, t := range mc.RateTests {
		if t.Significant {
			mc.Significant = true
		}
	}
	if mc.CIOverlap != nil && !*mc.CIOverlap {
		mc.Significant = true
	}
	return mc
}

func rateChange(r1, r2 float64) RateChange {
	out := RateChange{Run1: r1, Run2: r2, Absolute: r2 - r1}
	switch {
	case r1 != 0:
		out.Relative = (r2 - r1) / r1 * 100
	case r2 > 0:
		out.Relative = math.Inf(1)
	case r2 < 0:
		out.Relative = math.Inf(-1)
	default:
		out.Relative = 0
	}
	return out
}

func metricScores(results []conversation.Result, metricID string) []float64 {
	var out []float64
	for _, r := range results {
		if r.MetricIdentifier == metricID && r.Score != nil {
			out = append(out, *r.Score)
		}
	}
	return out
}

func unionKeysMetrics(a, b map[string]stats.MetricStats) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func unionKeysBasic(a, b map[string]stats.BasicStats) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
