package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
)

func result(group, metric string, status conversation.Status, score *float64) conversation.Result {
	return conversation.Result{
		ConversationGroup: group,
		MetricIdentifier:  metric,
		Status:            status,
		Score:             score,
	}
}

func TestCalculateBasicStats(t *testing.T) {
	t.Parallel()

	results := []conversation.Result{
		result("g1", "m", conversation.StatusPass, conversation.Float(1)),
		result("g1", "m", conversation.StatusPass, conversation.Float(1)),
		result("g1", "m", conversation.StatusFail, conversation.Float(0)),
		result("g1", "m", conversation.StatusError, nil),
	}
	got := CalculateBasicStats(results)

	if got.Total != got.Pass+got.Fail+got.Error {
		t.Fatalf("TOTAL != PASS+FAIL+ERROR: %+v", got)
	}
	if got.Total != 4 || got.Pass != 2 || got.Fail != 1 || got.Error != 1 {
		t.Fatalf("counts: %+v", got)
	}
	if got.PassRate != 50.0 || got.FailRate != 25.0 || got.ErrorRate != 25.0 {
		t.Fatalf("rates: %+v", got)
	}
}

func TestCalculateBasicStats_Empty(t *testing.T) {
	t.Parallel()

	got := CalculateBasicStats(nil)
	if got.Total != 0 || got.PassRate != 0 || got.FailRate != 0 || got.ErrorRate != 0 {
		t.Fatalf("empty set: %+v", got)
	}
}

func TestMedian(t *testing.T) {
	t.Parallel()

	if got := Median([]float64{3, 1, 2}); got != 2 {
		t.Fatalf("odd: got %v", got)
	}
	if got := Median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Fatalf("even: got %v", got)
	}
	if got := Median(nil); got != 0 {
		t.Fatalf("empty: got %v", got)
	}

	// Input must not be reordered.
	in := []float64{3, 1, 2}
	Median(in)
	if in[0] != 3 || in[1] != 1 || in[2] != 2 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestSampleStd(t *testing.T) {
	t.Parallel()

	if got := SampleStd([]float64{5}, 5); got != 0.0 {
		t.Fatalf("n=1: got %v", got)
	}
	if got := SampleStd(nil, 0); got != 0.0 {
		t.Fatalf("n=0: got %v", got)
	}

	scores := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	got := SampleStd(scores, 5)
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("std: got %v want %v", got, want)
	}
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	sorted := []float64{1, 2, 3, 4}
	if got := Percentile(sorted, 0); got != 1 {
		t.Fatalf("p0: got %v", got)
	}
	if got := Percentile(sorted, 100); got != 4 {
		t.Fatalf("p100: got %v", got)
	}
	if got := Percentile(sorted, 50); got != 2.5 {
		t.Fatalf("p50: got %v", got)
	}
	if got := Percentile(sorted, 25); got != 1.75 {
		t.Fatalf("p25: got %v", got)
	}
}

func TestBootstrapInterval(t *testing.T) {
	t.Parallel()

	low, mean, high, err := BootstrapInterval([]float64{0.7}, 95, 100, 42)
	if err != nil {
		t.Fatalf("BootstrapInterval: %v", err)
	}
	if low != 0.7 || mean != 0.7 || high != 0.7 {
		t.Fatalf("single element must collapse: %v %v %v", low, mean, high)
	}

	scores := []float64{0.1, 0.4, 0.5, 0.6, 0.9}
	low1, mean1, high1, err := BootstrapInterval(scores, 95, 500, 7)
	if err != nil {
		t.Fatalf("BootstrapInterval: %v", err)
	}
	low2, mean2, high2, err := BootstrapInterval(scores, 95, 500, 7)
	if err != nil {
		t.Fatalf("BootstrapInterval: %v", err)
	}
	if low1 != low2 || mean1 != mean2 || high1 != high2 {
		t.Fatalf("same seed must reproduce: (%v %v %v) vs (%v %v %v)", low1, mean1, high1, low2, mean2, high2)
	}
	if !(low1 <= mean1 && mean1 <= high1) {
		t.Fatalf("interval ordering: %v %v %v", low1, mean1, high1)
	}
	if mean1 != 0.5 {
		t.Fatalf("point estimate: got %v", mean1)
	}
}

func TestBootstrapInterval_Invalid(t *testing.T) {
	t.Parallel()

	if _, _, _, err := BootstrapInterval(nil, 95, 100, 1); err == nil {
		t.Fatalf("expected error for empty sample")
	}
	if _, _, _, err := BootstrapInterval([]float64{1, 2}, 150, 100, 1); err == nil {
		t.Fatalf("expected error for confidence out of range")
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	results := []conversation.Result{
		result("g1", "response_eval:sub-string", conversation.StatusPass, conversation.Float(1)),
		result("g1", "response_eval:sub-string", conversation.StatusFail, conversation.Float(0)),
		result("g2", "tool_eval", conversation.StatusError, nil),
	}
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	summary := Summarize(results, Options{ConfidenceLevel: 95, BootstrapSteps: 200, Seed: 11}, ts)
	if summary.Timestamp != ts {
		t.Fatalf("timestamp: got %v", summary.Timestamp)
	}
	if summary.TotalEvaluations != 3 {
		t.Fatalf("total evaluations: got %d", summary.TotalEvaluations)
	}
	if summary.SummaryStats.Overall.Total != 3 {
		t.Fatalf("overall total: got %d", summary.SummaryStats.Overall.Total)
	}

	sub, ok := summary.SummaryStats.ByMetric["response_eval:sub-string"]
	if !ok {
		t.Fatalf("by_metric missing sub-string group")
	}
	if sub.Pass != 1 || sub.Fail != 1 {
		t.Fatalf("sub-string counts: %+v", sub.BasicStats)
	}
	if sub.ScoreStatistics == nil || sub.ScoreStatistics.Count != 2 || sub.ScoreStatistics.Mean != 0.5 {
		t.Fatalf("sub-string score stats: %+v", sub.ScoreStatistics)
	}
	if sub.ConfidenceInterval == nil || sub.ConfidenceInterval.ConfidenceLevel != 95 {
		t.Fatalf("sub-string confidence interval: %+v", sub.ConfidenceInterval)
	}

	tool, ok := summary.SummaryStats.ByMetric["tool_eval"]
	if !ok {
		t.Fatalf("by_metric missing tool_eval group")
	}
	if tool.Error != 1 {
		t.Fatalf("tool_eval counts: %+v", tool.BasicStats)
	}
	// No scores means no score statistics block at all.
	if tool.ScoreStatistics != nil || tool.ConfidenceInterval != nil {
		t.Fatalf("tool_eval must have no score stats: %+v", tool)
	}

	if got := summary.SummaryStats.ByConversation["g1"].Total; got != 2 {
		t.Fatalf("g1 total: got %d", got)
	}
	if got := summary.SummaryStats.ByConversation["g2"].Error; got != 1 {
		t.Fatalf("g2 error: got %d", got)
	}
}
