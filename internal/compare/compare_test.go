package compare

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
	"github.com/stellarlinkco/agent-eval/internal/stats"
)

func summaryFromScores(ts time.Time, metric string, scores []float64, threshold float64) *stats.RunSummary {
	var results []conversation.Result
	for _, s := range scores {
		s := s
		status := conversation.StatusFail
		if s >= threshold {
			status = conversation.StatusPass
		}
		results = append(results, conversation.Result{
			ConversationGroup: "g1",
			MetricIdentifier:  metric,
			Status:            status,
			Score:             &s,
		})
	}
	return stats.Summarize(results, stats.Options{ConfidenceLevel: 95, BootstrapSteps: 200, Seed: 3}, ts)
}

func TestCompare_ArgumentOrderIndependence(t *testing.T) {
	t.Parallel()

	earlier := summaryFromScores(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "m", []float64{0.2, 0.3, 0.4}, 0.5)
	later := summaryFromScores(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "m", []float64{0.8, 0.9, 1.0}, 0.5)

	forward, err := Compare(earlier, later, 0.05)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	reversed, err := Compare(later, earlier, 0.05)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if !forward.Run1Timestamp.Equal(reversed.Run1Timestamp) || !forward.Run2Timestamp.Equal(reversed.Run2Timestamp) {
		t.Fatalf("timestamps differ by argument order: %v/%v vs %v/%v",
			forward.Run1Timestamp, forward.Run2Timestamp, reversed.Run1Timestamp, reversed.Run2Timestamp)
	}
	if forward.Run1Timestamp.After(forward.Run2Timestamp) {
		t.Fatalf("run1 must be the earlier run")
	}
	if forward.Overall.PassRate != reversed.Overall.PassRate {
		t.Fatalf("pass rate differs by argument order: %+v vs %+v", forward.Overall.PassRate, reversed.Overall.PassRate)
	}
	if forward.Overall.PassRate.Run1 != 0 || forward.Overall.PassRate.Run2 != 100 {
		t.Fatalf("pass rate: %+v", forward.Overall.PassRate)
	}
}

func TestCompare_SeparatedSamplesSignificant(t *testing.T) {
	t.Parallel()

	run1 := summaryFromScores(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "m",
		[]float64{0.10, 0.12, 0.11, 0.13, 0.09, 0.10, 0.12, 0.11}, 0.5)
	run2 := summaryFromScores(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "m",
		[]float64{0.90, 0.92, 0.91, 0.93, 0.89, 0.90, 0.92, 0.91}, 0.5)

	cmp, err := Compare(run1, run2, 0.05)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	mc, ok := cmp.Metrics["m"]
	if !ok {
		t.Fatalf("metric comparison missing")
	}

	var tTest, mw *TestResult
	for i := range mc.ScoreTests {
		switch mc.ScoreTests[i].Name {
		case "t_test":
			tTest = &mc.ScoreTests[i]
		case "mann_whitney":
			mw = &mc.ScoreTests[i]
		}
	}
	if tTest == nil || mw == nil {
		t.Fatalf("score tests: %+v", mc.ScoreTests)
	}
	if tTest.Error != "" || !tTest.Significant {
		t.Fatalf("t_test on separated samples: %+v", *tTest)
	}
	if mw.Error != "" || !mw.Significant {
		t.Fatalf("mann_whitney on separated samples: %+v", *mw)
	}
	if !mc.Significant {
		t.Fatalf("metric must be significant")
	}
	if mc.CIOverlap == nil || *mc.CIOverlap {
		t.Fatalf("intervals must not overlap: %+v", mc.CIOverlap)
	}
}

func TestCompare_IdenticalSamplesNotSignificant(t *testing.T) {
	t.Parallel()

	scores := []float64{0.4, 0.5, 0.6, 0.5, 0.4, 0.6}
	run1 := summaryFromScores(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "m", scores, 0.45)
	run2 := summaryFromScores(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "m", scores, 0.45)

	cmp, err := Compare(run1, run2, 0.05)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	mc := cmp.Metrics["m"]
	for _, tr := range mc.ScoreTests {
		if tr.Error != "" {
			t.Fatalf("%s error: %s", tr.Name, tr.Error)
		}
		if tr.Significant {
			t.Fatalf("%s significant for identical samples (p=%v)", tr.Name, tr.PValue)
		}
	}
	for _, tr := range mc.RateTests {
		if tr.Significant {
			t.Fatalf("%s significant for identical samples (p=%v)", tr.Name, tr.PValue)
		}
	}
	if mc.CIOverlap == nil || !*mc.CIOverlap {
		t.Fatalf("identical intervals must overlap")
	}
	if mc.Significant {
		t.Fatalf("metric must not be significant")
	}
}

func TestCompare_SmallRunsGetFisherExact(t *testing.T) {
	t.Parallel()

	run1 := summaryFromScores(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "m", []float64{1, 1, 0, 0}, 0.5)
	run2 := summaryFromScores(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "m", []float64{1, 1, 1, 0}, 0.5)

	cmp, err := Compare(run1, run2, 0.05)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	mc := cmp.Metrics["m"]

	names := make(map[string]bool)
	for _, tr := range mc.RateTests {
		names[tr.Name] = true
	}
	if !names["chi_square"] || !names["fisher_exact"] {
		t.Fatalf("rate tests: %+v", mc.RateTests)
	}
}

func TestCompare_DegenerateTestErrorIsolated(t *testing.T) {
	t.Parallel()

	// A single score per run cannot support a t test; the error must land in
	// the test result while the rest of the comparison proceeds.
	run1 := summaryFromScores(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "m", []float64{1}, 0.5)
	run2 := summaryFromScores(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "m", []float64{0}, 0.5)

	cmp, err := Compare(run1, run2, 0.05)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	mc := cmp.Metrics["m"]

	var tTest *TestResult
	for i := range mc.ScoreTests {
		if mc.ScoreTests[i].Name == "t_test" {
			tTest = &mc.ScoreTests[i]
		}
	}
	if tTest == nil || tTest.Error == "" {
		t.Fatalf("t_test must carry an error for n=1 samples: %+v", mc.ScoreTests)
	}
	if len(mc.RateTests) == 0 {
		t.Fatalf("rate tests must still run")
	}
}

func TestCompare_NilAndAlphaDefaults(t *testing.T) {
	t.Parallel()

	if _, err := Compare(nil, &stats.RunSummary{}, 0.05); err == nil {
		t.Fatalf("expected error for nil summary")
	}

	run1 := summaryFromScores(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "m", []float64{1, 0}, 0.5)
	run2 := summaryFromScores(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), "m", []float64{1, 0}, 0.5)
	cmp, err := Compare(run1, run2, 0)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if cmp.Alpha != 0.05 {
		t.Fatalf("alpha default: got %v", cmp.Alpha)
	}
	if !strings.Contains(cmp.Summary, "pass rate") {
		t.Fatalf("summary: got %q", cmp.Summary)
	}
}

func TestRateChange_MarshalInfinity(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(rateChange(0, 50))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"relative":"+Inf"`) {
		t.Fatalf("marshal +Inf: got %s", raw)
	}

	raw, err = json.Marshal(rateChange(0, -50))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"relative":"-Inf"`) {
		t.Fatalf("marshal -Inf: got %s", raw)
	}

	rc := rateChange(50, 75)
	if rc.Absolute != 25 || rc.Relative != 50 {
		t.Fatalf("finite change: %+v", rc)
	}
	if math.IsInf(rc.Relative, 0) {
		t.Fatalf("finite change must stay finite")
	}
}
