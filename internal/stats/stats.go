package stats

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
)

// BasicStats are pass/fail/error counts and percentage rates for a result
// set. Rates are 0-100; an empty set yields all-zero rates.
type BasicStats struct {
	Total     int     `json:"TOTAL"`
	Pass      int     `json:"PASS"`
	Fail      int     `json:"FAIL"`
	Error     int     `json:"ERROR"`
	PassRate  float64 `json:"pass_rate"`
	FailRate  float64 `json:"fail_rate"`
	ErrorRate float64 `json:"error_rate"`
}

// ScoreStatistics summarize the non-null scores of a group.
type ScoreStatistics struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// ConfidenceInterval is a bootstrap interval around a mean score.
type ConfidenceInterval struct {
	Low             float64 `json:"low"`
	High            float64 `json:"high"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
}

// MetricStats are the per-metric grouped statistics.
type MetricStats struct {
	BasicStats
	ScoreStatistics    *ScoreStatistics    `json:"score_statistics,omitempty"`
	ConfidenceInterval *ConfidenceInterval `json:"confidence_interval,omitempty"`
}

// DetailedStats group results by metric identifier and by conversation
// group.
type DetailedStats struct {
	ByMetric       map[string]MetricStats `json:"by_metric"`
	ByConversation map[string]BasicStats  `json:"by_conversation"`
}

// SummaryStats is the nested stats block of a run summary.
type SummaryStats struct {
	Overall        BasicStats             `json:"overall"`
	ByMetric       map[string]MetricStats `json:"by_metric"`
	ByConversation map[string]BasicStats  `json:"by_conversation"`
}

// RunSummary is the persisted interchange format consumed by the run
// comparator and external tooling. Field names are a de facto schema.
type RunSummary struct {
	Timestamp        time.Time             `json:"timestamp"`
	TotalEvaluations int                   `json:"total_evaluations"`
	SummaryStats     SummaryStats          `json:"summary_stats"`
	Results          []conversation.Result `json:"results"`
}

// Options control summary computation.
type Options struct {
	ConfidenceLevel float64
	BootstrapSteps  int
	// Seed makes bootstrap resampling deterministic when non-zero.
	Seed int64
}

// CalculateBasicStats counts statuses and computes percentage rates. A pure
// function of the input; TOTAL always equals PASS+FAIL+ERROR.
func CalculateBasicStats(results []conversation.Result) BasicStats {
	out := BasicStats{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case conversation.StatusPass:
			out.Pass++
		case conversation.StatusFail:
			out.Fail++
		default:
			out.Error++
		}
	}
	if out.Total > 0 {
		out.PassRate = float64(out.Pass) / float64(out.Total) * 100
		out.FailRate = float64(out.Fail) / float64(out.Total) * 100
		out.ErrorRate = float64(out.Error) / float64(out.Total) * 100
	}
	return out
}

// CalculateDetailedStats groups results by metric and by conversation.
// Score summary statistics and confidence intervals are computed for the
// by-metric groups only, over results carrying a non-null score.
func CalculateDetailedStats(results []conversation.Result, opts Options) DetailedStats {
	byMetric := make(map[string][]conversation.Result)
	byConversation := make(map[string][]conversation.Result)
	for _, r := range results {
		byMetric[r.MetricIdentifier] = append(byMetric[r.MetricIdentifier], r)
		byConversation[r.ConversationGroup] = append(byConversation[r.ConversationGroup], r)
	}

	out := DetailedStats{
		ByMetric:       make(map[string]MetricStats, len(byMetric)),
		ByConversation: make(map[string]BasicStats, len(byConversation)),
	}

	for id, group := range byMetric {
		ms := MetricStats{BasicStats: CalculateBasicStats(group)}
		scores := Scores(group)
		if len(scores) > 0 {
			ss := summarizeScores(scores)
			ms.ScoreStatistics = &ss
			if low, mean, high, err := BootstrapInterval(scores, opts.ConfidenceLevel, opts.BootstrapSteps, opts.Seed); err == nil {
				ms.ConfidenceInterval = &ConfidenceInterval{
					Low:             low,
					High:            high,
					Mean:            mean,
					ConfidenceLevel: opts.ConfidenceLevel,
				}
			}
		}
		out.ByMetric[id] = ms
	}
	for id, group := range byConversation {
		out.ByConversation[id] = CalculateBasicStats(group)
	}
	return out
}

// Summarize builds the persisted run summary for a completed result list.
func Summarize(results []conversation.Result, opts Options, timestamp time.Time) *RunSummary {
	detailed := CalculateDetailedStats(results, opts)
	return &RunSummary{
		Timestamp:        timestamp,
		TotalEvaluations: len(results),
		SummaryStats: SummaryStats{
			Overall:        CalculateBasicStats(results),
			ByMetric:       detailed.ByMetric,
			ByConversation: detailed.ByConversation,
		},
		Results: results,
	}
}

// Scores extracts the non-null scores of a result group, in order.
func Scores(results []conversation.Result) []float64 {
	var out []float64
	for _, r := range results {
		if r.Score != nil {
			out = append(out, *r.Score)
		}
	}
	return out
}

func summarizeScores(scores []float64) ScoreStatistics {
	out := ScoreStatistics{Count: len(scores)}
	if len(scores) == 0 {
		return out
	}

	out.Min = scores[0]
	out.Max = scores[0]
	sum := 0.0
	for _, s := range scores {
		sum += s
		if s < out.Min {
			out.Min = s
		}
		if s > out.Max {
			out.Max = s
		}
	}
	out.Mean = sum / float64(len(scores))
	out.Median = Median(scores)
	out.Std = SampleStd(scores, out.Mean)
	return out
}

// Median returns the middle value of the input (average of the two middle
// values for even counts). The input is not modified.
func Median(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// SampleStd is the sample standard deviation, 0.0 for fewer than 2 samples.
func SampleStd(scores []float64, mean float64) float64 {
	if len(scores) < 2 {
		return 0.0
	}
	sum := 0.0
	for _, s := range scores {
		d := s - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(scores)-1))
}

// BootstrapInterval resamples with replacement `steps` times and returns the
// percentile interval of the resample means alongside the point-estimate
// mean of the original sample. A single-element input collapses to
// low = mean = high.
func BootstrapInterval(scores []float64, confidence float64, steps int, seed int64) (low, mean, high float64, err error) {
	if len(scores) == 0 {
		return 0, 0, 0, errors.New("stats: bootstrap: empty sample")
	}
	if confidence < 0 || confidence > 100 {
		return 0, 0, 0, fmt.Errorf("stats: bootstrap: confidence must be within [0,100] (got %v)", confidence)
	}
	if steps <= 0 {
		steps = 1000
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	mean = sum / float64(len(scores))

	if len(scores) == 1 {
		return mean, mean, mean, nil
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	means := make([]float64, steps)
	for i := 0; i < steps; i++ {
		resampleSum := 0.0
		for range scores {
			resampleSum += scores[rng.Intn(len(scores))]
		}
		means[i] = resampleSum / float64(len(scores))
	}
	sort.Float64s(means)

	tail := (100 - confidence) / 2
	low = Percentile(means, tail)
	high = Percentile(means, 100-tail)
	return low, mean, high, nil
}

// Percentile computes the p-th percentile of sorted data with linear
// interpolation between ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lowIdx := int(math.Floor(pos))
	frac := pos - float64(lowIdx)
	if lowIdx+1 >= len(sorted) {
		return sorted[lowIdx]
	}
	return sorted[lowIdx]*(1-frac) + sorted[lowIdx+1]*frac
}
