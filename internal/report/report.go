package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
	"github.com/stellarlinkco/agent-eval/internal/stats"
)

// Format selects the file rendering for a run report.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
)

// ParseFormat normalizes a format string, empty for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV
	case "json":
		return FormatJSON
	case "txt", "text":
		return FormatTXT
	default:
		return ""
	}
}

// csvColumns is the fixed column order of the per-result CSV report.
var csvColumns = []string{
	"conversation_group",
	"turn_id",
	"metric",
	"conversation_id",
	"result",
	"score",
	"threshold",
	"reason",
	"query",
	"response",
	"execution_time",
}

// Render serializes a run summary in the given format.
func Render(summary *stats.RunSummary, format Format) ([]byte, error) {
	if summary == nil {
		return nil, errors.New("report: nil run summary")
	}
	switch format {
	case FormatCSV:
		return renderCSV(summary.Results)
	case FormatJSON:
		return renderJSON(summary)
	case FormatTXT:
		return []byte(Text(summary)), nil
	default:
		return nil, fmt.Errorf("report: unknown format %q", format)
	}
}

// Write renders the summary and writes it under dir as
// results_<timestamp>.<ext>, returning the file path.
func Write(summary *stats.RunSummary, dir string, format Format) (string, error) {
	b, err := Render(summary, format)
	if err != nil {
		return "", err
	}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create output dir: %w", err)
	}

	name := fmt.Sprintf("results_%s.%s", summary.Timestamp.UTC().Format("20060102T150405Z"), format)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	return path, nil
}

func renderCSV(results []conversation.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvColumns); err != nil {
		return nil, fmt.Errorf("report: write csv header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.ConversationGroup,
			r.TurnID,
			r.MetricIdentifier,
			r.ConversationID,
			string(r.Status),
			floatField(r.Score),
			floatField(r.Threshold),
			r.Reason,
			r.Query,
			r.Response,
			fmt.Sprintf("%.3f", r.ExecutionTime),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("report: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("report: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderJSON(summary *stats.RunSummary) ([]byte, error) {
	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: marshal summary: %w", err)
	}
	return append(b, '\n'), nil
}

// Text renders a human-readable run summary.
func Text(summary *stats.RunSummary) string {
	if summary == nil {
		return ""
	}

	var buf bytes.Buffer
	overall := summary.SummaryStats.Overall
	fmt.Fprintf(&buf, "Run: %s\n", summary.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&buf, "Evaluations: %d pass=%d fail=%d error=%d pass_rate=%.1f%%\n\n",
		overall.Total, overall.Pass, overall.Fail, overall.Error, overall.PassRate)

	if len(summary.SummaryStats.ByMetric) > 0 {
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "METRIC\tTOTAL\tPASS\tFAIL\tERROR\tPASS%\tMEAN\tCI")
		for _, id := range sortedKeys(summary.SummaryStats.ByMetric) {
			ms := summary.SummaryStats.ByMetric[id]
			mean := "-"
			ci := "-"
			if ms.ScoreStatistics != nil {
				mean = fmt.Sprintf("%.3f", ms.ScoreStatistics.Mean)
			}
			if ms.ConfidenceInterval != nil {
				ci = fmt.Sprintf("[%.3f, %.3f]", ms.ConfidenceInterval.Low, ms.ConfidenceInterval.High)
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.1f\t%s\t%s\n",
				id, ms.Total, ms.Pass, ms.Fail, ms.Error, ms.PassRate, mean, ci)
		}
		_ = tw.Flush()
		buf.WriteByte('\n')
	}

	if len(summary.SummaryStats.ByConversation) > 0 {
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CONVERSATION\tTOTAL\tPASS\tFAIL\tERROR\tPASS%")
		ids := make([]string, 0, len(summary.SummaryStats.ByConversation))
		for id := range summary.SummaryStats.ByConversation {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			bs := summary.SummaryStats.ByConversation[id]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.1f\n",
				id, bs.Total, bs.Pass, bs.Fail, bs.Error, bs.PassRate)
		}
		_ = tw.Flush()
		buf.WriteByte('\n')
	}

	return buf.String()
}

func sortedKeys(m map[string]stats.MetricStats) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func floatField(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}
