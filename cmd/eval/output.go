package main

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/stellarlinkco/agent-eval/internal/compare"
	"github.com/stellarlinkco/agent-eval/internal/report"
)

func resolveReportFormat(flagValue string, configValue string) (report.Format, error) {
	if strings.TrimSpace(flagValue) != "" {
		out := report.ParseFormat(flagValue)
		if out == "" {
			return "", fmt.Errorf("invalid --output %q (expected txt|csv|json)", flagValue)
		}
		return out, nil
	}
	if out := report.ParseFormat(configValue); out != "" {
		return out, nil
	}
	return report.FormatTXT, nil
}

func formatComparisonText(cmp *compare.Comparison) string {
	if cmp == nil {
		return ""
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Comparing %s (run1) vs %s (run2)\n",
		cmp.Run1Timestamp.UTC().Format("2006-01-02 15:04:05"),
		cmp.Run2Timestamp.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&buf, "%s\n\n", cmp.Summary)

	fmt.Fprintf(&buf, "Overall pass rate: %.1f%% -> %.1f%% (%+.1f)\n", cmp.Overall.PassRate.Run1, cmp.Overall.PassRate.Run2, cmp.Overall.PassRate.Absolute)
	fmt.Fprintf(&buf, "Overall error rate: %.1f%% -> %.1f%% (%+.1f)\n\n", cmp.Overall.ErrorRate.Run1, cmp.Overall.ErrorRate.Run2, cmp.Overall.ErrorRate.Absolute)

	if len(cmp.Metrics) > 0 {
		ids := make([]string, 0, len(cmp.Metrics))
		for id := range cmp.Metrics {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "METRIC\tPASS1%\tPASS2%\tΔ\tCI_OVERLAP\tSIGNIFICANT\tTESTS")
		for _, id := range ids {
			mc := cmp.Metrics[id]
			overlap := "-"
			if mc.CIOverlap != nil {
				overlap = fmt.Sprintf("%v", *mc.CIOverlap)
			}
			fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%+.1f\t%s\t%v\t%s\n",
				id, mc.PassRate.Run1, mc.PassRate.Run2, mc.PassRate.Absolute,
				overlap, mc.Significant, testsLabel(mc))
		}
		_ = tw.Flush()
		buf.WriteByte('\n')
	}

	if len(cmp.Conversations) > 0 {
		ids := make([]string, 0, len(cmp.Conversations))
		for id := range cmp.Conversations {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CONVERSATION\tPASS1%\tPASS2%\tΔ")
		for _, id := range ids {
			cc := cmp.Conversations[id]
			fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%+.1f\n", id, cc.PassRate.Run1, cc.PassRate.Run2, cc.PassRate.Absolute)
		}
		_ = tw.Flush()
		buf.WriteByte('\n')
	}

	return buf.String()
}

func testsLabel(mc compare.MetricComparison) string {
	var parts []string
	for _, t := range append(append([]compare.TestResult(nil), mc.ScoreTests...), mc.RateTests...) {
		if t.Error != "" {
			parts = append(parts, fmt.Sprintf("%s=error", t.Name))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%.3g", t.Name, t.PValue))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
