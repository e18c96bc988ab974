package ci

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
	"github.com/stellarlinkco/agent-eval/internal/stats"
)

// DetectCI returns true if running in GitHub Actions.
func DetectCI() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GITHUB_ACTIONS")), "true")
}

// SetOutput sets a GitHub Actions output variable.
func SetOutput(name, value string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if path := strings.TrimSpace(os.Getenv("GITHUB_OUTPUT")); path != "" {
		_ = appendGitHubCommandFile(path, fmt.Sprintf("%s<<EOF\n%s\nEOF\n", name, value))
		return
	}
	fmt.Printf("::set-output name=%s::%s\n", name, escapeCommandValue(value))
}

// AddAnnotation writes a GitHub Actions annotation (error, warning, notice).
func AddAnnotation(w io.Writer, level, message string) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	switch lvl {
	case "error", "warning", "notice":
	default:
		lvl = "notice"
	}
	fmt.Fprintf(w, "::%s::%s\n", lvl, escapeCommandValue(message))
}

// AnnotateResults emits one annotation per non-passing result: failed
// evaluations as errors, errored evaluations as warnings.
func AnnotateResults(w io.Writer, results []conversation.Result) {
	for _, r := range results {
		switch r.Status {
		case conversation.StatusPass:
			continue
		case conversation.StatusFail:
			msg := fmt.Sprintf("group=%s turn=%s metric=%s score=%s threshold=%s reason=%s",
				r.ConversationGroup, r.TurnID, r.MetricIdentifier,
				floatLabel(r.Score), floatLabel(r.Threshold), r.Reason)
			AddAnnotation(w, "error", msg)
		default:
			msg := fmt.Sprintf("group=%s turn=%s metric=%s error=%s",
				r.ConversationGroup, r.TurnID, r.MetricIdentifier, r.Reason)
			AddAnnotation(w, "warning", msg)
		}
	}
}

// StartGroup starts a collapsible group in GitHub Actions logs.
func StartGroup(name string) {
	fmt.Printf("::group::%s\n", escapeCommandValue(name))
}

// EndGroup ends a collapsible group.
func EndGroup() {
	fmt.Println("::endgroup::")
}

// SetJobSummary writes markdown to the job summary.
func SetJobSummary(markdown string) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_STEP_SUMMARY"))
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if !strings.HasSuffix(markdown, "\n") {
		markdown += "\n"
	}
	return appendGitHubCommandFile(path, markdown)
}

// JobSummaryMarkdown renders a run summary as a markdown table for the
// GitHub Actions job summary.
func JobSummaryMarkdown(summary *stats.RunSummary) string {
	if summary == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Agent evaluation\n\n")
	overall := summary.SummaryStats.Overall
	fmt.Fprintf(&sb, "Total: %d | Pass: %d | Fail: %d | Error: %d | Pass rate: %.1f%%\n\n",
		overall.Total, overall.Pass, overall.Fail, overall.Error, overall.PassRate)

	if len(summary.SummaryStats.ByMetric) > 0 {
		sb.WriteString("| Metric | Total | Pass | Fail | Error | Pass rate |\n")
		sb.WriteString("|---|---|---|---|---|---|\n")
		for _, id := range sortedMetricKeys(summary.SummaryStats.ByMetric) {
			ms := summary.SummaryStats.ByMetric[id]
			fmt.Fprintf(&sb, "| %s | %d | %d | %d | %d | %.1f%% |\n",
				id, ms.Total, ms.Pass, ms.Fail, ms.Error, ms.PassRate)
		}
	}
	return sb.String()
}

func sortedMetricKeys(m map[string]stats.MetricStats) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func floatLabel(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}

func appendGitHubCommandFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

func escapeCommandValue(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}
