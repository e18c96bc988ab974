package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-eval/internal/agent"
	"github.com/stellarlinkco/agent-eval/internal/ci"
	"github.com/stellarlinkco/agent-eval/internal/config"
	"github.com/stellarlinkco/agent-eval/internal/conversation"
	"github.com/stellarlinkco/agent-eval/internal/metrics"
	"github.com/stellarlinkco/agent-eval/internal/orchestrator"
	"github.com/stellarlinkco/agent-eval/internal/report"
	"github.com/stellarlinkco/agent-eval/internal/scripts"
	"github.com/stellarlinkco/agent-eval/internal/stats"
	"github.com/stellarlinkco/agent-eval/internal/store"
)

var errEvaluationsFailed = errors.New("agent-eval: evaluations failed")

type runOptions struct {
	output    string
	outputDir string
	noSave    bool
	seed      int64
	ciMode    bool
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <conversations.yaml> [more.yaml...]",
		Short: "Run conversation evaluations",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			st.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluations(cmd, st, &opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.output, "output", "", "report format: txt|csv|json (overrides config)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "report directory (overrides config)")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "skip persisting the run to storage")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "bootstrap seed for reproducible intervals (0 = random)")
	cmd.Flags().BoolVar(&opts.ciMode, "ci", false, "force CI mode (annotations and job summary)")

	return cmd
}

func runEvaluations(cmd *cobra.Command, st *cliState, opts *runOptions, files []string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("run: nil options")
	}

	format, err := resolveReportFormat(opts.output, st.cfg.Output.Format)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	outputDir := strings.TrimSpace(opts.outputDir)
	if outputDir == "" {
		outputDir = st.cfg.Output.Dir
	}

	judgeProvider, err := defaultProviderFromConfig(st.cfg)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	registry := metrics.NewRegistry(metrics.Deps{
		Judge:   judgeProvider,
		Scripts: scripts.NewRunner(st.cfg.Scripts.Timeout),
	})

	loadOpts := conversation.ValidateOptions{
		Requirements: registry.Requirements(),
		AgentEnabled: st.cfg.Agent.Enabled,
	}

	var convs []conversation.Conversation
	for _, file := range files {
		loaded, err := conversation.LoadFromFile(file, loadOpts)
		if err != nil {
			return err
		}
		convs = append(convs, loaded...)
	}
	if err := conversation.Validate(convs, loadOpts); err != nil {
		return fmt.Errorf("run: combined suite: %w", err)
	}

	var agentClient orchestrator.AgentClient
	if st.cfg.Agent.Enabled {
		agentClient = agent.NewClient(st.cfg.Agent.Endpoint,
			agent.WithTimeout(st.cfg.Agent.Timeout),
			agent.WithProviderModel(st.cfg.Agent.Provider, st.cfg.Agent.Model),
		)
	}

	orch := orchestrator.New(agentClient, registry, scripts.NewRunner(st.cfg.Scripts.Timeout), orchestrator.Config{
		AgentEnabled: st.cfg.Agent.Enabled,
		Defaults:     st.cfg.Metrics.Defaults,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := orch.Run(ctx, convs)
	if err != nil {
		return err
	}

	summary := stats.Summarize(results, stats.Options{
		ConfidenceLevel: st.cfg.Stats.ConfidenceLevel,
		BootstrapSteps:  st.cfg.Stats.BootstrapSteps,
		Seed:            opts.seed,
	}, time.Now().UTC())

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprint(out, report.Text(summary))

	path, err := report.Write(summary, outputDir, format)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Report written to %s\n", path)

	if !opts.noSave {
		runID, err := saveRunToStore(ctx, st, summary)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Run saved as %s\n", runID)
	}

	if opts.ciMode || ci.DetectCI() {
		ci.AnnotateResults(out, results)
		if err := ci.SetJobSummary(ci.JobSummaryMarkdown(summary)); err != nil {
			_, _ = fmt.Fprintf(stderrWriter, "run: write job summary: %v\n", err)
		}
	}

	overall := summary.SummaryStats.Overall
	if overall.Fail > 0 || overall.Error > 0 {
		return errEvaluationsFailed
	}
	return nil
}

func saveRunToStore(ctx context.Context, st *cliState, summary *stats.RunSummary) (string, error) {
	if st == nil || st.cfg == nil {
		return "", fmt.Errorf("run: missing config (internal error)")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stor, err := openStore(st.cfg)
	if err != nil {
		return "", fmt.Errorf("run: open store: %w", err)
	}
	defer stor.Close()

	runID, err := newRunID()
	if err != nil {
		return "", fmt.Errorf("run: generate run id: %w", err)
	}

	overall := summary.SummaryStats.Overall
	record := &store.RunRecord{
		ID:               runID,
		CreatedAt:        summary.Timestamp,
		TotalEvaluations: summary.TotalEvaluations,
		Pass:             overall.Pass,
		Fail:             overall.Fail,
		Error:            overall.Error,
		Summary:          summary,
	}
	if err := stor.SaveRun(ctx, record); err != nil {
		return "", fmt.Errorf("run: save run: %w", err)
	}
	return runID, nil
}

func newRunID() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("run_%s_%x", time.Now().UTC().Format("20060102T150405Z"), buf), nil
}
