package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-eval/internal/compare"
	"github.com/stellarlinkco/agent-eval/internal/config"
	"github.com/stellarlinkco/agent-eval/internal/stats"
	"github.com/stellarlinkco/agent-eval/internal/store"
)

type compareOptions struct {
	alpha float64
	json  bool
}

func newCompareCmd(st *cliState) *cobra.Command {
	var opts compareOptions

	cmd := &cobra.Command{
		Use:   "compare <run-id-1> <run-id-2>",
		Short: "Compare two stored evaluation runs",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(st.configPath)
			if err != nil {
				return err
			}
			st.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, st, &opts, args[0], args[1])
		},
	}

	cmd.Flags().Float64Var(&opts.alpha, "alpha", 0, "significance level (overrides config)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "emit the comparison as JSON")

	return cmd
}

func runCompare(cmd *cobra.Command, st *cliState, opts *compareOptions, id1, id2 string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("compare: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("compare: nil options")
	}

	id1 = strings.TrimSpace(id1)
	id2 = strings.TrimSpace(id2)
	if id1 == "" || id2 == "" {
		return fmt.Errorf("compare: missing run id")
	}
	if id1 == id2 {
		return fmt.Errorf("compare: run ids must differ")
	}

	alpha := st.cfg.Stats.Alpha
	if opts.alpha > 0 {
		if opts.alpha >= 1 {
			return fmt.Errorf("compare: alpha must be in (0,1) (got %v)", opts.alpha)
		}
		alpha = opts.alpha
	}

	stor, err := openStore(st.cfg)
	if err != nil {
		return err
	}
	defer stor.Close()

	summary1, err := loadRunSummary(cmd, stor, id1)
	if err != nil {
		return err
	}
	summary2, err := loadRunSummary(cmd, stor, id2)
	if err != nil {
		return err
	}

	result, err := compare.Compare(summary1, summary2, alpha)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.json {
		b, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("compare: marshal json: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return nil
	}

	_, _ = fmt.Fprint(out, formatComparisonText(result))
	return nil
}

func loadRunSummary(cmd *cobra.Command, stor store.Store, id string) (*stats.RunSummary, error) {
	run, err := stor.GetRun(cmd.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("compare: run %q not found", id)
		}
		return nil, err
	}
	if run.Summary == nil {
		return nil, fmt.Errorf("compare: run %q has no stored summary", id)
	}
	return run.Summary, nil
}
