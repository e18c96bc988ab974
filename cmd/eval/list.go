package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
	"github.com/stellarlinkco/agent-eval/internal/metrics"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered metrics",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newListMetricsCmd())
	return cmd
}

func newListMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List registered evaluation metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs := metrics.NewRegistry(metrics.Deps{}).Requirements()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "METRIC\tSCOPE\tREQUIRED_FIELDS")
			writeMetricRows(tw, reqs.TurnMetrics, "turn")
			writeMetricRows(tw, reqs.ConversationMetrics, "conversation")
			return tw.Flush()
		},
	}
}

func writeMetricRows(tw *tabwriter.Writer, reqs map[string][]conversation.Field, scope string) {
	ids := make([]string, 0, len(reqs))
	for id := range reqs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		fields := make([]string, 0, len(reqs[id]))
		for _, f := range reqs[id] {
			fields = append(fields, string(f))
		}
		label := strings.Join(fields, ",")
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", id, scope, label)
	}
}
