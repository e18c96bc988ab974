package metrics

import (
	"context"
	"strings"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
)

// ScriptMetric runs a turn's verify script. Exit 0 scores 1.0, a clean
// nonzero exit scores 0.0; an execution failure (missing, not executable,
// timeout) surfaces as a nil score so it becomes ERROR, not FAIL.
type ScriptMetric struct {
	Runner ScriptRunner
}

func (m *ScriptMetric) Evaluate(ctx context.Context, req *Request) (*float64, string) {
	if m == nil || m.Runner == nil {
		return nil, "no script runner configured"
	}
	turn := req.Turn()
	if turn == nil {
		return nil, "no turn data"
	}
	path := strings.TrimSpace(turn.VerifyScript)
	if path == "" {
		return nil, "no verify_script for turn"
	}

	ok, err := m.Runner.Run(ctx, path)
	if err != nil {
		return nil, err.Error()
	}
	if !ok {
		return conversation.Float(0.0), "verify script failed"
	}
	return conversation.Float(1.0), "verify script passed"
}
