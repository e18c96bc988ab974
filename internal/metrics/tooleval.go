package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
)

// evaluateToolCalls structurally compares the expected list-of-sequences of
// tool calls against the calls the agent actually made. Every mismatch kind
// (count, order, name, argument) is a FAIL with score 0.0; the comparison
// itself never errors.
func evaluateToolCalls(_ context.Context, req *Request) (*float64, string) {
	turn := req.Turn()
	if turn == nil {
		return nil, "no turn data"
	}
	if len(turn.ExpectedToolCalls) == 0 {
		return nil, "no expected_tool_calls for turn"
	}

	if ok, reason := compareToolCalls(turn.ExpectedToolCalls, turn.ToolCalls); !ok {
		return conversation.Float(0.0), reason
	}
	return conversation.Float(1.0), "tool calls match"
}

func compareToolCalls(expected, actual [][]conversation.ToolCall) (bool, string) {
	if len(actual) != len(expected) {
		return false, fmt.Sprintf("sequence count mismatch: got %d, want %d", len(actual), len(expected))
	}

	for i := range expected {
		if len(actual[i]) != len(expected[i]) {
			return false, fmt.Sprintf("sequence %d: call count mismatch: got %d, want %d", i, len(actual[i]), len(expected[i]))
		}
		for j := range expected[i] {
			exp := expected[i][j]
			act := actual[i][j]

			if act.ToolName != exp.ToolName {
				return false, fmt.Sprintf("sequence %d call %d: tool name mismatch: got %q, want %q", i, j, act.ToolName, exp.ToolName)
			}
			if ok, reason := compareArguments(exp.Arguments, act.Arguments); !ok {
				return false, fmt.Sprintf("sequence %d call %d (%s): %s", i, j, exp.ToolName, reason)
			}
		}
	}
	return true, ""
}

// compareArguments matches each expected argument value as a regex pattern
// searched within the stringified actual value. Extra actual keys are a
// mismatch; there is no leniency for additional fields.
func compareArguments(expected, actual map[string]any) (bool, string) {
	for k, expV := range expected {
		actV, ok := actual[k]
		if !ok {
			return false, fmt.Sprintf("missing argument %q", k)
		}

		pattern := stringifyArg(expV)
		re, err := regexp.Compile(pattern)
		if err != nil {
			// An invalid pattern is a mismatch, not an error.
			return false, fmt.Sprintf("argument %q: invalid pattern %q", k, pattern)
		}
		if !re.MatchString(stringifyArg(actV)) {
			return false, fmt.Sprintf("argument %q: %q does not match pattern %q", k, stringifyArg(actV), pattern)
		}
	}

	for k := range actual {
		if _, ok := expected[k]; !ok {
			return false, fmt.Sprintf("unexpected argument %q", k)
		}
	}
	return true, ""
}

func stringifyArg(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}
