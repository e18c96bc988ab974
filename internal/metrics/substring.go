package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
)

// evaluateSubstring checks that every expected keyword appears in the
// response, case-insensitively. Boolean semantics: 1.0 or 0.0, no partial
// credit.
func evaluateSubstring(_ context.Context, req *Request) (*float64, string) {
	turn := req.Turn()
	if turn == nil {
		return nil, "no turn data"
	}
	if len(turn.ExpectedKeywords) == 0 {
		return nil, "no expected_keywords for turn"
	}

	response := strings.ToLower(turn.Response)
	var missing []string
	for _, kw := range turn.ExpectedKeywords {
		if !strings.Contains(response, strings.ToLower(kw)) {
			missing = append(missing, kw)
		}
	}

	if len(missing) > 0 {
		return conversation.Float(0.0), fmt.Sprintf("missing keywords: %s", strings.Join(missing, ", "))
	}
	return conversation.Float(1.0), fmt.Sprintf("all %d keywords found", len(turn.ExpectedKeywords))
}
