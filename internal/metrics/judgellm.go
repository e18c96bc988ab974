package metrics

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
	"github.com/stellarlinkco/agent-eval/internal/judge"
)

// JudgeMode selects what the judge model grades.
type JudgeMode int

const (
	// JudgeAnswer grades the response against an expected answer.
	JudgeAnswer JudgeMode = iota
	// JudgeIntent grades whether the response serves an expected intent.
	JudgeIntent
)

const answerPromptTemplate = `You are grading an AI assistant's answer for correctness.

Question:
{{.Question}}

Expected answer:
{{.Expected}}

Actual answer:
{{.Actual}}

Reply with a single character: 1 if the actual answer is correct with respect
to the expected answer, 0 if it is not. Do not output anything else.`

const intentPromptTemplate = `You are grading whether an AI assistant's answer serves the user's intent.

Question:
{{.Question}}

Expected intent:
{{.Expected}}

Actual answer:
{{.Actual}}

Reply with a single character: 1 if the answer fulfills the expected intent,
0 if it does not. Do not output anything else.`

var (
	answerPromptTmpl = template.Must(template.New("judge_answer").Parse(answerPromptTemplate))
	intentPromptTmpl = template.Must(template.New("judge_intent").Parse(intentPromptTemplate))
)

type judgePromptData struct {
	Question string
	Expected string
	Actual   string
}

// JudgeMetric grades a turn with a judge model and accepts only a normalized
// "0" or "1" reply. Any other reply is a scoring failure, never a FAIL.
type JudgeMetric struct {
	Provider JudgeProvider
	Mode     JudgeMode
}

func (m *JudgeMetric) Evaluate(ctx context.Context, req *Request) (*float64, string) {
	if m == nil || m.Provider == nil {
		return nil, "no judge provider configured"
	}
	turn := req.Turn()
	if turn == nil {
		return nil, "no turn data"
	}

	data := judgePromptData{
		Question: turn.Query,
		Actual:   turn.Response,
	}
	tmpl := answerPromptTmpl
	switch m.Mode {
	case JudgeAnswer:
		data.Expected = turn.ExpectedResponse
	case JudgeIntent:
		tmpl = intentPromptTmpl
		data.Expected = turn.ExpectedIntent
	}
	if strings.TrimSpace(data.Expected) == "" {
		return nil, "no expected value for judge metric"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Sprintf("render judge prompt: %v", err)
	}

	raw, err := m.Provider.Complete(ctx, buf.String())
	if err != nil {
		return nil, judgeErrorReason(err)
	}

	switch strings.TrimSpace(raw) {
	case "1":
		return conversation.Float(1.0), "judge model accepted the response"
	case "0":
		return conversation.Float(0.0), "judge model rejected the response"
	default:
		return nil, fmt.Sprintf("Invalid response from the judge model: %q", strings.TrimSpace(raw))
	}
}

// judgeErrorReason distinguishes network-layer failures from other judge
// errors in the reason text.
func judgeErrorReason(err error) string {
	if judge.IsTimeout(err) {
		return fmt.Sprintf("judge model timeout: %v", err)
	}
	return fmt.Sprintf("judge model error: %v", err)
}
