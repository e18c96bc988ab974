package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
)

// RagasMetric delegates a RAG-style metric (faithfulness, response
// relevancy, context recall) to the judge model and normalizes its output.
type RagasMetric struct {
	Provider JudgeProvider
	Name     string
}

func (m *RagasMetric) Evaluate(ctx context.Context, req *Request) (*float64, string) {
	if m == nil || m.Provider == nil {
		return nil, "no judge provider configured"
	}
	turn := req.Turn()
	if turn == nil {
		return nil, "no turn data"
	}

	var sb strings.Builder
	switch m.Name {
	case "faithfulness":
		sb.WriteString("Rate how faithful the answer is to the given contexts: every claim in the answer must be supported by the contexts.\n\n")
	case "response_relevancy":
		sb.WriteString("Rate how relevant the answer is to the question asked.\n\n")
	case "context_recall":
		sb.WriteString("Rate how much of the expected answer is recoverable from the given contexts.\n\n")
	default:
		return nil, fmt.Sprintf("Unsupported metric: ragas:%s", m.Name)
	}

	fmt.Fprintf(&sb, "Question:\n%s\n\n", turn.Query)
	if len(turn.Contexts) > 0 {
		sb.WriteString("Contexts:\n")
		for _, c := range turn.Contexts {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
		sb.WriteString("\n")
	}
	if strings.TrimSpace(turn.ExpectedResponse) != "" {
		fmt.Fprintf(&sb, "Expected answer:\n%s\n\n", turn.ExpectedResponse)
	}
	fmt.Fprintf(&sb, "Answer:\n%s\n\n", turn.Response)
	sb.WriteString(`Output ONLY valid JSON in this exact format: {"score": <float 0.0-1.0>, "reason": "<brief explanation>"}`)

	return scoreWithJudge(ctx, m.Provider, sb.String())
}

// GEvalMetric grades a turn against free-form criteria on a 1-10 scale and
// normalizes the result to [0,1].
type GEvalMetric struct {
	Provider JudgeProvider
	Criteria string
}

func (m *GEvalMetric) Evaluate(ctx context.Context, req *Request) (*float64, string) {
	if m == nil || m.Provider == nil {
		return nil, "no judge provider configured"
	}
	turn := req.Turn()
	if turn == nil {
		return nil, "no turn data"
	}

	var sb strings.Builder
	sb.WriteString("You are an expert evaluator. Assess the AI response based on the given criteria.\n\n")
	fmt.Fprintf(&sb, "Criteria:\n%s\n\n", m.Criteria)
	fmt.Fprintf(&sb, "Question:\n%s\n\n", turn.Query)
	if strings.TrimSpace(turn.ExpectedResponse) != "" {
		fmt.Fprintf(&sb, "Expected answer:\n%s\n\n", turn.ExpectedResponse)
	}
	fmt.Fprintf(&sb, "Response:\n%s\n\n", turn.Response)
	sb.WriteString("Rate the response from 1 (completely fails the criteria) to 10 (perfectly meets the criteria).\n")
	sb.WriteString(`Output ONLY valid JSON in this exact format: {"score": <integer 1-10>, "reason": "<brief explanation>"}`)

	score, reason := scoreWithJudge(ctx, m.Provider, sb.String())
	if score == nil {
		return nil, reason
	}
	if *score < 1 || *score > 10 {
		return nil, fmt.Sprintf("judge score out of range: %v", *score)
	}
	return conversation.Float((*score - 1) / 9), reason
}

// DeepEvalMetric grades the whole conversation transcript.
type DeepEvalMetric struct {
	Provider JudgeProvider
	Name     string
}

func (m *DeepEvalMetric) Evaluate(ctx context.Context, req *Request) (*float64, string) {
	if m == nil || m.Provider == nil {
		return nil, "no judge provider configured"
	}
	if req == nil || req.Conversation == nil {
		return nil, "no conversation data"
	}

	var sb strings.Builder
	switch m.Name {
	case "conversation_completeness":
		sb.WriteString("Rate how completely the assistant resolved the user's requests over the whole conversation.\n\n")
	case "conversation_relevancy":
		sb.WriteString("Rate how consistently the assistant's replies stay relevant to the user's messages over the whole conversation.\n\n")
	default:
		return nil, fmt.Sprintf("Unsupported metric: deepeval:%s", m.Name)
	}

	sb.WriteString("Conversation:\n")
	sb.WriteString(Transcript(req.Conversation))
	sb.WriteString("\n")
	sb.WriteString(`Output ONLY valid JSON in this exact format: {"score": <float 0.0-1.0>, "reason": "<brief explanation>"}`)

	return scoreWithJudge(ctx, m.Provider, sb.String())
}

// Transcript renders the ordered query/response pairs of a conversation.
func Transcript(conv *conversation.Conversation) string {
	if conv == nil {
		return ""
	}
	var sb strings.Builder
	for _, t := range conv.Turns {
		fmt.Fprintf(&sb, "User: %s\n", t.Query)
		fmt.Fprintf(&sb, "Assistant: %s\n", t.Response)
	}
	return sb.String()
}

type judgeScoreOutput struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// scoreWithJudge calls the judge and parses a {"score": ..., "reason": ...}
// reply. A NaN score is a scoring failure, never 0.0.
func scoreWithJudge(ctx context.Context, p JudgeProvider, prompt string) (*float64, string) {
	raw, err := p.Complete(ctx, prompt)
	if err != nil {
		return nil, judgeErrorReason(err)
	}

	var out judgeScoreOutput
	if err := parseJSONReply(raw, &out); err != nil {
		return nil, fmt.Sprintf("malformed output from the LLM: %v", err)
	}
	if math.IsNaN(out.Score) || math.IsInf(out.Score, 0) {
		return nil, "malformed output from the LLM: non-finite score"
	}

	reason := strings.TrimSpace(out.Reason)
	if reason == "" {
		reason = "no reason provided"
	}
	return conversation.Float(out.Score), reason
}

// parseJSONReply extracts the first JSON object from raw model output,
// tolerating markdown fences.
func parseJSONReply(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return errors.New("empty output")
	}

	if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
		if strings.HasPrefix(s, "json") {
			s = strings.TrimSpace(strings.TrimPrefix(s, "json"))
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = strings.TrimSpace(s[:idx])
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < 0 || start >= end {
		return errors.New("missing JSON object")
	}
	return json.Unmarshal([]byte(s[start:end+1]), out)
}
