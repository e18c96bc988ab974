package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
)

type fakeJudge struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeJudge) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func judgeTurn() conversation.Turn {
	return conversation.Turn{
		ID:               "t1",
		Query:            "What are your hours?",
		Response:         "We are open 9 to 5.",
		ExpectedResponse: "Open 9am to 5pm",
		ExpectedIntent:   "tell the user the opening hours",
	}
}

func TestJudgeMetric_AcceptsBinaryReplies(t *testing.T) {
	t.Parallel()

	m := &JudgeMetric{Provider: &fakeJudge{reply: " 1\n"}, Mode: JudgeAnswer}
	score, _ := m.Evaluate(context.Background(), turnRequest(judgeTurn()))
	if score == nil || *score != 1.0 {
		t.Fatalf("reply 1: got %v", score)
	}

	m = &JudgeMetric{Provider: &fakeJudge{reply: "0"}, Mode: JudgeIntent}
	score, _ = m.Evaluate(context.Background(), turnRequest(judgeTurn()))
	if score == nil || *score != 0.0 {
		t.Fatalf("reply 0: got %v", score)
	}
}

func TestJudgeMetric_RejectsNonBinaryReply(t *testing.T) {
	t.Parallel()

	m := &JudgeMetric{Provider: &fakeJudge{reply: "2"}, Mode: JudgeAnswer}
	score, reason := m.Evaluate(context.Background(), turnRequest(judgeTurn()))
	if score != nil {
		t.Fatalf("expected nil score, got %v", *score)
	}
	if !strings.Contains(reason, `Invalid response from the judge model: "2"`) {
		t.Fatalf("reason: got %q", reason)
	}
}

func TestJudgeMetric_ProviderError(t *testing.T) {
	t.Parallel()

	m := &JudgeMetric{Provider: &fakeJudge{err: errors.New("boom")}, Mode: JudgeAnswer}
	score, reason := m.Evaluate(context.Background(), turnRequest(judgeTurn()))
	if score != nil {
		t.Fatalf("expected nil score, got %v", *score)
	}
	if !strings.HasPrefix(reason, "judge model error:") {
		t.Fatalf("reason: got %q", reason)
	}
}

func TestJudgeMetric_TimeoutError(t *testing.T) {
	t.Parallel()

	m := &JudgeMetric{Provider: &fakeJudge{err: context.DeadlineExceeded}, Mode: JudgeAnswer}
	score, reason := m.Evaluate(context.Background(), turnRequest(judgeTurn()))
	if score != nil {
		t.Fatalf("expected nil score, got %v", *score)
	}
	if !strings.HasPrefix(reason, "judge model timeout:") {
		t.Fatalf("reason: got %q", reason)
	}
}

func TestJudgeMetric_MissingExpectedValue(t *testing.T) {
	t.Parallel()

	turn := judgeTurn()
	turn.ExpectedIntent = ""
	m := &JudgeMetric{Provider: &fakeJudge{reply: "1"}, Mode: JudgeIntent}
	score, reason := m.Evaluate(context.Background(), turnRequest(turn))
	if score != nil {
		t.Fatalf("expected nil score, got %v", *score)
	}
	if reason != "no expected value for judge metric" {
		t.Fatalf("reason: got %q", reason)
	}
}

func TestJudgeMetric_PromptContainsTurnData(t *testing.T) {
	t.Parallel()

	judge := &fakeJudge{reply: "1"}
	m := &JudgeMetric{Provider: judge, Mode: JudgeAnswer}
	if score, _ := m.Evaluate(context.Background(), turnRequest(judgeTurn())); score == nil {
		t.Fatalf("expected score")
	}
	if len(judge.prompts) != 1 {
		t.Fatalf("prompts: got %d", len(judge.prompts))
	}
	p := judge.prompts[0]
	for _, want := range []string{"What are your hours?", "Open 9am to 5pm", "We are open 9 to 5."} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}
