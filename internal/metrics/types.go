package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/agent-eval/internal/config"
	"github.com/stellarlinkco/agent-eval/internal/conversation"
)

// Scope says whether a metric evaluates one turn or the whole conversation.
type Scope string

const (
	ScopeTurn         Scope = "turn"
	ScopeConversation Scope = "conversation"
)

// Family is the closed set of scoring strategies. The "framework:name"
// string stays the wire identifier; internal dispatch switches on the parsed
// family, never on re-parsed strings.
type Family int

const (
	FamilySubstring Family = iota
	FamilyScript
	FamilyJudge
	FamilyTool
	FamilyRagas
	FamilyGEval
	FamilyDeepEval
)

// Identifier is a parsed "framework:name" metric identifier. Single-segment
// identifiers (no colon) have an empty Name.
type Identifier struct {
	Framework string
	Name      string
}

// ParseIdentifier splits an identifier once on ':'.
func ParseIdentifier(s string) Identifier {
	s = strings.TrimSpace(s)
	framework, name, found := strings.Cut(s, ":")
	if !found {
		return Identifier{Framework: s}
	}
	return Identifier{Framework: framework, Name: name}
}

func (id Identifier) String() string {
	if id.Name == "" {
		return id.Framework
	}
	return id.Framework + ":" + id.Name
}

// Request carries the data a handler scores against.
type Request struct {
	Conversation *conversation.Conversation
	// TurnIndex is valid only for ScopeTurn.
	TurnIndex int
	Scope     Scope
}

// Turn returns the addressed turn, or nil for conversation scope.
func (r *Request) Turn() *conversation.Turn {
	if r == nil || r.Conversation == nil || r.Scope != ScopeTurn {
		return nil
	}
	if r.TurnIndex < 0 || r.TurnIndex >= len(r.Conversation.Turns) {
		return nil
	}
	return &r.Conversation.Turns[r.TurnIndex]
}

// Handler scores one metric family. A nil score means the scoring attempt
// did not complete; the reason says why. Handlers never panic and never
// signal expected conditions through errors.
type Handler interface {
	Evaluate(ctx context.Context, req *Request) (score *float64, reason string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*float64, string)

func (f HandlerFunc) Evaluate(ctx context.Context, req *Request) (*float64, string) {
	return f(ctx, req)
}

type registration struct {
	family   Family
	scope    Scope
	requires []conversation.Field
	handler  Handler
}

// Registry maps metric identifiers to registered scoring strategies. It is
// an explicit value built at startup and passed into the orchestrator and
// the validator; there is no package-level registry state.
type Registry struct {
	metrics map[Identifier]registration
}

// NewEmptyRegistry creates a registry with nothing registered.
func NewEmptyRegistry() *Registry {
	return &Registry{metrics: make(map[Identifier]registration)}
}

// Register adds a metric under the given identifier.
func (r *Registry) Register(id string, family Family, scope Scope, requires []conversation.Field, h Handler) {
	if r == nil {
		panic("metrics: register on nil registry")
	}
	if h == nil {
		panic("metrics: register nil handler")
	}
	parsed := ParseIdentifier(id)
	if parsed.Framework == "" {
		panic("metrics: register empty identifier")
	}
	if r.metrics == nil {
		r.metrics = make(map[Identifier]registration)
	}
	r.metrics[parsed] = registration{family: family, scope: scope, requires: requires, handler: h}
}

// Requirements exports the registered identifiers and their required turn
// fields, keyed by scope, for the conversation validator.
func (r *Registry) Requirements() conversation.Requirements {
	out := conversation.Requirements{
		TurnMetrics:         make(map[string][]conversation.Field),
		ConversationMetrics: make(map[string][]conversation.Field),
	}
	if r == nil {
		return out
	}
	for id, reg := range r.metrics {
		switch reg.scope {
		case ScopeTurn:
			out.TurnMetrics[id.String()] = reg.requires
		case ScopeConversation:
			out.ConversationMetrics[id.String()] = reg.requires
		}
	}
	return out
}

// Evaluate dispatches one metric identifier at the given scope. Dispatch
// failures are data: an unsupported identifier or a scope mismatch comes
// back as a nil score with a reason, never as an error.
func (r *Registry) Evaluate(ctx context.Context, id string, req *Request) (*float64, string) {
	if r == nil || r.metrics == nil {
		return nil, "no metrics registered"
	}
	if req == nil || req.Conversation == nil {
		return nil, "no conversation data"
	}

	parsed := ParseIdentifier(id)
	reg, ok := r.metrics[parsed]
	if !ok {
		if r.knownFramework(parsed.Framework) {
			return nil, fmt.Sprintf("Unsupported metric: %s", parsed)
		}
		return nil, fmt.Sprintf("Unsupported framework: %s", parsed.Framework)
	}

	if reg.scope != req.Scope {
		if reg.scope == ScopeTurn {
			return nil, fmt.Sprintf("%s is a turn-level metric", parsed)
		}
		return nil, fmt.Sprintf("%s is a conversation-level metric", parsed)
	}

	return reg.handler.Evaluate(ctx, req)
}

func (r *Registry) knownFramework(framework string) bool {
	for id := range r.metrics {
		if id.Framework == framework {
			return true
		}
	}
	return false
}

// ScriptRunner executes a verify script; true means exit code 0.
type ScriptRunner interface {
	Run(ctx context.Context, path string) (bool, error)
}

// Deps are the external collaborators the built-in metrics need.
type Deps struct {
	Judge   JudgeProvider
	Scripts ScriptRunner
}

// JudgeProvider is the judge model contract the handlers call.
type JudgeProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewRegistry builds the full built-in metric set.
func NewRegistry(deps Deps) *Registry {
	r := NewEmptyRegistry()

	r.Register("response_eval:sub-string", FamilySubstring, ScopeTurn,
		[]conversation.Field{conversation.FieldExpectedKeywords},
		HandlerFunc(evaluateSubstring))

	r.Register("action_eval", FamilyScript, ScopeTurn,
		[]conversation.Field{conversation.FieldVerifyScript},
		&ScriptMetric{Runner: deps.Scripts})

	r.Register("tool_eval", FamilyTool, ScopeTurn,
		[]conversation.Field{conversation.FieldExpectedToolCalls},
		HandlerFunc(evaluateToolCalls))

	r.Register("response_eval:judge-llm", FamilyJudge, ScopeTurn,
		[]conversation.Field{conversation.FieldExpectedResponse},
		&JudgeMetric{Provider: deps.Judge, Mode: JudgeAnswer})
	r.Register("response_eval:intent", FamilyJudge, ScopeTurn,
		[]conversation.Field{conversation.FieldExpectedIntent},
		&JudgeMetric{Provider: deps.Judge, Mode: JudgeIntent})

	r.Register("ragas:faithfulness", FamilyRagas, ScopeTurn,
		[]conversation.Field{conversation.FieldContexts},
		&RagasMetric{Provider: deps.Judge, Name: "faithfulness"})
	r.Register("ragas:response_relevancy", FamilyRagas, ScopeTurn,
		nil,
		&RagasMetric{Provider: deps.Judge, Name: "response_relevancy"})
	r.Register("ragas:context_recall", FamilyRagas, ScopeTurn,
		[]conversation.Field{conversation.FieldContexts, conversation.FieldExpectedResponse},
		&RagasMetric{Provider: deps.Judge, Name: "context_recall"})

	r.Register("geval:correctness", FamilyGEval, ScopeTurn,
		[]conversation.Field{conversation.FieldExpectedResponse},
		&GEvalMetric{Provider: deps.Judge, Criteria: "Factual correctness of the response against the expected answer"})

	r.Register("deepeval:conversation_completeness", FamilyDeepEval, ScopeConversation,
		nil,
		&DeepEvalMetric{Provider: deps.Judge, Name: "conversation_completeness"})
	r.Register("deepeval:conversation_relevancy", FamilyDeepEval, ScopeConversation,
		nil,
		&DeepEvalMetric{Provider: deps.Judge, Name: "conversation_relevancy"})

	return r
}

// EffectiveThreshold resolves the threshold actually applied to a metric:
// per-turn metric metadata, then per-conversation metric metadata, then the
// system-wide default, then none.
func EffectiveThreshold(id string, scope Scope, conv *conversation.Conversation, defaults map[string]config.MetricMetadata) *float64 {
	if conv != nil {
		if scope == ScopeTurn {
			if md, ok := conv.TurnMetricsMetadata[id]; ok && md.Threshold != nil {
				return md.Threshold
			}
		}
		if md, ok := conv.ConversationMetricsMetadata[id]; ok && md.Threshold != nil {
			return md.Threshold
		}
	}
	if md, ok := defaults[id]; ok && md.Threshold != nil {
		return md.Threshold
	}
	return nil
}

// ResolveStatus turns a completed score into PASS or FAIL. A nil threshold
// always passes; a nil score never reaches here (it became ERROR upstream).
func ResolveStatus(score *float64, threshold *float64) conversation.Status {
	if threshold == nil {
		return conversation.StatusPass
	}
	if score != nil && *score >= *threshold {
		return conversation.StatusPass
	}
	return conversation.StatusFail
}
