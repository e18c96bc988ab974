package conversation

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Status is the outcome of one scored metric. Closed enum: PASS and FAIL are
// the two results of a completed scoring attempt, ERROR means scoring never
// completed.
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR"
)

// ToolCall is one tool invocation made (or expected) by the agent.
type ToolCall struct {
	ToolName  string         `yaml:"tool_name" json:"tool_name"`
	Arguments map[string]any `yaml:"arguments,omitempty" json:"arguments,omitempty"`
}

// FlexID accepts YAML scalars of either string or int form for turn ids.
type FlexID string

func (f *FlexID) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("conversation: nil id node")
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("conversation: id must be a scalar, got %v", value.Kind)
	}
	*f = FlexID(value.Value)
	return nil
}

// Turn is one query/response exchange within a conversation group.
type Turn struct {
	ID    FlexID `yaml:"turn_id" json:"turn_id"`
	Query string `yaml:"query" json:"query"`

	// Response is populated by the orchestrator after the agent call, or
	// pre-supplied for static evaluation.
	Response string `yaml:"response,omitempty" json:"response,omitempty"`
	// ToolCalls are the actual invocations returned by the agent, as ordered
	// parallel-call groups.
	ToolCalls [][]ToolCall `yaml:"tool_calls,omitempty" json:"tool_calls,omitempty"`

	ExpectedResponse  string       `yaml:"expected_response,omitempty" json:"expected_response,omitempty"`
	ExpectedKeywords  []string     `yaml:"expected_keywords,omitempty" json:"expected_keywords,omitempty"`
	ExpectedIntent    string       `yaml:"expected_intent,omitempty" json:"expected_intent,omitempty"`
	ExpectedToolCalls [][]ToolCall `yaml:"expected_tool_calls,omitempty" json:"expected_tool_calls,omitempty"`
	Contexts          []string     `yaml:"contexts,omitempty" json:"contexts,omitempty"`
	VerifyScript      string       `yaml:"verify_script,omitempty" json:"verify_script,omitempty"`
}

// Conversation is a named ordered group of turns plus the metrics to run
// against them.
type Conversation struct {
	GroupID string `yaml:"conversation_group" json:"conversation_group"`

	TurnMetrics         []string `yaml:"turn_metrics,omitempty" json:"turn_metrics,omitempty"`
	ConversationMetrics []string `yaml:"conversation_metrics,omitempty" json:"conversation_metrics,omitempty"`

	TurnMetricsMetadata         map[string]Metadata `yaml:"turn_metrics_metadata,omitempty" json:"turn_metrics_metadata,omitempty"`
	ConversationMetricsMetadata map[string]Metadata `yaml:"conversation_metrics_metadata,omitempty" json:"conversation_metrics_metadata,omitempty"`

	SetupScript   string `yaml:"setup_script,omitempty" json:"setup_script,omitempty"`
	CleanupScript string `yaml:"cleanup_script,omitempty" json:"cleanup_script,omitempty"`

	Turns []Turn `yaml:"turns" json:"turns"`
}

// Metadata is a per-metric override map attached to one conversation.
type Metadata struct {
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// Result is one scored metric outcome. Created exactly once per
// (turn-or-conversation, metric) pair by the orchestrator and immutable
// thereafter.
type Result struct {
	ConversationGroup string `json:"conversation_group"`
	// TurnID is empty for conversation-level metrics.
	TurnID           string `json:"turn_id,omitempty"`
	MetricIdentifier string `json:"metric_identifier"`
	ConversationID   string `json:"conversation_id,omitempty"`

	Status    Status   `json:"result"`
	Score     *float64 `json:"score,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Reason    string   `json:"reason,omitempty"`

	Query    string `json:"query,omitempty"`
	Response string `json:"response,omitempty"`
	// ExecutionTime is the scoring duration in seconds.
	ExecutionTime float64 `json:"execution_time"`
}

// Float returns a pointer to v, for score/threshold literals.
func Float(v float64) *float64 {
	return &v
}
