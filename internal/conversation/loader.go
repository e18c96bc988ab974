package conversation

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field names a Turn field a metric consumes. Requirements are expressed in
// these so the validator stays decoupled from the metric handlers.
type Field string

const (
	FieldExpectedResponse  Field = "expected_response"
	FieldExpectedKeywords  Field = "expected_keywords"
	FieldExpectedIntent    Field = "expected_intent"
	FieldExpectedToolCalls Field = "expected_tool_calls"
	FieldContexts          Field = "contexts"
	FieldVerifyScript      Field = "verify_script"
)

// Requirements describes the registered metric identifiers and the Turn
// fields each requires. It is built from the metric registry at startup and
// passed in explicitly.
type Requirements struct {
	TurnMetrics         map[string][]Field
	ConversationMetrics map[string][]Field
}

// ValidateOptions carries validation context from the system config.
type ValidateOptions struct {
	Requirements Requirements
	// AgentEnabled means responses are populated dynamically by the agent
	// API, so pre-supplied responses are not required upfront.
	AgentEnabled bool
}

type suiteFile struct {
	Conversations []Conversation `yaml:"conversations"`
}

// LoadFromFile loads and validates a set of conversation groups from a YAML
// file. Script paths are resolved relative to the file's directory.
func LoadFromFile(path string, opts ValidateOptions) ([]Conversation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conversation: read %q: %w", path, err)
	}

	var f suiteFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("conversation: parse %q: %w", path, err)
	}
	if len(f.Conversations) == 0 {
		return nil, fmt.Errorf("conversation: %q: no conversations", path)
	}

	baseDir := filepath.Dir(path)
	for i := range f.Conversations {
		if err := resolveScripts(&f.Conversations[i], baseDir); err != nil {
			return nil, fmt.Errorf("conversation: %q: %w", path, err)
		}
	}

	if err := Validate(f.Conversations, opts); err != nil {
		return nil, fmt.Errorf("conversation: validate %q: %w", path, err)
	}
	return f.Conversations, nil
}

func resolveScripts(c *Conversation, baseDir string) error {
	for _, ref := range []*string{&c.SetupScript, &c.CleanupScript} {
		if err := resolveScript(ref, baseDir, c.GroupID); err != nil {
			return err
		}
	}
	for i := range c.Turns {
		if err := resolveScript(&c.Turns[i].VerifyScript, baseDir, c.GroupID); err != nil {
			return err
		}
	}
	return nil
}

func resolveScript(ref *string, baseDir string, groupID string) error {
	path := strings.TrimSpace(*ref)
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("group %q: resolve script %q: %w", groupID, path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("group %q: script %q: %w", groupID, abs, err)
	}
	*ref = abs
	return nil
}

// Validate checks the loaded set for the invariants the orchestrator depends
// on. It fails fast: the first violation aborts loading entirely, before any
// API or scoring call is made.
func Validate(convs []Conversation, opts ValidateOptions) error {
	if len(convs) == 0 {
		return fmt.Errorf("no conversations")
	}

	seenGroups := make(map[string]struct{}, len(convs))
	seenTurnIDs := make(map[string]string)

	for i, c := range convs {
		groupID := strings.TrimSpace(c.GroupID)
		if groupID == "" {
			return fmt.Errorf("conversations[%d]: missing conversation_group", i)
		}
		if _, ok := seenGroups[groupID]; ok {
			return fmt.Errorf("conversations[%d] (%s): duplicate conversation_group", i, groupID)
		}
		seenGroups[groupID] = struct{}{}

		if len(c.Turns) == 0 {
			return fmt.Errorf("conversations[%d] (%s): no turns", i, groupID)
		}
		if len(c.TurnMetrics) == 0 && len(c.ConversationMetrics) == 0 {
			return fmt.Errorf("conversations[%d] (%s): no metrics requested", i, groupID)
		}

		for _, id := range c.TurnMetrics {
			if _, ok := opts.Requirements.TurnMetrics[id]; !ok {
				return fmt.Errorf("conversations[%d] (%s): unknown turn metric %q", i, groupID, id)
			}
		}
		for _, id := range c.ConversationMetrics {
			if _, ok := opts.Requirements.ConversationMetrics[id]; !ok {
				return fmt.Errorf("conversations[%d] (%s): unknown conversation metric %q", i, groupID, id)
			}
		}
		if err := validateMetadata(i, groupID, c); err != nil {
			return err
		}

		seenInGroup := make(map[string]struct{}, len(c.Turns))
		for j, t := range c.Turns {
			id := strings.TrimSpace(string(t.ID))
			if id == "" {
				return fmt.Errorf("conversations[%d] (%s): turns[%d]: missing turn_id", i, groupID, j)
			}
			if _, ok := seenInGroup[id]; ok {
				return fmt.Errorf("conversations[%d] (%s): turns[%d]: duplicate turn_id %q", i, groupID, j, id)
			}
			seenInGroup[id] = struct{}{}
			if other, ok := seenTurnIDs[id]; ok && other != groupID {
				// Tolerated across groups, but worth a trace when triaging.
				log.Printf("conversation: turn_id %q appears in both %q and %q", id, other, groupID)
			}
			seenTurnIDs[id] = groupID

			if strings.TrimSpace(t.Query) == "" {
				return fmt.Errorf("conversations[%d] (%s): turns[%d] (%s): missing query", i, groupID, j, id)
			}
			if !opts.AgentEnabled && strings.TrimSpace(t.Response) == "" {
				return fmt.Errorf("conversations[%d] (%s): turns[%d] (%s): missing response (agent API disabled)", i, groupID, j, id)
			}

			for _, metricID := range c.TurnMetrics {
				for _, field := range opts.Requirements.TurnMetrics[metricID] {
					if hasField(&t, field) {
						continue
					}
					return fmt.Errorf("conversations[%d] (%s): turns[%d] (%s): metric %q requires %s", i, groupID, j, id, metricID, field)
				}
			}
		}
	}
	return nil
}

func validateMetadata(idx int, groupID string, c Conversation) error {
	known := make(map[string]struct{}, len(c.TurnMetrics)+len(c.ConversationMetrics))
	for _, id := range c.TurnMetrics {
		known[id] = struct{}{}
	}
	for _, id := range c.ConversationMetrics {
		known[id] = struct{}{}
	}

	for _, meta := range []map[string]Metadata{c.TurnMetricsMetadata, c.ConversationMetricsMetadata} {
		for id, md := range meta {
			if _, ok := known[id]; !ok {
				return fmt.Errorf("conversations[%d] (%s): metadata for unrequested metric %q", idx, groupID, id)
			}
			if md.Threshold != nil && (*md.Threshold < 0 || *md.Threshold > 1) {
				return fmt.Errorf("conversations[%d] (%s): metric %q: threshold must be within [0,1] (got %v)", idx, groupID, id, *md.Threshold)
			}
		}
	}
	return nil
}

func hasField(t *Turn, field Field) bool {
	switch field {
	case FieldExpectedResponse:
		return strings.TrimSpace(t.ExpectedResponse) != ""
	case FieldExpectedKeywords:
		return len(t.ExpectedKeywords) > 0
	case FieldExpectedIntent:
		return strings.TrimSpace(t.ExpectedIntent) != ""
	case FieldExpectedToolCalls:
		return len(t.ExpectedToolCalls) > 0
	case FieldContexts:
		return len(t.Contexts) > 0
	case FieldVerifyScript:
		return strings.TrimSpace(t.VerifyScript) != ""
	default:
		return false
	}
}
