package conversation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testRequirements() Requirements {
	return Requirements{
		TurnMetrics: map[string][]Field{
			"response_eval:sub-string": {FieldExpectedKeywords},
			"response_eval:judge-llm":  {FieldExpectedResponse},
			"action_eval":              {FieldVerifyScript},
			"tool_eval":                {FieldExpectedToolCalls},
		},
		ConversationMetrics: map[string][]Field{
			"deepeval:conversation_completeness": nil,
		},
	}
}

func writeSuite(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "suite.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := filepath.Join(dir, "setup.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	path := writeSuite(t, dir, `
conversations:
  - conversation_group: booking
    turn_metrics:
      - "response_eval:sub-string"
    conversation_metrics:
      - "deepeval:conversation_completeness"
    turn_metrics_metadata:
      "response_eval:sub-string":
        threshold: 0.9
    setup_script: setup.sh
    turns:
      - turn_id: 1
        query: book a table
        response: booked for 7pm
        expected_keywords:
          - booked
      - turn_id: t2
        query: confirm it
        response: confirmed
        expected_keywords:
          - confirmed
`)

	convs, err := LoadFromFile(path, ValidateOptions{Requirements: testRequirements()})
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("conversations: got %d", len(convs))
	}

	c := convs[0]
	if c.GroupID != "booking" {
		t.Fatalf("GroupID: got %q", c.GroupID)
	}
	// Integer turn ids load as their string form.
	if c.Turns[0].ID != "1" || c.Turns[1].ID != "t2" {
		t.Fatalf("turn ids: got %q, %q", c.Turns[0].ID, c.Turns[1].ID)
	}
	// Relative script paths resolve against the suite file's directory.
	if c.SetupScript != script {
		t.Fatalf("SetupScript: got %q want %q", c.SetupScript, script)
	}
	md := c.TurnMetricsMetadata["response_eval:sub-string"]
	if md.Threshold == nil || *md.Threshold != 0.9 {
		t.Fatalf("metadata threshold: %+v", md)
	}
}

func TestLoadFromFile_MissingScript(t *testing.T) {
	t.Parallel()

	path := writeSuite(t, t.TempDir(), `
conversations:
  - conversation_group: g1
    turn_metrics: ["response_eval:sub-string"]
    setup_script: nope.sh
    turns:
      - turn_id: t1
        query: q
        response: r
        expected_keywords: [r]
`)

	_, err := LoadFromFile(path, ValidateOptions{Requirements: testRequirements()})
	if err == nil || !strings.Contains(err.Error(), "nope.sh") {
		t.Fatalf("LoadFromFile: got %v", err)
	}
}

func TestLoadFromFile_Empty(t *testing.T) {
	t.Parallel()

	path := writeSuite(t, t.TempDir(), "conversations: []\n")
	if _, err := LoadFromFile(path, ValidateOptions{Requirements: testRequirements()}); err == nil {
		t.Fatalf("expected error for empty suite")
	}
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	valid := func() []Conversation {
		return []Conversation{{
			GroupID:     "g1",
			TurnMetrics: []string{"response_eval:sub-string"},
			Turns: []Turn{{
				ID:               "t1",
				Query:            "q",
				Response:         "r",
				ExpectedKeywords: []string{"r"},
			}},
		}}
	}

	cases := []struct {
		name   string
		mutate func([]Conversation) []Conversation
		opts   ValidateOptions
		wantIn string
	}{
		{
			name: "duplicate group",
			mutate: func(cs []Conversation) []Conversation {
				return append(cs, valid()...)
			},
			wantIn: "duplicate conversation_group",
		},
		{
			name: "unknown metric",
			mutate: func(cs []Conversation) []Conversation {
				cs[0].TurnMetrics = []string{"response_eval:sparkle"}
				return cs
			},
			wantIn: `unknown turn metric "response_eval:sparkle"`,
		},
		{
			name: "missing required field",
			mutate: func(cs []Conversation) []Conversation {
				cs[0].Turns[0].ExpectedKeywords = nil
				return cs
			},
			wantIn: "requires expected_keywords",
		},
		{
			name: "missing response with agent disabled",
			mutate: func(cs []Conversation) []Conversation {
				cs[0].Turns[0].Response = ""
				return cs
			},
			wantIn: "missing response (agent API disabled)",
		},
		{
			name: "metadata for unrequested metric",
			mutate: func(cs []Conversation) []Conversation {
				cs[0].TurnMetricsMetadata = map[string]Metadata{
					"tool_eval": {Threshold: Float(0.5)},
				}
				return cs
			},
			wantIn: `metadata for unrequested metric "tool_eval"`,
		},
		{
			name: "threshold out of range",
			mutate: func(cs []Conversation) []Conversation {
				cs[0].TurnMetricsMetadata = map[string]Metadata{
					"response_eval:sub-string": {Threshold: Float(1.5)},
				}
				return cs
			},
			wantIn: "threshold must be within [0,1]",
		},
		{
			name: "duplicate turn id in group",
			mutate: func(cs []Conversation) []Conversation {
				cs[0].Turns = append(cs[0].Turns, cs[0].Turns[0])
				return cs
			},
			wantIn: `duplicate turn_id "t1"`,
		},
		{
			name: "missing query",
			mutate: func(cs []Conversation) []Conversation {
				cs[0].Turns[0].Query = " "
				return cs
			},
			wantIn: "missing query",
		},
		{
			name: "no metrics requested",
			mutate: func(cs []Conversation) []Conversation {
				cs[0].TurnMetrics = nil
				return cs
			},
			wantIn: "no metrics requested",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			opts := tc.opts
			if opts.Requirements.TurnMetrics == nil {
				opts.Requirements = testRequirements()
			}
			err := Validate(tc.mutate(valid()), opts)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantIn) {
				t.Fatalf("error: got %q, want substring %q", err, tc.wantIn)
			}
		})
	}
}

func TestValidate_AgentEnabledSkipsResponseCheck(t *testing.T) {
	t.Parallel()

	convs := []Conversation{{
		GroupID:     "g1",
		TurnMetrics: []string{"response_eval:sub-string"},
		Turns: []Turn{{
			ID:               "t1",
			Query:            "q",
			ExpectedKeywords: []string{"r"},
		}},
	}}
	if err := Validate(convs, ValidateOptions{Requirements: testRequirements(), AgentEnabled: true}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
