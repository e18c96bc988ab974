package judge

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultClaudeModel = "claude-sonnet-4-5-20250929"

// ClaudeProvider grades with an Anthropic model.
type ClaudeProvider struct {
	client *anthropic.Client
	model  string
}

// NewClaudeProvider constructs a ClaudeProvider. An empty apiKey falls back
// to ANTHROPIC_API_KEY.
func NewClaudeProvider(apiKey string, baseURL string, model string) *ClaudeProvider {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}

	opts := make([]option.RequestOption, 0, 3)
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if v := strings.TrimSpace(baseURL); v != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(v, "/")))
	}
	opts = append(opts, option.WithMaxRetries(0))

	m := strings.TrimSpace(model)
	if m == "" {
		m = defaultClaudeModel
	}

	client := anthropic.NewClient(opts...)
	return &ClaudeProvider{client: &client, model: m}
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

func (p *ClaudeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if p == nil || p.client == nil {
		return "", errors.New("judge: claude: nil client")
	}
	if ctx == nil {
		return "", errors.New("judge: claude: nil context")
	}

	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	if msg == nil {
		return "", errors.New("judge: claude: nil response")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		sb.WriteString(block.AsText().Text)
	}
	return sb.String(), nil
}
