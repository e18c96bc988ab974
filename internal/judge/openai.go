package judge

import (
	"context"
	"errors"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider grades with an OpenAI-compatible chat model.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider constructs an OpenAIProvider. An empty apiKey falls back
// to OPENAI_API_KEY.
func NewOpenAIProvider(apiKey string, baseURL string, model string) *OpenAIProvider {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	cfg := openai.DefaultConfig(apiKey)
	if v := strings.TrimSpace(baseURL); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}

	m := strings.TrimSpace(model)
	if m == "" {
		m = defaultOpenAIModel
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  m,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if p == nil || p.client == nil {
		return "", errors.New("judge: openai: nil client")
	}
	if ctx == nil {
		return "", errors.New("judge: openai: nil context")
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("judge: openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
