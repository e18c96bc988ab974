package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/agent-eval/internal/conversation"
)

const defaultTimeout = 300 * time.Second

// ErrorKind classifies an agent API failure so the orchestrator can attach a
// meaningful reason string.
type ErrorKind string

const (
	KindTimeout   ErrorKind = "timeout"
	KindHTTP      ErrorKind = "http"
	KindMalformed ErrorKind = "malformed"
)

// APIError represents a failed agent query.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return "agent: api error <nil>"
	}
	switch {
	case e.Kind == KindTimeout:
		return fmt.Sprintf("agent: timeout: %s", e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("agent: api error (%d %s): %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	default:
		return fmt.Sprintf("agent: %s: %s", e.Kind, e.Message)
	}
}

// QueryRequest is one turn sent to the agent under evaluation.
type QueryRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Model          string `json:"model,omitempty"`
}

// QueryResponse is the agent's answer for one turn.
type QueryResponse struct {
	Response       string                    `json:"response"`
	ConversationID string                    `json:"conversation_id"`
	ToolCalls      [][]conversation.ToolCall `json:"tool_calls,omitempty"`
}

// Client talks to the agent query endpoint.
type Client struct {
	endpoint   string
	provider   string
	model      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-query HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c == nil || c.httpClient == nil {
			return
		}
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithProviderModel sets the provider and model passed on every query.
func WithProviderModel(provider, model string) Option {
	return func(c *Client) {
		if c == nil {
			return
		}
		c.provider = strings.TrimSpace(provider)
		c.model = strings.TrimSpace(model)
	}
}

// NewClient constructs a Client for the given endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Query sends one turn and returns the agent's response. The conversation id
// from a previous turn, when non-empty, keeps the conversation going.
func (c *Client) Query(ctx context.Context, query string, conversationID string) (*QueryResponse, error) {
	if c == nil || c.httpClient == nil {
		return nil, errors.New("agent: nil client")
	}
	if ctx == nil {
		return nil, errors.New("agent: nil context")
	}
	if strings.TrimSpace(c.endpoint) == "" {
		return nil, errors.New("agent: missing endpoint")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("agent: empty query")
	}

	body, err := json.Marshal(QueryRequest{
		Query:          query,
		ConversationID: strings.TrimSpace(conversationID),
		Provider:       c.provider,
		Model:          c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &APIError{Kind: KindTimeout, Message: err.Error()}
		}
		return nil, &APIError{Kind: KindHTTP, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &APIError{Kind: KindHTTP, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Kind:       KindHTTP,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(raw)),
		}
	}

	var out QueryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &APIError{Kind: KindMalformed, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if strings.TrimSpace(out.Response) == "" {
		return nil, &APIError{Kind: KindMalformed, Message: "no response field in agent reply"}
	}
	return &out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
