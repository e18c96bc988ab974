package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stellarlinkco/agent-eval/internal/agent"
	"github.com/stellarlinkco/agent-eval/internal/config"
	"github.com/stellarlinkco/agent-eval/internal/conversation"
	"github.com/stellarlinkco/agent-eval/internal/metrics"
)

// AgentClient drives the agent API under evaluation.
type AgentClient interface {
	Query(ctx context.Context, query string, conversationID string) (*agent.QueryResponse, error)
}

// ScriptRunner executes setup and cleanup scripts.
type ScriptRunner interface {
	Run(ctx context.Context, path string) (bool, error)
}

// Config carries orchestration policy from the system config.
type Config struct {
	// AgentEnabled replays each turn against the live agent API. When
	// false, pre-supplied responses are evaluated statically.
	AgentEnabled bool
	// Defaults is the system-wide per-metric metadata (threshold fallback).
	Defaults map[string]config.MetricMetadata
}

// Orchestrator walks conversation groups, drives the agent, dispatches
// metrics, and assembles the ordered result list. It exclusively owns result
// creation; results are append-only and never mutated after creation.
type Orchestrator struct {
	agent    AgentClient
	registry *metrics.Registry
	scripts  ScriptRunner
	cfg      Config
}

// New creates an Orchestrator. The agent client may be nil when the agent
// API is disabled.
func New(agentClient AgentClient, registry *metrics.Registry, scripts ScriptRunner, cfg Config) *Orchestrator {
	return &Orchestrator{
		agent:    agentClient,
		registry: registry,
		scripts:  scripts,
		cfg:      cfg,
	}
}

// Run evaluates every conversation group in declaration order and returns
// the full ordered result list. One group's failure never aborts the others.
func (o *Orchestrator) Run(ctx context.Context, convs []conversation.Conversation) ([]conversation.Result, error) {
	if o == nil {
		return nil, errors.New("orchestrator: nil orchestrator")
	}
	if ctx == nil {
		return nil, errors.New("orchestrator: nil context")
	}
	if o.registry == nil {
		return nil, errors.New("orchestrator: nil metric registry")
	}
	if o.cfg.AgentEnabled && o.agent == nil {
		return nil, errors.New("orchestrator: agent enabled but no client")
	}

	var results []conversation.Result
	for i := range convs {
		results = append(results, o.runConversation(ctx, &convs[i])...)
	}
	return results, nil
}

func (o *Orchestrator) runConversation(ctx context.Context, conv *conversation.Conversation) []conversation.Result {
	if setup := strings.TrimSpace(conv.SetupScript); setup != "" {
		if err := o.runSetup(ctx, setup); err != nil {
			return o.errorAll(conv, fmt.Sprintf("Setup script failed: %v", err))
		}
	}

	var results []conversation.Result
	conversationID := ""

	for i := range conv.Turns {
		turn := &conv.Turns[i]

		if o.cfg.AgentEnabled {
			resp, err := o.agent.Query(ctx, turn.Query, conversationID)
			if err != nil {
				for _, id := range conv.TurnMetrics {
					results = append(results, o.newErrorResult(conv, turn, id, conversationID, err.Error()))
				}
				continue
			}
			// Continuity is established by the first successful call and
			// then frozen for the rest of the group.
			if conversationID == "" {
				conversationID = resp.ConversationID
			}
			turn.Response = resp.Response
			turn.ToolCalls = resp.ToolCalls
		}

		for _, id := range conv.TurnMetrics {
			results = append(results, o.evaluate(ctx, conv, i, id, metrics.ScopeTurn, conversationID))
		}
	}

	for _, id := range conv.ConversationMetrics {
		results = append(results, o.evaluate(ctx, conv, -1, id, metrics.ScopeConversation, conversationID))
	}

	if cleanup := strings.TrimSpace(conv.CleanupScript); cleanup != "" {
		o.runCleanup(ctx, conv.GroupID, cleanup)
	}

	return results
}

func (o *Orchestrator) runSetup(ctx context.Context, path string) error {
	if o.scripts == nil {
		return errors.New("no script runner configured")
	}
	ok, err := o.scripts.Run(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("script %s exited nonzero", path)
	}
	return nil
}

// runCleanup logs a cleanup failure as a warning; it never alters recorded
// results and never aborts the run.
func (o *Orchestrator) runCleanup(ctx context.Context, groupID string, path string) {
	if o.scripts == nil {
		log.Printf("orchestrator: group %s: cleanup skipped: no script runner configured", groupID)
		return
	}
	ok, err := o.scripts.Run(ctx, path)
	if err != nil {
		log.Printf("orchestrator: group %s: cleanup script error: %v", groupID, err)
		return
	}
	if !ok {
		log.Printf("orchestrator: group %s: cleanup script %s exited nonzero", groupID, path)
	}
}

func (o *Orchestrator) evaluate(ctx context.Context, conv *conversation.Conversation, turnIdx int, id string, scope metrics.Scope, conversationID string) conversation.Result {
	res := conversation.Result{
		ConversationGroup: conv.GroupID,
		MetricIdentifier:  id,
		ConversationID:    conversationID,
	}
	if scope == metrics.ScopeTurn {
		turn := &conv.Turns[turnIdx]
		res.TurnID = string(turn.ID)
		res.Query = turn.Query
		res.Response = turn.Response
	}

	start := time.Now()
	score, reason := o.registry.Evaluate(ctx, id, &metrics.Request{
		Conversation: conv,
		TurnIndex:    turnIdx,
		Scope:        scope,
	})
	res.ExecutionTime = time.Since(start).Seconds()
	res.Reason = reason

	if score == nil {
		res.Status = conversation.StatusError
		return res
	}

	threshold := metrics.EffectiveThreshold(id, scope, conv, o.cfg.Defaults)
	res.Score = score
	res.Threshold = threshold
	res.Status = metrics.ResolveStatus(score, threshold)
	return res
}

// errorAll records every requested metric for every turn (and every
// conversation-level metric) as ERROR. No API call is made for the group.
func (o *Orchestrator) errorAll(conv *conversation.Conversation, reason string) []conversation.Result {
	var results []conversation.Result
	for i := range conv.Turns {
		turn := &conv.Turns[i]
		for _, id := range conv.TurnMetrics {
			results = append(results, o.newErrorResult(conv, turn, id, "", reason))
		}
	}
	for _, id := range conv.ConversationMetrics {
		results = append(results, conversation.Result{
			ConversationGroup: conv.GroupID,
			MetricIdentifier:  id,
			Status:            conversation.StatusError,
			Reason:            reason,
		})
	}
	return results
}

func (o *Orchestrator) newErrorResult(conv *conversation.Conversation, turn *conversation.Turn, id string, conversationID string, reason string) conversation.Result {
	return conversation.Result{
		ConversationGroup: conv.GroupID,
		TurnID:            string(turn.ID),
		MetricIdentifier:  id,
		ConversationID:    conversationID,
		Status:            conversation.StatusError,
		Reason:            reason,
		Query:             turn.Query,
	}
}
