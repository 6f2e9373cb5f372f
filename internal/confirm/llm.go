package confirm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

const confirmSystemPrompt = `You are a trading signal reviewer for a perpetual futures agent.
Given a signal and current market context, decide whether the trade should proceed.
Respond with a single JSON object and nothing else:
{"approved": true|false, "confidence": 0.0-1.0, "reasoning": "one sentence"}`

// LLMConfirmer confirms signals through an OpenAI-compatible chat
// completion endpoint. Claude and Perplexity are reached through their
// compatibility layers by overriding the base URL.
type LLMConfirmer struct {
	client    *openai.Client
	model     string
	threshold float64
}

// LLMConfig holds configuration for one confirmation model.
type LLMConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Threshold float64
}

// NewLLMConfirmer creates a confirmer backed by a chat completion model.
func NewLLMConfirmer(cfg LLMConfig) *LLMConfirmer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &LLMConfirmer{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		threshold: cfg.Threshold,
	}
}

// Confirm asks the model to review the signal. The verdict is rejected
// when the model's confidence falls below the configured threshold.
func (c *LLMConfirmer) Confirm(ctx context.Context, signal models.Signal, market MarketContext) (*Verdict, error) {
	prompt := buildPrompt(signal, market)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: confirmSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, errors.NewConfirmationError(c.model, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.NewConfirmationError(c.model, "chat completion", fmt.Errorf("no response from model"))
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, errors.NewConfirmationError(c.model, "parse verdict", err)
	}
	verdict.Model = c.model

	if verdict.Approved && verdict.Confidence < c.threshold {
		verdict.Approved = false
		verdict.Reasoning = fmt.Sprintf("confidence %.2f below threshold %.2f: %s",
			verdict.Confidence, c.threshold, verdict.Reasoning)
	}

	return verdict, nil
}

func buildPrompt(signal models.Signal, market MarketContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Signal: %s %s\n", signal.Direction, signal.Symbol)
	fmt.Fprintf(&b, "Source: %s (%s)\n", signal.Source, signal.SignalType)
	if signal.Timeframe != "" {
		fmt.Fprintf(&b, "Timeframe: %s\n", signal.Timeframe)
	}
	fmt.Fprintf(&b, "Signal confidence: %.2f\n", signal.Confidence)
	if signal.SuggestedEntryPrice > 0 {
		fmt.Fprintf(&b, "Suggested entry: %.6f\n", signal.SuggestedEntryPrice)
	}
	if signal.Reasoning != "" {
		fmt.Fprintf(&b, "Signal reasoning: %s\n", signal.Reasoning)
	}
	fmt.Fprintf(&b, "Mark price: %.6f\n", market.MarkPrice)
	fmt.Fprintf(&b, "Open positions: %d\n", market.OpenPositions)
	fmt.Fprintf(&b, "Daily realized PnL: %.2f\n", market.DailyPnL)
	return b.String()
}

// parseVerdict extracts the JSON verdict from a model response,
// tolerating surrounding prose and markdown fences.
func parseVerdict(content string) (*Verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %q", content)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse verdict: %w", err)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return nil, fmt.Errorf("confidence %.2f out of range", verdict.Confidence)
	}
	return &verdict, nil
}

var _ Confirmer = (*LLMConfirmer)(nil)
