package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/michael7nightingale/ai-girls/internal/config"
	"github.com/michael7nightingale/ai-girls/internal/prompt"
)

var defaultClaudeSampling = SamplingConfig{
	Temperature: 0.8,
	TopP:        1.0,
	MaxTokens:   300,
}

// ClaudeAdapter sends the context as one flattened user message alongside a
// separate system field.
type ClaudeAdapter struct {
	chatModel    model.ToolCallingChatModel
	defaultModel string
	sampling     SamplingConfig
}

// NewClaude builds the adapter; a missing credential fails here, not per call.
func NewClaude(cfg config.BackendConfig) (*ClaudeAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("claude api_key must be configured")
	}
	if cfg.Model == "" {
		return nil, errors.New("claude model must be configured")
	}
	var baseURLPtr *string
	if cfg.BaseURL != "" {
		baseURLPtr = &cfg.BaseURL
	}
	chatModel, err := claude.NewChatModel(context.Background(), &claude.Config{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   baseURLPtr,
		MaxTokens: defaultClaudeSampling.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("init claude chat model: %w", err)
	}
	return &ClaudeAdapter{
		chatModel:    chatModel,
		defaultModel: cfg.Model,
		sampling:     defaultClaudeSampling,
	}, nil
}

func (a *ClaudeAdapter) Generate(ctx context.Context, p prompt.Prompt, modelID string, sampling *SamplingConfig) (Result, error) {
	s := samplingOr(sampling, a.sampling)

	messages := []*schema.Message{
		{Role: schema.System, Content: p.System},
		{Role: schema.User, Content: p.Flatten()},
	}

	opts := []model.Option{
		model.WithTemperature(s.Temperature),
		model.WithTopP(s.TopP),
		model.WithMaxTokens(s.MaxTokens),
	}
	if modelID != "" && modelID != a.defaultModel {
		opts = append(opts, model.WithModel(modelID))
	}

	resp, err := a.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return Result{}, transportErr(BackendClaude, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Result{}, transportErr(BackendClaude, ErrMalformedResponse)
	}
	return Result{Text: strings.TrimSpace(resp.Content)}, nil
}
