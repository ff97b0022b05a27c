package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/michael7nightingale/ai-girls/internal/config"
	"github.com/michael7nightingale/ai-girls/internal/prompt"
)

var defaultOpenAISampling = SamplingConfig{
	Temperature: 0.8,
	TopP:        1.0,
	MaxTokens:   300,
}

// OpenAIAdapter sends the context as a role-tagged message list.
type OpenAIAdapter struct {
	chatModel    model.ToolCallingChatModel
	defaultModel string
	sampling     SamplingConfig
}

// NewOpenAI builds the adapter; a missing credential fails here, not per call.
func NewOpenAI(cfg config.BackendConfig) (*OpenAIAdapter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api_key must be configured")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai model must be configured")
	}
	chatModel, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init openai chat model: %w", err)
	}
	return &OpenAIAdapter{
		chatModel:    chatModel,
		defaultModel: cfg.Model,
		sampling:     defaultOpenAISampling,
	}, nil
}

func (a *OpenAIAdapter) Generate(ctx context.Context, p prompt.Prompt, modelID string, sampling *SamplingConfig) (Result, error) {
	s := samplingOr(sampling, a.sampling)

	messages := make([]*schema.Message, 0, len(p.Lines)+2)
	messages = append(messages, &schema.Message{Role: schema.System, Content: p.System})
	for _, line := range p.Lines {
		role := schema.Assistant
		if line.FromUser {
			role = schema.User
		}
		messages = append(messages, &schema.Message{Role: role, Content: line.Text})
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: p.UserText})

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
		return Result{}, transportErr(BackendOpenAI, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Result{}, transportErr(BackendOpenAI, ErrMalformedResponse)
	}
	return Result{Text: strings.TrimSpace(resp.Content)}, nil
}
