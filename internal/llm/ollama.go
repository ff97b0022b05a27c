package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/michael7nightingale/ai-girls/internal/config"
	"github.com/michael7nightingale/ai-girls/internal/prompt"
)

const defaultOllamaModel = "llama2"

// defaultOllamaSampling mirrors the tuned character-generation parameters of
// the local backend.
var defaultOllamaSampling = SamplingConfig{
	Temperature:   0.85,
	TopP:          0.92,
	MaxTokens:     250,
	RepeatPenalty: 1.15,
	TopK:          40,
}

// OllamaAdapter drives a local inference server through its generate API:
// one flattened prompt string plus a separate system string.
type OllamaAdapter struct {
	client       *api.Client
	defaultModel string
	sampling     SamplingConfig
}

// NewOllama validates the endpoint and builds the adapter. A missing or
// unparsable endpoint fails here, not per call.
func NewOllama(cfg config.BackendConfig) (*OllamaAdapter, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("ollama base_url must be configured")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama base_url %q", cfg.BaseURL)
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaAdapter{
		client:       api.NewClient(base, http.DefaultClient),
		defaultModel: model,
		sampling:     defaultOllamaSampling,
	}, nil
}

func (a *OllamaAdapter) Generate(ctx context.Context, p prompt.Prompt, modelID string, sampling *SamplingConfig) (Result, error) {
	model := modelID
	if model == "" {
		model = a.defaultModel
	}
	s := samplingOr(sampling, a.sampling)

	options := map[string]interface{}{
		"temperature":    s.Temperature,
		"top_p":          s.TopP,
		"num_predict":    s.MaxTokens,
		"repeat_penalty": s.RepeatPenalty,
	}
	if s.TopK > 0 {
		options["top_k"] = s.TopK
	}

	stream := false
	req := &api.GenerateRequest{
		Model:   model,
		Prompt:  p.Flatten(),
		System:  p.System,
		Stream:  &stream,
		Options: options,
	}

	var b strings.Builder
	err := a.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		b.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return Result{}, transportErr(BackendOllama, err)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return Result{}, transportErr(BackendOllama, ErrMalformedResponse)
	}
	return Result{Text: text}, nil
}

// ListModels reports the model names available on the local server.
func (a *OllamaAdapter) ListModels(ctx context.Context) ([]string, error) {
	resp, err := a.client.List(ctx)
	if err != nil {
		return nil, transportErr(BackendOllama, err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
