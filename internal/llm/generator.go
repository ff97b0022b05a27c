// Package llm holds the generation backends behind a single capability
// interface. Each adapter translates the canonical prompt into its backend's
// call shape and normalizes the response; no backend-specific type crosses
// the adapter boundary outward.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/michael7nightingale/ai-girls/internal/prompt"
)

// Backend identifies one generation backend. The set is closed: adding a
// backend means adding a constant and an adapter.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
	BackendClaude Backend = "claude"
)

// FallbackBackend is used when neither the call nor the configuration names
// a backend.
const FallbackBackend = BackendOllama

// ParseBackend validates a backend name.
func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(name))) {
	case BackendOllama:
		return BackendOllama, nil
	case BackendOpenAI:
		return BackendOpenAI, nil
	case BackendClaude:
		return BackendClaude, nil
	default:
		return "", fmt.Errorf("unknown backend: %q", name)
	}
}

// Resolve picks the backend for one call: explicit override first, then the
// configured default, then the hard-coded fallback.
func Resolve(explicit string, configured string) (Backend, error) {
	if strings.TrimSpace(explicit) != "" {
		return ParseBackend(explicit)
	}
	if strings.TrimSpace(configured) != "" {
		return ParseBackend(configured)
	}
	return FallbackBackend, nil
}

// SamplingConfig bundles the generation parameters. Each adapter carries its
// own defaults; a non-nil config replaces them for that call. Fields a
// backend does not support are ignored by its adapter.
type SamplingConfig struct {
	Temperature   float32
	TopP          float32
	MaxTokens     int
	RepeatPenalty float32
	TopK          int
}

// Result is a normalized successful generation. It is never partially
// populated: adapters return either a usable Text or an error.
type Result struct {
	Text string
}

// Generator is the common capability interface implemented by every backend
// adapter. An empty modelID selects the adapter's configured default model;
// a nil sampling config selects its default parameters. Any returned error
// is a *TransportError.
type Generator interface {
	Generate(ctx context.Context, p prompt.Prompt, modelID string, sampling *SamplingConfig) (Result, error)
}

// ErrMalformedResponse marks a backend reply that lacked usable text.
var ErrMalformedResponse = errors.New("malformed backend response")

// TransportError wraps any failure to reach a backend or to get a usable
// completion from it. It is the only error type adapters return.
type TransportError struct {
	Backend Backend
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transportErr(backend Backend, err error) error {
	return &TransportError{Backend: backend, Err: err}
}

func samplingOr(override *SamplingConfig, def SamplingConfig) SamplingConfig {
	if override != nil {
		return *override
	}
	return def
}

// CountTokens is the rough whitespace token estimate recorded per stored
// assistant message.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
