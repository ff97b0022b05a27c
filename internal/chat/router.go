// Package chat is the generation entry point: it gates on quota, assembles
// the context, invokes one backend adapter, and normalizes the outcome into
// a user-displayable reply. Nothing below it propagates an error past this
// boundary.
package chat

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/michael7nightingale/ai-girls/internal/llm"
	"github.com/michael7nightingale/ai-girls/internal/models"
	"github.com/michael7nightingale/ai-girls/internal/prompt"
	"github.com/michael7nightingale/ai-girls/internal/quota"
)

// Outcome tags a reply so callers can branch without string matching: a
// quota-denied turn gets upsell UI, a failed one an error-free apology.
type Outcome int

const (
	OutcomeReply Outcome = iota
	OutcomeQuotaExceeded
	OutcomeFailed
)

// Reply is always displayable; Text is never empty.
type Reply struct {
	Text    string
	Outcome Outcome
}

// Options carries the per-call overrides. Backend, when set, takes
// precedence over the configured default.
type Options struct {
	Backend  string
	ModelID  string
	Sampling *llm.SamplingConfig
}

// Router holds the adapter set and routing policy. All dependencies arrive
// through construction; it keeps no global state.
type Router struct {
	generators     map[llm.Backend]llm.Generator
	defaultBackend string
	limits         quota.Limits
	timeout        time.Duration
}

func NewRouter(generators map[llm.Backend]llm.Generator, defaultBackend string, limits quota.Limits, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Router{
		generators:     generators,
		defaultBackend: defaultBackend,
		limits:         limits,
		timeout:        timeout,
	}
}

const limitNotice = "Достигнут лимит сообщений на сегодня (%d).\nПолучите премиум для большего количества сообщений!"

var apologies = []string{
	"Извини, %s сейчас немного занята. Попробуй написать позже! 😊",
	"Ой, %s не может ответить прямо сейчас. Попробуй еще раз! 💕",
}

// Respond runs one conversation turn: quota gate, context build, adapter
// call, post-processing. It mutates user.Quota in place (reset and consume);
// persisting the mutated state together with the stored messages is the
// caller's job, as is serializing concurrent turns for one user. There is no
// retry and no cross-backend fallback: a failed call yields an apology.
func (r *Router) Respond(ctx context.Context, user *models.User, character *models.Character, history []prompt.Turn, userText string, opts Options) Reply {
	now := time.Now()

	limit := r.limits.ForRole(user.EffectiveRole(now))
	if !quota.Allow(&user.Quota, limit, now) {
		return Reply{Text: fmt.Sprintf(limitNotice, limit), Outcome: OutcomeQuotaExceeded}
	}

	backend, err := llm.Resolve(opts.Backend, r.defaultBackend)
	if err != nil {
		log.Printf("backend resolve failed: %v", err)
		return Reply{Text: apologyFor(character.Name), Outcome: OutcomeFailed}
	}
	generator, ok := r.generators[backend]
	if !ok {
		log.Printf("backend %s not available", backend)
		return Reply{Text: apologyFor(character.Name), Outcome: OutcomeFailed}
	}

	variant := prompt.VariantGeneric
	if backend == llm.BackendOllama {
		variant = prompt.VariantCharacter
	}
	p := prompt.Build(character, history, userText, variant)

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	result, err := generator.Generate(callCtx, p, opts.ModelID, opts.Sampling)

	// The turn is consumed by the attempt, matching the original accounting;
	// denied turns above never reach this point.
	quota.Consume(&user.Quota, now)

	if err != nil {
		log.Printf("generation via %s failed: %v", backend, err)
		return Reply{Text: apologyFor(character.Name), Outcome: OutcomeFailed}
	}
	return Reply{Text: Clean(result.Text, character.Name), Outcome: OutcomeReply}
}

func apologyFor(name string) string {
	return fmt.Sprintf(apologies[rand.Intn(len(apologies))], name)
}
