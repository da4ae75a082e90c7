package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/helmsman-ai/concierge/internal/util"
	"github.com/helmsman-ai/concierge/pkg/logger"
)

// Router wraps a Client and retries generation across an ordered list of
// models. The first model is tried up to attemptsPerModel times before the
// router moves on to the next one. Context cancellation aborts the chain
// immediately.
//
// Router itself satisfies Client, so it can stand in wherever a plain
// client would.
type Router struct {
	client           Client
	models           []string
	attemptsPerModel int
}

// NewRouter creates a router over client with the given fallback chain.
// models must contain at least one entry. If attemptsPerModel <= 0, it
// defaults to 1.
func NewRouter(client Client, models []string, attemptsPerModel int) (*Router, error) {
	if len(models) == 0 {
		return nil, errors.New("router requires at least one model")
	}
	if attemptsPerModel <= 0 {
		attemptsPerModel = 1
	}
	return &Router{
		client:           client,
		models:           models,
		attemptsPerModel: attemptsPerModel,
	}, nil
}

func (r *Router) run(ctx context.Context, fn func(ctx context.Context, model string) error) error {
	var lastErr error
	for i, model := range r.models {
		err := util.RetryErrWithContext(ctx, r.attemptsPerModel, func(ctx context.Context) error {
			return fn(ctx, model)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		if i < len(r.models)-1 {
			logger.Warn("[Router] Model failed, falling back",
				"model", model,
				"next", r.models[i+1],
				"error", err,
			)
		}
	}
	return fmt.Errorf("all models exhausted: %w", lastErr)
}

// GenerateCompletion generates a completion, walking the fallback chain
// until one model succeeds.
func (r *Router) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...GenerateOption,
) (string, error) {
	var result string
	err := r.run(ctx, func(ctx context.Context, model string) error {
		out, err := r.client.GenerateCompletion(ctx, prompt, append(opts, WithModel(model))...)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	return result, err
}

// GenerateCompletionWithFormat generates structured output, walking the
// fallback chain until one model produces a parseable result.
func (r *Router) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...GenerateOption,
) error {
	return r.run(ctx, func(ctx context.Context, model string) error {
		return r.client.GenerateCompletionWithFormat(
			ctx, name, description, prompt, out,
			append(opts, WithModel(model))...,
		)
	})
}

// GenerateChat generates a chat completion, walking the fallback chain
// until one model succeeds.
func (r *Router) GenerateChat(
	ctx context.Context,
	messages []ChatMessage,
	opts ...GenerateOption,
) (string, error) {
	var result string
	err := r.run(ctx, func(ctx context.Context, model string) error {
		out, err := r.client.GenerateChat(ctx, messages, append(opts, WithModel(model))...)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	return result, err
}

// GenerateEmbedding delegates to the wrapped client. Embedding models are
// not part of the fallback chain.
func (r *Router) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return r.client.GenerateEmbedding(ctx, input)
}

func (r *Router) ResetMetrics() {
	r.client.ResetMetrics()
}

func (r *Router) GetMetrics() ModelMetrics {
	return r.client.GetMetrics()
}
