// Package integration implements the single-call retry/eviction discipline
// shared with internal/parallel — one logical call instead of a fan-out
// round, used by every step that needs exactly one upstream answer
// (summariser, planner, hypothesis generator, router, and every
// integrate_* step).
//
// Grounded on the retry-loop shape of the teacher's
// internal/agent/providers/base.go BaseProvider.Retry, adapted to the
// classify-driven, key-evicting discipline instead of a fixed linear
// backoff (this system has no notion of a retry delay; pool.Next already
// rotates credentials between attempts).
package integration

import (
	"context"
	"log/slog"

	"github.com/cerebraschat/orchestrator/internal/classify"
	"github.com/cerebraschat/orchestrator/internal/keypool"
	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// MinRetry mirrors parallel.MinRetry; duplicated rather than imported so
// this package has no dependency on internal/parallel.
const MinRetry = 3

// Sink receives streamed token fragments for the duration of one
// integration call.
type Sink interface {
	Emit(chunk string)
}

// Caller is the subset of llmclient.Client this package needs.
type Caller interface {
	CallBuffered(ctx context.Context, key string, spec orchestration.ModelSpec, messages []orchestration.Message) (string, error)
	CallStreaming(ctx context.Context, key string, spec orchestration.ModelSpec, messages []orchestration.Message, sink Sink) (string, error)
}

type Executor struct {
	client Caller
	logger *slog.Logger
}

func New(client Caller, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, logger: logger}
}

// CallBuffered runs one logical call, retrying per §4.3/§4.5 until it
// succeeds, the budget is exhausted, or the pool empties.
func (e *Executor) CallBuffered(ctx context.Context, pool *keypool.Pool, spec orchestration.ModelSpec, messages []orchestration.Message) (string, error) {
	return e.run(ctx, pool, spec, func(key string) (string, error) {
		return e.client.CallBuffered(ctx, key, spec, messages)
	})
}

// CallStreaming runs one logical call, forwarding tokens to sink as they
// arrive, with the same retry discipline. A retry after a partial stream
// re-calls from scratch; the sink will see a fresh sequence of chunks for
// the attempt that ultimately succeeds — step callers are expected to use
// a sink that only commits tokens once CallStreaming returns success, or
// to tolerate a duplicate prefix on retry.
func (e *Executor) CallStreaming(ctx context.Context, pool *keypool.Pool, spec orchestration.ModelSpec, messages []orchestration.Message, sink Sink) (string, error) {
	return e.run(ctx, pool, spec, func(key string) (string, error) {
		return e.client.CallStreaming(ctx, key, spec, messages, sink)
	})
}

func (e *Executor) run(ctx context.Context, pool *keypool.Pool, spec orchestration.ModelSpec, call func(key string) (string, error)) (string, error) {
	attempts := 0
	maxAttempts := maxInt(pool.Count(), MinRetry)

	for {
		if pool.Count() == 0 {
			return "", &orchestration.IntegrationFailed{Cause: &orchestration.AllFailed{Reason: "key pool exhausted"}}
		}
		key, err := pool.Next()
		if err != nil {
			return "", &orchestration.IntegrationFailed{Cause: err}
		}

		content, err := call(key)
		attempts++
		if err == nil {
			return content, nil
		}

		status := 0
		if apiErr, ok := err.(*orchestration.ApiError); ok {
			status = apiErr.Status
		}
		c := classify.Classify(status)

		if c.EvictKey {
			pool.Evict(key)
			maxAttempts = maxInt(maxAttempts, attempts+pool.Count())
		}

		switch {
		case c.Permanent && c.DropModel:
			return "", &orchestration.IntegrationFailed{Cause: err}
		case attempts < maxAttempts:
			continue
		default:
			return "", &orchestration.IntegrationFailed{Cause: err}
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
