// Package summarize implements the conditional history-compression
// pre-step that runs before every agent pipeline.
//
// Grounded on the teacher's best-effort-on-failure discipline seen in
// internal/agent/executor.go (a failed sub-step logs and the run
// continues rather than aborting); summarisation is the one place in the
// pipeline where a failure is swallowed instead of propagated.
package summarize

import (
	"context"
	"log/slog"

	"github.com/cerebraschat/orchestrator/internal/keypool"
	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// MessageThreshold and CharThreshold are the fixed trigger defaults: past
// either bound the history is compressed before the pipeline's first
// model call, so a long-running conversation doesn't grow its per-request
// token cost without limit.
const (
	MessageThreshold = 10
	CharThreshold    = 30000
)

const summaryHeader = "[summary of prior conversation]\n"

const summarizeInstruction = "compress to a detailed third-person summary, preserving system-prompt intent"

// Integrator is the subset of integration.Executor this package needs.
type Integrator interface {
	CallBuffered(ctx context.Context, pool *keypool.Pool, spec orchestration.ModelSpec, messages []orchestration.Message) (string, error)
}

type Summarizer struct {
	integrator Integrator
	logger     *slog.Logger
}

func New(integrator Integrator, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{integrator: integrator, logger: logger}
}

// Result reports whether compression ran and, if so, the new synthetic
// history prefix to emit in a SUMMARY_EXECUTED frame.
type Result struct {
	Executed          bool
	Messages          []orchestration.Message
	NewHistoryContext []orchestration.Message
}

// Triggered reports whether the message-count or char-count threshold is
// exceeded.
func Triggered(llmMessages []orchestration.Message, totalContentLength int) bool {
	return len(llmMessages) > MessageThreshold || totalContentLength > CharThreshold
}

// Run compresses llmMessages when triggered. On any failure it logs and
// returns the original messages unchanged — summarisation is best-effort
// and must never abort the pipeline.
func (s *Summarizer) Run(ctx context.Context, pool *keypool.Pool, model orchestration.ModelSpec, llmMessages []orchestration.Message, totalContentLength int) Result {
	if !Triggered(llmMessages, totalContentLength) {
		return Result{Messages: llmMessages}
	}
	if len(llmMessages) == 0 {
		return Result{Messages: llmMessages}
	}

	lastUser := llmMessages[len(llmMessages)-1]
	toSummarize := llmMessages[:len(llmMessages)-1]

	prompt := append(append([]orchestration.Message{}, toSummarize...), orchestration.Message{
		Role:    orchestration.RoleUser,
		Content: summarizeInstruction,
	})

	summary, err := s.integrator.CallBuffered(ctx, pool, model, prompt)
	if err != nil {
		s.logger.Warn("summarisation failed, proceeding with uncompressed history", "error", err)
		return Result{Messages: llmMessages}
	}

	summaryMessage := orchestration.Message{Role: orchestration.RoleSystem, Content: summaryHeader + summary}
	compressed := []orchestration.Message{summaryMessage, lastUser}

	return Result{
		Executed:          true,
		Messages:          compressed,
		NewHistoryContext: []orchestration.Message{summaryMessage},
	}
}
