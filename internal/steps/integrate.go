package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// IntegrateStandard streams the sole reply directly when there is exactly
// one, otherwise asks the streaming integrator to synthesise one answer
// from a numbered listing of all replies.
func (s *Steps) IntegrateStandard(ctx context.Context, ac *orchestration.AgentContext) error {
	ac.ModelResponses = ac.ParallelResponses

	if len(ac.ParallelResponses) == 1 {
		return s.streamDirect(ac, ac.ParallelResponses[0].Content)
	}

	question := lastUserContent(ac.LLMMessages)
	prompt := []orchestration.Message{{
		Role:    orchestration.RoleUser,
		Content: "Question: " + question + "\n\nCandidate answers:\n" + formatReplies(ac.ParallelResponses) + "\n\nSynthesise the single best final answer.",
	}}
	return s.streamIntegration(ctx, ac, prompt)
}

// IntegrateDeepThought is IntegrateStandard with a listing that includes
// each reply's thought alongside its content.
func (s *Steps) IntegrateDeepThought(ctx context.Context, ac *orchestration.AgentContext) error {
	ac.ModelResponses = ac.ParallelResponses

	if len(ac.ParallelResponses) == 1 {
		return s.streamDirect(ac, ac.ParallelResponses[0].Content)
	}

	var listing strings.Builder
	for i, r := range ac.ParallelResponses {
		fmt.Fprintf(&listing, "%d. (%s) thought: %s\n   answer: %s\n", i+1, r.Model, r.Thought, r.Content)
	}
	question := lastUserContent(ac.LLMMessages)
	prompt := []orchestration.Message{{
		Role:    orchestration.RoleUser,
		Content: "Question: " + question + "\n\nCandidate reasoning and answers:\n" + listing.String() + "\n\nSynthesise the single best final answer.",
	}}
	return s.streamIntegration(ctx, ac, prompt)
}

// IntegrateWithCritiques asks the streaming integrator to act as final
// editor, applying every critique to the drafts. Both the drafts and the
// critiques are surfaced to the UI.
func (s *Steps) IntegrateWithCritiques(ctx context.Context, ac *orchestration.AgentContext) error {
	ac.ModelResponses = append(append([]orchestration.ModelReply{}, ac.ParallelResponses...), ac.Critiques...)

	question := lastUserContent(ac.LLMMessages)
	prompt := []orchestration.Message{{
		Role: orchestration.RoleUser,
		Content: "Question: " + question + "\n\nDrafts:\n" + formatReplies(ac.ParallelResponses) +
			"\n\nCritiques:\n" + formatReplies(ac.Critiques) +
			"\n\nAs final editor, apply all critiques and produce the single best final answer.",
	}}
	return s.streamIntegration(ctx, ac, prompt)
}

// IntegrateReport builds a {subTask_i, reply_i} report and asks the
// streaming integrator to synthesise a final answer from it. Used by the
// manager and hypothesis agents.
func (s *Steps) IntegrateReport(ctx context.Context, ac *orchestration.AgentContext) error {
	ac.ModelResponses = ac.ParallelResponses

	var report strings.Builder
	for i, reply := range ac.ParallelResponses {
		subtask := ""
		if i < len(ac.SubTasks) {
			subtask = ac.SubTasks[i]
		}
		fmt.Fprintf(&report, "Subtask %d: %s\nReply %d: %s\n\n", i+1, subtask, i+1, reply.Content)
	}
	prompt := []orchestration.Message{{
		Role:    orchestration.RoleUser,
		Content: "Report of subtasks and their replies:\n" + report.String() + "\nSynthesise a single final answer.",
	}}
	return s.streamIntegration(ctx, ac, prompt)
}

// IntegrateWithEmotion rewrites the standard answer in the tone identified
// by ExecuteEmotionAnalysis. The analyser has no dedicated output field of
// its own, so it writes its verdict into the Critiques slot, and this is
// the one consumer that reads critiques[0] back out.
func (s *Steps) IntegrateWithEmotion(ctx context.Context, ac *orchestration.AgentContext) error {
	ac.ModelResponses = ac.ParallelResponses

	analysis := ""
	if len(ac.Critiques) > 0 {
		analysis = ac.Critiques[0].Content
	}
	prompt := []orchestration.Message{{
		Role: orchestration.RoleUser,
		Content: "History analysis (emotion/tone): " + analysis + "\n\nDrafts:\n" + formatReplies(ac.ParallelResponses) +
			"\n\nRewrite the best draft in the analysed tone.",
	}}
	return s.streamIntegration(ctx, ac, prompt)
}

// ReflectionLoop is a composite step: execute_deep_thought ->
// execute_critics -> integrate_with_critiques, emitting a STATUS frame
// before each sub-phase.
func (s *Steps) ReflectionLoop(ctx context.Context, ac *orchestration.AgentContext) error {
	phases := []struct {
		kind Kind
		fn   Func
	}{
		{KindExecuteDeepThought, s.ExecuteDeepThought},
		{KindExecuteCritics, s.ExecuteCritics},
		{KindIntegrateWithCritiques, s.IntegrateWithCritiques},
	}
	for _, phase := range phases {
		if ac.StatusSink != nil {
			if err := ac.StatusSink.Status(StatusName(phase.kind)); err != nil {
				return err
			}
		}
		if err := phase.fn(ctx, ac); err != nil {
			return err
		}
	}
	return nil
}

func (s *Steps) streamDirect(ac *orchestration.AgentContext, content string) error {
	if ac.StreamSink != nil {
		ac.StreamSink.Emit(content)
	}
	ac.FinalContent = content
	ac.FinalContentStreamed = true
	return nil
}

func (s *Steps) streamIntegration(ctx context.Context, ac *orchestration.AgentContext, prompt []orchestration.Message) error {
	content, err := s.Integration.CallStreaming(ctx, ac.Pool, integratorSpec(ac), prompt, ac.StreamSink)
	if err != nil {
		return err
	}
	ac.FinalContent = content
	ac.FinalContentStreamed = true
	return nil
}
