// Package agentregistry is the closed, static dictionary from modeId to an
// ordered step list. It is deliberately not a plugin surface: every mode
// the orchestrator can run is enumerated here, and an unrecognised modeId
// falls back to StandardMode rather than exposing runtime registration of
// arbitrary step kinds.
package agentregistry

import "github.com/cerebraschat/orchestrator/internal/steps"

// StandardMode is the fallback modeId for any unrecognised request.
const StandardMode = "standard"

// registry maps every enumerated modeId to its full step sequence,
// including the leading "summarise" pre-step. The orchestrator runs its
// own summarisation pre-step and skips the first entry here; the
// declarative inclusion documents each agent's full intent.
var registry = map[string][]steps.Kind{
	"standard": {
		steps.KindSummarise, steps.KindExecuteStandard, steps.KindIntegrateStandard,
	},
	"expert_team": {
		steps.KindSummarise, steps.KindExecuteExpertTeam, steps.KindIntegrateStandard,
	},
	"deep_thought": {
		steps.KindSummarise, steps.KindExecuteDeepThought, steps.KindIntegrateDeepThought,
	},
	"critique": {
		steps.KindSummarise, steps.KindExecuteGenerators, steps.KindExecuteCritics, steps.KindIntegrateWithCritiques,
	},
	"dynamic_router": {
		steps.KindSummarise, steps.KindExecuteRouter, steps.KindExecuteExpertTeam, steps.KindIntegrateStandard,
	},
	"manager": {
		steps.KindSummarise, steps.KindPlanSubtasks, steps.KindExecuteSubtasks, steps.KindIntegrateReport,
	},
	"reflection_loop": {
		steps.KindSummarise, steps.KindReflectionLoop,
	},
	"hypothesis": {
		steps.KindSummarise, steps.KindGenerateHypotheses, steps.KindExecuteSubtasks, steps.KindIntegrateReport,
	},
	"emotion_analysis": {
		steps.KindSummarise, steps.KindExecuteEmotionAnalysis, steps.KindIntegrateWithEmotion,
	},
}

// Lookup returns the full step sequence (including the leading
// "summarise" entry) for modeId, falling back to StandardMode for any
// unrecognised id.
func Lookup(modeID string) []steps.Kind {
	if seq, ok := registry[modeID]; ok {
		return seq
	}
	return registry[StandardMode]
}

// PostSummarisePhases returns the step sequence with the leading
// "summarise" entry removed — what the orchestrator actually iterates,
// since it runs its own summarisation pre-step before looking up the
// agent.
func PostSummarisePhases(modeID string) []steps.Kind {
	full := Lookup(modeID)
	if len(full) > 0 && full[0] == steps.KindSummarise {
		return full[1:]
	}
	return full
}
