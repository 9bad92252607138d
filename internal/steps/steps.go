// Package steps implements the step library: the atomic, composable units
// that every agent pipeline is built from. Each step has signature
// (context.Context, *orchestration.AgentContext) error and is atomic with
// respect to the context — it either fully populates the outputs it owns
// or returns an error and the orchestrator aborts.
//
// Grounded on the teacher's internal/agent/executor.go step-running shape
// (run one unit, check its error, move on) and internal/multiagent/swarm.go
// for the concurrent-group patterns used by execute_emotion_analysis.
package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cerebraschat/orchestrator/internal/integration"
	"github.com/cerebraschat/orchestrator/internal/parallel"
	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// Kind names every step the registry can reference. Values are lowercase
// so StatusName can uppercase them for the STATUS frame.
type Kind string

const (
	KindSummarise              Kind = "summarise"
	KindPlanSubtasks           Kind = "plan_subtasks"
	KindGenerateHypotheses     Kind = "generate_hypotheses"
	KindExecuteStandard        Kind = "execute_standard"
	KindExecuteExpertTeam      Kind = "execute_expert_team"
	KindExecuteDeepThought     Kind = "execute_deep_thought"
	KindExecuteGenerators      Kind = "execute_generators"
	KindExecuteCritics         Kind = "execute_critics"
	KindExecuteRouter          Kind = "execute_router"
	KindExecuteSubtasks        Kind = "execute_subtasks"
	KindExecuteEmotionAnalysis Kind = "execute_emotion_analysis"
	KindIntegrateStandard      Kind = "integrate_standard"
	KindIntegrateDeepThought   Kind = "integrate_deep_thought"
	KindIntegrateWithCritiques Kind = "integrate_with_critiques"
	KindIntegrateReport        Kind = "integrate_report"
	KindIntegrateWithEmotion   Kind = "integrate_with_emotion"
	KindReflectionLoop         Kind = "reflection_loop"
)

// StatusName is the STEP name emitted in a STATUS frame for a kind, e.g.
// "execute_standard" -> "EXECUTE_STANDARD".
func StatusName(k Kind) string { return strings.ToUpper(string(k)) }

// Steps bundles the executors every step needs to make upstream calls.
type Steps struct {
	Parallel    *parallel.Executor
	Integration *integration.Executor
	Logger      *slog.Logger
}

func New(p *parallel.Executor, in *integration.Executor, logger *slog.Logger) *Steps {
	if logger == nil {
		logger = slog.Default()
	}
	return &Steps{Parallel: p, Integration: in, Logger: logger}
}

// Func is the signature every step implements.
type Func func(ctx context.Context, ac *orchestration.AgentContext) error

// Dispatch returns the Func implementing kind, or an error for an unknown
// or non-dispatchable (summarise) kind.
func (s *Steps) Dispatch(kind Kind) (Func, error) {
	switch kind {
	case KindPlanSubtasks:
		return s.PlanSubtasks, nil
	case KindGenerateHypotheses:
		return s.GenerateHypotheses, nil
	case KindExecuteStandard:
		return s.ExecuteStandard, nil
	case KindExecuteExpertTeam:
		return s.ExecuteExpertTeam, nil
	case KindExecuteDeepThought:
		return s.ExecuteDeepThought, nil
	case KindExecuteGenerators:
		return s.ExecuteGenerators, nil
	case KindExecuteCritics:
		return s.ExecuteCritics, nil
	case KindExecuteRouter:
		return s.ExecuteRouter, nil
	case KindExecuteSubtasks:
		return s.ExecuteSubtasks, nil
	case KindExecuteEmotionAnalysis:
		return s.ExecuteEmotionAnalysis, nil
	case KindIntegrateStandard:
		return s.IntegrateStandard, nil
	case KindIntegrateDeepThought:
		return s.IntegrateDeepThought, nil
	case KindIntegrateWithCritiques:
		return s.IntegrateWithCritiques, nil
	case KindIntegrateReport:
		return s.IntegrateReport, nil
	case KindIntegrateWithEmotion:
		return s.IntegrateWithEmotion, nil
	case KindReflectionLoop:
		return s.ReflectionLoop, nil
	default:
		return nil, fmt.Errorf("steps: unknown step kind %q", kind)
	}
}

// integratorSpec converts the request's integrator model settings to a
// ModelSpec. The request only carries one integrator block, so every step
// that needs an LLM call but isn't part of the model fan-out — planning,
// routing, role generation, hypothesis generation, meta-analysis — reuses
// it rather than asking the caller to configure a model per role.
func integratorSpec(ac *orchestration.AgentContext) orchestration.ModelSpec {
	ms := ac.AppConfig.IntegratorModel
	if ms == nil {
		return orchestration.ModelSpec{ID: "integrator", ModelName: "integrator-default", Enabled: true}
	}
	return orchestration.ModelSpec{
		ID:              "integrator",
		ModelName:       ms.ModelName,
		Temperature:     ms.Temperature,
		MaxOutputTokens: ms.MaxOutputTokens,
		Enabled:         true,
	}
}

func sameMessages(msgs []orchestration.Message) func(i int) []orchestration.Message {
	return func(i int) []orchestration.Message { return msgs }
}

// stripCodeFences removes a surrounding ```...``` or ```json...``` fence,
// a common LLM habit this codebase tolerates rather than rejects.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(s[:nl])
		if firstLine == "json" || firstLine == "" {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseJSONStringArray parses a strict JSON array of strings, tolerating a
// Markdown code fence around it. Models asked for a JSON array sometimes
// reply with a single paragraph instead, so on parse failure this demotes
// to a single-element array containing the raw text rather than failing
// the step outright.
func parseJSONStringArray(raw string) []string {
	cleaned := stripCodeFences(raw)
	var out []string
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return []string{raw}
	}
	return out
}

// requireEnabledModels guards every fan-out step against an empty model
// list. A request can disable every model and still reach a fan-out step;
// this check returns AllFailed before the step makes any call, so steps
// that first call the integrator (execute_expert_team) or index the model
// list (execute_subtasks, execute_emotion_analysis) never get that far.
func requireEnabledModels(ac *orchestration.AgentContext) error {
	if len(ac.EnabledModels) == 0 {
		return &orchestration.AllFailed{Reason: "no enabled models"}
	}
	return nil
}

// PlanSubtasks asks the integrator for a strict JSON array of actionable
// subtasks.
func (s *Steps) PlanSubtasks(ctx context.Context, ac *orchestration.AgentContext) error {
	prompt := append(append([]orchestration.Message{}, ac.LLMMessages...), orchestration.Message{
		Role:    orchestration.RoleUser,
		Content: "Break the above request into a strict JSON array of actionable subtasks (strings only).",
	})
	raw, err := s.Integration.CallBuffered(ctx, ac.Pool, integratorSpec(ac), prompt)
	if err != nil {
		return err
	}
	ac.SubTasks = parseJSONStringArray(raw)
	return nil
}

// GenerateHypotheses is PlanSubtasks asking for exactly three
// interpretations instead of an open-ended subtask list.
func (s *Steps) GenerateHypotheses(ctx context.Context, ac *orchestration.AgentContext) error {
	prompt := append(append([]orchestration.Message{}, ac.LLMMessages...), orchestration.Message{
		Role:    orchestration.RoleUser,
		Content: "Produce a strict JSON array of exactly three distinct interpretations of the above request.",
	})
	raw, err := s.Integration.CallBuffered(ctx, ac.Pool, integratorSpec(ac), prompt)
	if err != nil {
		return err
	}
	ac.SubTasks = parseJSONStringArray(raw)
	ac.IsHypothesis = true
	return nil
}

// ExecuteStandard fans out all enabled models against the shared history.
func (s *Steps) ExecuteStandard(ctx context.Context, ac *orchestration.AgentContext) error {
	if err := requireEnabledModels(ac); err != nil {
		return err
	}
	replies, err := s.Parallel.Run(ctx, ac.Pool, ac.EnabledModels, sameMessages(ac.LLMMessages))
	if err != nil {
		return err
	}
	ac.ParallelResponses = replies
	return nil
}

// ExecuteGenerators fans out all enabled models over the unchanged history
// to produce drafts.
func (s *Steps) ExecuteGenerators(ctx context.Context, ac *orchestration.AgentContext) error {
	return s.ExecuteStandard(ctx, ac)
}

// ExecuteExpertTeam first asks the integrator for a JSON array of personas
// sized to the enabled model count, then fans out with a per-model system
// preamble assigning each model its persona.
func (s *Steps) ExecuteExpertTeam(ctx context.Context, ac *orchestration.AgentContext) error {
	if err := requireEnabledModels(ac); err != nil {
		return err
	}

	var hints []string
	for _, m := range ac.EnabledModels {
		if m.Role != "" {
			hints = append(hints, m.Role)
		}
	}
	prompt := append(append([]orchestration.Message{}, ac.LLMMessages...), orchestration.Message{
		Role: orchestration.RoleUser,
		Content: fmt.Sprintf(
			"Produce a strict JSON array of exactly %d distinct expert persona descriptions for this request. Hints: %s",
			len(ac.EnabledModels), strings.Join(hints, "; ")),
	})
	raw, err := s.Integration.CallBuffered(ctx, ac.Pool, integratorSpec(ac), prompt)
	if err != nil {
		return err
	}
	personas := parseJSONStringArray(raw)
	if len(personas) == 0 {
		personas = []string{"a generalist assistant"}
	}

	messagesFor := func(i int) []orchestration.Message {
		persona := personas[i%len(personas)]
		out := make([]orchestration.Message, 0, len(ac.LLMMessages)+1)
		out = append(out, orchestration.Message{Role: orchestration.RoleSystem, Content: "act as " + persona})
		out = append(out, ac.LLMMessages...)
		return out
	}

	replies, err := s.Parallel.Run(ctx, ac.Pool, ac.EnabledModels, messagesFor)
	if err != nil {
		return err
	}
	ac.ParallelResponses = replies
	return nil
}

const deepThoughtInstruction = "Respond strictly in the format [思考]<your reasoning>[/思考][最終回答]<your final answer>."

// ExecuteDeepThought fans out with a shared trailing system instruction
// requiring the [思考]…[/思考][最終回答]… format, then parses each reply.
func (s *Steps) ExecuteDeepThought(ctx context.Context, ac *orchestration.AgentContext) error {
	if err := requireEnabledModels(ac); err != nil {
		return err
	}
	messages := append(append([]orchestration.Message{}, ac.LLMMessages...), orchestration.Message{
		Role:    orchestration.RoleSystem,
		Content: deepThoughtInstruction,
	})
	replies, err := s.Parallel.Run(ctx, ac.Pool, ac.EnabledModels, sameMessages(messages))
	if err != nil {
		return err
	}
	for i, r := range replies {
		content, thought := parseDeepThought(r.Content)
		replies[i].Content = content
		replies[i].Thought = thought
	}
	ac.ParallelResponses = replies
	return nil
}

// ExecuteCritics fans out all enabled models over the last user question
// plus the drafts so far, asking each to critique them.
func (s *Steps) ExecuteCritics(ctx context.Context, ac *orchestration.AgentContext) error {
	if err := requireEnabledModels(ac); err != nil {
		return err
	}
	question := lastUserContent(ac.LLMMessages)
	prompt := []orchestration.Message{
		{Role: orchestration.RoleUser, Content: "Question: " + question + "\n\nDrafts:\n" + formatReplies(ac.ParallelResponses) + "\n\nCritique these drafts."},
	}
	replies, err := s.Parallel.Run(ctx, ac.Pool, ac.EnabledModels, sameMessages(prompt))
	if err != nil {
		return err
	}
	ac.Critiques = replies
	return nil
}

// ExecuteRouter asks the integrator for a strategic system instruction and
// prepends it to llmMessages; it runs no inference itself.
func (s *Steps) ExecuteRouter(ctx context.Context, ac *orchestration.AgentContext) error {
	prompt := append(append([]orchestration.Message{}, ac.LLMMessages...), orchestration.Message{
		Role:    orchestration.RoleUser,
		Content: "Produce one strategic system instruction describing how the team of models should approach this request.",
	})
	instruction, err := s.Integration.CallBuffered(ctx, ac.Pool, integratorSpec(ac), prompt)
	if err != nil {
		return err
	}
	ac.LLMMessages = append([]orchestration.Message{{Role: orchestration.RoleSystem, Content: instruction}}, ac.LLMMessages...)
	return nil
}

// SubtaskID synthesises the virtual ModelSpec id execute_subtasks assigns
// to one (model, subtask-index) pair.
func SubtaskID(baseID string, index int) string {
	return fmt.Sprintf("%s__subtask_%d", baseID, index)
}

// ExecuteSubtasks round-robin assigns each planned subtask to an enabled
// model, synthesising a virtual ModelSpec copy per assignment since one
// model may receive more than one subtask.
func (s *Steps) ExecuteSubtasks(ctx context.Context, ac *orchestration.AgentContext) error {
	if err := requireEnabledModels(ac); err != nil {
		return err
	}
	if len(ac.SubTasks) == 0 {
		ac.ParallelResponses = nil
		return nil
	}

	virtualSpecs := make([]orchestration.ModelSpec, len(ac.SubTasks))
	virtualMessages := make([][]orchestration.Message, len(ac.SubTasks))
	for i, subtask := range ac.SubTasks {
		base := ac.EnabledModels[i%len(ac.EnabledModels)]
		virtual := base
		virtual.ID = SubtaskID(base.ID, i)
		virtualSpecs[i] = virtual
		virtualMessages[i] = []orchestration.Message{{Role: orchestration.RoleUser, Content: subtask}}
	}

	replies, err := s.Parallel.Run(ctx, ac.Pool, virtualSpecs, func(i int) []orchestration.Message {
		return virtualMessages[i]
	})
	if err != nil {
		return err
	}
	ac.ParallelResponses = replies
	return nil
}

// ExecuteEmotionAnalysis launches two fan-out groups concurrently: an
// analyser call on the first enabled model producing {emotion, tone}
// (stored in Critiques), and a standard fan-out across all enabled models
// (stored in ParallelResponses). If the answer fan-out yields nothing, the
// analyser's output becomes the answer.
func (s *Steps) ExecuteEmotionAnalysis(ctx context.Context, ac *orchestration.AgentContext) error {
	if err := requireEnabledModels(ac); err != nil {
		return err
	}

	var (
		wg                          sync.WaitGroup
		analyserReplies, stdReplies []orchestration.ModelReply
		analyserErr, stdErr         error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		analyser := []orchestration.ModelSpec{ac.EnabledModels[0]}
		prompt := []orchestration.Message{{
			Role:    orchestration.RoleUser,
			Content: "Analyse the emotional tone of: " + lastUserContent(ac.LLMMessages) + "\nRespond as strict JSON {\"emotion\":..,\"tone\":..}.",
		}}
		analyserReplies, analyserErr = s.Parallel.Run(ctx, ac.Pool, analyser, sameMessages(prompt))
	}()
	go func() {
		defer wg.Done()
		stdReplies, stdErr = s.Parallel.Run(ctx, ac.Pool, ac.EnabledModels, sameMessages(ac.LLMMessages))
	}()
	wg.Wait()

	if analyserErr != nil {
		return analyserErr
	}
	ac.Critiques = analyserReplies

	if stdErr != nil || len(stdReplies) == 0 {
		ac.ParallelResponses = analyserReplies
		return nil
	}
	ac.ParallelResponses = stdReplies
	return nil
}

func lastUserContent(messages []orchestration.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == orchestration.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func formatReplies(replies []orchestration.ModelReply) string {
	var b strings.Builder
	for i, r := range replies {
		fmt.Fprintf(&b, "%d. (%s) %s\n", i+1, r.Model, r.Content)
	}
	return b.String()
}
