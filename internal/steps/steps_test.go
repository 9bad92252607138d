package steps

import (
	"context"
	"sync"
	"testing"

	"github.com/cerebraschat/orchestrator/internal/integration"
	"github.com/cerebraschat/orchestrator/internal/keypool"
	"github.com/cerebraschat/orchestrator/internal/parallel"
	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// fakeClient scripts CallBuffered/CallStreaming per model name, shared by
// both parallel.Executor and integration.Executor.
type fakeClient struct {
	mu      sync.Mutex
	byModel map[string]func(key string) (string, error)
	calls   []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{byModel: make(map[string]func(key string) (string, error))}
}

func (f *fakeClient) on(model string, fn func(key string) (string, error)) {
	f.byModel[model] = fn
}

func (f *fakeClient) CallBuffered(ctx context.Context, key string, spec orchestration.ModelSpec, messages []orchestration.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec.ModelName)
	fn := f.byModel[spec.ModelName]
	f.mu.Unlock()
	if fn == nil {
		return "default-" + spec.ModelName, nil
	}
	return fn(key)
}

func (f *fakeClient) CallStreaming(ctx context.Context, key string, spec orchestration.ModelSpec, messages []orchestration.Message, sink integration.Sink) (string, error) {
	content, err := f.CallBuffered(ctx, key, spec, messages)
	if err != nil {
		return "", err
	}
	if sink != nil {
		sink.Emit(content)
	}
	return content, nil
}

type collectingSink struct{ chunks []string }

func (s *collectingSink) Emit(chunk string) { s.chunks = append(s.chunks, chunk) }

func newSteps(t *testing.T, fc *fakeClient) *Steps {
	t.Helper()
	return New(parallel.New(fc, nil), integration.New(fc, nil), nil)
}

func newPool(t *testing.T, keys ...string) *keypool.Pool {
	t.Helper()
	p, err := keypool.New(keys)
	if err != nil {
		t.Fatalf("keypool.New: %v", err)
	}
	return p
}

func baseContext(pool *keypool.Pool, sink *collectingSink, models ...orchestration.ModelSpec) *orchestration.AgentContext {
	return &orchestration.AgentContext{
		Pool:          pool,
		LLMMessages:   []orchestration.Message{{Role: orchestration.RoleUser, Content: "what should I do?"}},
		EnabledModels: models,
		StreamSink:    sink,
		AppConfig: orchestration.AppConfig{
			IntegratorModel: &orchestration.ModelSettings{ModelName: "integrator"},
		},
	}
}

func TestPlanSubtasks_ParsesJSONArray(t *testing.T) {
	fc := newFakeClient()
	fc.on("integrator", func(string) (string, error) { return `["step one", "step two"]`, nil })
	s := newSteps(t, fc)
	ac := baseContext(newPool(t, "k1"), &collectingSink{})

	if err := s.PlanSubtasks(context.Background(), ac); err != nil {
		t.Fatalf("PlanSubtasks: %v", err)
	}
	if len(ac.SubTasks) != 2 || ac.SubTasks[0] != "step one" {
		t.Fatalf("SubTasks=%v, want [step one, step two]", ac.SubTasks)
	}
}

func TestPlanSubtasks_FallsBackToRawOnParseFailure(t *testing.T) {
	fc := newFakeClient()
	fc.on("integrator", func(string) (string, error) { return "not json at all", nil })
	s := newSteps(t, fc)
	ac := baseContext(newPool(t, "k1"), &collectingSink{})

	if err := s.PlanSubtasks(context.Background(), ac); err != nil {
		t.Fatalf("PlanSubtasks: %v", err)
	}
	if len(ac.SubTasks) != 1 || ac.SubTasks[0] != "not json at all" {
		t.Fatalf("SubTasks=%v, want single-element raw-text fallback", ac.SubTasks)
	}
}

func TestPlanSubtasks_StripsCodeFence(t *testing.T) {
	fc := newFakeClient()
	fc.on("integrator", func(string) (string, error) { return "```json\n[\"a\",\"b\"]\n```", nil })
	s := newSteps(t, fc)
	ac := baseContext(newPool(t, "k1"), &collectingSink{})

	if err := s.PlanSubtasks(context.Background(), ac); err != nil {
		t.Fatalf("PlanSubtasks: %v", err)
	}
	if len(ac.SubTasks) != 2 {
		t.Fatalf("SubTasks=%v, want 2 entries after fence stripping", ac.SubTasks)
	}
}

func TestGenerateHypotheses_SetsIsHypothesis(t *testing.T) {
	fc := newFakeClient()
	fc.on("integrator", func(string) (string, error) { return `["a","b","c"]`, nil })
	s := newSteps(t, fc)
	ac := baseContext(newPool(t, "k1"), &collectingSink{})

	if err := s.GenerateHypotheses(context.Background(), ac); err != nil {
		t.Fatalf("GenerateHypotheses: %v", err)
	}
	if !ac.IsHypothesis {
		t.Fatal("expected IsHypothesis=true")
	}
	if len(ac.SubTasks) != 3 {
		t.Fatalf("SubTasks=%v, want 3", ac.SubTasks)
	}
}

func TestExecuteStandard_GuardsEmptyEnabledModels(t *testing.T) {
	fc := newFakeClient()
	s := newSteps(t, fc)
	ac := baseContext(newPool(t, "k1"), &collectingSink{})
	ac.EnabledModels = nil

	err := s.ExecuteStandard(context.Background(), ac)
	if err == nil {
		t.Fatal("expected error for empty enabled models")
	}
	if _, ok := err.(*orchestration.AllFailed); !ok {
		t.Fatalf("expected *orchestration.AllFailed, got %T", err)
	}
}

func TestExecuteExpertTeam_AssignsPersonasRoundRobin(t *testing.T) {
	fc := newFakeClient()
	fc.on("integrator", func(string) (string, error) { return `["persona-1","persona-2"]`, nil })
	fc.on("A", func(string) (string, error) { return "reply-A", nil })
	fc.on("B", func(string) (string, error) { return "reply-B", nil })
	fc.on("C", func(string) (string, error) { return "reply-C", nil })
	s := newSteps(t, fc)

	models := []orchestration.ModelSpec{
		{ID: "a", ModelName: "A", Enabled: true},
		{ID: "b", ModelName: "B", Enabled: true},
		{ID: "c", ModelName: "C", Enabled: true},
	}
	ac := baseContext(newPool(t, "k1"), &collectingSink{}, models...)

	if err := s.ExecuteExpertTeam(context.Background(), ac); err != nil {
		t.Fatalf("ExecuteExpertTeam: %v", err)
	}
	if len(ac.ParallelResponses) != 3 {
		t.Fatalf("ParallelResponses=%v, want 3 entries", ac.ParallelResponses)
	}
}

func TestExecuteSubtasks_RoundRobinAssignsVirtualIDs(t *testing.T) {
	fc := newFakeClient()
	fc.on("A", func(string) (string, error) { return "a-reply", nil })
	fc.on("B", func(string) (string, error) { return "b-reply", nil })
	s := newSteps(t, fc)

	models := []orchestration.ModelSpec{
		{ID: "a", ModelName: "A", Enabled: true},
		{ID: "b", ModelName: "B", Enabled: true},
	}
	ac := baseContext(newPool(t, "k1"), &collectingSink{}, models...)
	ac.SubTasks = []string{"task0", "task1", "task2"}

	if err := s.ExecuteSubtasks(context.Background(), ac); err != nil {
		t.Fatalf("ExecuteSubtasks: %v", err)
	}
	if len(ac.ParallelResponses) != 3 {
		t.Fatalf("ParallelResponses=%v, want 3 (one per subtask)", ac.ParallelResponses)
	}
}

func TestExecuteSubtasks_NoSubtasksIsANoOp(t *testing.T) {
	fc := newFakeClient()
	s := newSteps(t, fc)
	models := []orchestration.ModelSpec{{ID: "a", ModelName: "A", Enabled: true}}
	ac := baseContext(newPool(t, "k1"), &collectingSink{}, models...)

	if err := s.ExecuteSubtasks(context.Background(), ac); err != nil {
		t.Fatalf("ExecuteSubtasks: %v", err)
	}
	if ac.ParallelResponses != nil {
		t.Fatalf("ParallelResponses=%v, want nil", ac.ParallelResponses)
	}
}

func TestIntegrateStandard_SingleReplyStreamsDirectly(t *testing.T) {
	fc := newFakeClient()
	s := newSteps(t, fc)
	sink := &collectingSink{}
	ac := baseContext(newPool(t, "k1"), sink)
	ac.ParallelResponses = []orchestration.ModelReply{{Model: "A", Content: "only answer"}}

	if err := s.IntegrateStandard(context.Background(), ac); err != nil {
		t.Fatalf("IntegrateStandard: %v", err)
	}
	if !ac.FinalContentStreamed {
		t.Fatal("expected FinalContentStreamed=true")
	}
	if ac.FinalContent != "only answer" {
		t.Fatalf("FinalContent=%q, want %q", ac.FinalContent, "only answer")
	}
	if len(sink.chunks) != 1 || sink.chunks[0] != "only answer" {
		t.Fatalf("sink.chunks=%v", sink.chunks)
	}
}

func TestIntegrateStandard_MultipleRepliesCallsIntegrator(t *testing.T) {
	fc := newFakeClient()
	fc.on("integrator", func(string) (string, error) { return "synthesised answer", nil })
	s := newSteps(t, fc)
	sink := &collectingSink{}
	ac := baseContext(newPool(t, "k1"), sink)
	ac.ParallelResponses = []orchestration.ModelReply{
		{Model: "A", Content: "draft A"},
		{Model: "B", Content: "draft B"},
	}

	if err := s.IntegrateStandard(context.Background(), ac); err != nil {
		t.Fatalf("IntegrateStandard: %v", err)
	}
	if ac.FinalContent != "synthesised answer" {
		t.Fatalf("FinalContent=%q", ac.FinalContent)
	}
	if len(ac.ModelResponses) != 2 {
		t.Fatalf("ModelResponses=%v, want the 2 drafts surfaced to the UI", ac.ModelResponses)
	}
}

func TestExecuteDeepThought_ParsesThoughtAndAnswer(t *testing.T) {
	fc := newFakeClient()
	fc.on("A", func(string) (string, error) { return "[思考]plan[/思考][最終回答]answer", nil })
	s := newSteps(t, fc)
	models := []orchestration.ModelSpec{{ID: "a", ModelName: "A", Enabled: true}}
	ac := baseContext(newPool(t, "k1"), &collectingSink{}, models...)

	if err := s.ExecuteDeepThought(context.Background(), ac); err != nil {
		t.Fatalf("ExecuteDeepThought: %v", err)
	}
	if len(ac.ParallelResponses) != 1 {
		t.Fatalf("ParallelResponses=%v, want 1", ac.ParallelResponses)
	}
	if ac.ParallelResponses[0].Content != "answer" || ac.ParallelResponses[0].Thought != "plan" {
		t.Fatalf("got content=%q thought=%q", ac.ParallelResponses[0].Content, ac.ParallelResponses[0].Thought)
	}
}

func TestExecuteEmotionAnalysis_HappyPathPopulatesBothGroups(t *testing.T) {
	fc := newFakeClient()
	fc.on("A", func(string) (string, error) { return "emotion-or-answer-from-A", nil })
	fc.on("B", func(string) (string, error) { return "answer-from-B", nil })
	s := newSteps(t, fc)
	models := []orchestration.ModelSpec{
		{ID: "a", ModelName: "A", Enabled: true},
		{ID: "b", ModelName: "B", Enabled: true},
	}
	ac := baseContext(newPool(t, "k1"), &collectingSink{}, models...)

	if err := s.ExecuteEmotionAnalysis(context.Background(), ac); err != nil {
		t.Fatalf("ExecuteEmotionAnalysis: %v", err)
	}
	if len(ac.Critiques) != 1 {
		t.Fatalf("Critiques (analyser output)=%v, want 1 entry", ac.Critiques)
	}
	if len(ac.ParallelResponses) != 2 {
		t.Fatalf("ParallelResponses (answer fanout)=%v, want 2 entries", ac.ParallelResponses)
	}
}

func TestExecuteEmotionAnalysis_AnalyserFailurePropagates(t *testing.T) {
	fc := newFakeClient()
	fc.on("A", func(string) (string, error) { return "", &orchestration.ApiError{Status: 404, Model: "A"} })
	s := newSteps(t, fc)
	// The analyser always calls EnabledModels[0]; failing it permanently
	// fails the whole step even though other models are healthy.
	models := []orchestration.ModelSpec{
		{ID: "a", ModelName: "A", Enabled: true},
		{ID: "b", ModelName: "B", Enabled: true},
	}
	ac := baseContext(newPool(t, "k1"), &collectingSink{}, models...)

	if err := s.ExecuteEmotionAnalysis(context.Background(), ac); err == nil {
		t.Fatal("expected the analyser's failure to propagate")
	}
}

type statusRecorder struct{ names []string }

func (s *statusRecorder) Status(name string) error {
	s.names = append(s.names, name)
	return nil
}

func TestReflectionLoop_EmitsStatusPerSubPhase(t *testing.T) {
	fc := newFakeClient()
	fc.on("A", func(string) (string, error) { return "[思考]p[/思考][最終回答]a", nil })
	fc.on("integrator", func(string) (string, error) { return "final", nil })
	s := newSteps(t, fc)
	models := []orchestration.ModelSpec{{ID: "a", ModelName: "A", Enabled: true}}
	ac := baseContext(newPool(t, "k1"), &collectingSink{}, models...)
	rec := &statusRecorder{}
	ac.StatusSink = rec

	if err := s.ReflectionLoop(context.Background(), ac); err != nil {
		t.Fatalf("ReflectionLoop: %v", err)
	}
	want := []string{"EXECUTE_DEEP_THOUGHT", "EXECUTE_CRITICS", "INTEGRATE_WITH_CRITIQUES"}
	if len(rec.names) != len(want) {
		t.Fatalf("status names=%v, want %v", rec.names, want)
	}
	for i := range want {
		if rec.names[i] != want[i] {
			t.Fatalf("status[%d]=%q, want %q", i, rec.names[i], want[i])
		}
	}
	if !ac.FinalContentStreamed {
		t.Fatal("expected the final integrate_with_critiques phase to stream")
	}
}

func TestDispatch_UnknownKindReturnsError(t *testing.T) {
	fc := newFakeClient()
	s := newSteps(t, fc)
	if _, err := s.Dispatch(Kind("not-a-real-step")); err == nil {
		t.Fatal("expected an error for an unknown step kind")
	}
}
