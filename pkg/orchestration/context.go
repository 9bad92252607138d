package orchestration

import "github.com/cerebraschat/orchestrator/internal/keypool"

// Sink receives streamed token fragments. It has the same method set as
// llmclient.Sink and integration.Sink, and streamcodec.Writer satisfies it
// structurally, so AgentContext can hold one without importing any of
// those packages.
type Sink interface {
	Emit(chunk string)
}

// StatusSink emits a STATUS frame. reflection_loop is the one step that
// needs to emit sub-phase STATUS frames itself, rather than relying on the
// orchestrator's between-step STATUS emission.
type StatusSink interface {
	Status(stepName string) error
}

// AgentContext is the mutable record threaded through one agent's step
// pipeline. Steps run sequentially, so interior mutability is sufficient:
// a running step owns the context exclusively until it returns.
//
// Inputs are set once by the orchestrator before the pipeline starts;
// outputs are progressively filled by steps as they run. A step is atomic
// with respect to the context: it either fully populates the outputs it
// owns, or it returns an error and the orchestrator aborts the request.
type AgentContext struct {
	// Inputs.
	Pool                *keypool.Pool
	LLMMessages         []Message
	EnabledModels       []ModelSpec
	AppConfig           AppConfig
	StreamSink          Sink
	StatusSink          StatusSink
	TotalContentLength  int
	AgentMode           string
	SystemPrompt        string

	// Outputs.
	ParallelResponses     []ModelReply
	Critiques             []ModelReply
	SubTasks              []string
	IsHypothesis          bool
	FinalContent          string
	ModelResponses        []ModelReply
	SummaryExecuted       bool
	NewHistoryContext     []Message
	FinalContentStreamed  bool
}
