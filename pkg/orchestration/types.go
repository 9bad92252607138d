// Package orchestration holds the wire-independent data model shared by the
// key pool, model client, parallel and integration executors, the step
// library, and the orchestrator itself.
package orchestration

// Role identifies the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of conversation history. It carries no server-side
// identity; the same value can be freely copied and replayed.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ModelSpec describes one backend model participating in a request.
//
// ID is opaque to the engine and must be unique within a request, even when
// the same ModelName is used more than once (virtual duplicates created by
// execute_subtasks use a derived ID; see steps.SubtaskID).
type ModelSpec struct {
	ID              string
	ModelName       string
	Temperature     float64
	MaxOutputTokens int
	Enabled         bool
	Role            string // free-form label; some agents use it as a hint
}

// ModelReply is one model's contribution to a parallel fan-out, as surfaced
// to the UI.
type ModelReply struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Content  string `json:"content"`
	Thought  string `json:"thought,omitempty"`
}

// ModelSettings is the subset of ModelSpec relevant to a single-purpose
// integrator/summariser call: there is no ID, Enabled, or Role, because the
// caller is not choosing among candidates.
type ModelSettings struct {
	ModelName       string
	Temperature     float64
	MaxOutputTokens int
}

// ProviderCerebras is the only backend provider identity this build emits;
// kept as a named constant rather than inlined since every ModelReply
// carries it for UI display.
const ProviderCerebras = "cerebras"

// AppConfig carries the two reusable model settings blocks from the request
// envelope. IntegratorModel is reused as planner, router, role-generator,
// hypothesis-generator, and meta-analyser, since the request format only
// gives callers one non-fan-out model slot to configure.
type AppConfig struct {
	SummarizerModel *ModelSettings
	IntegratorModel *ModelSettings
}
