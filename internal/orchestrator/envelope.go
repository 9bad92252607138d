package orchestrator

import (
	"encoding/json"
	"io"

	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// messageEnvelope is the wire shape of one entry in the request's
// "messages" array.
type messageEnvelope struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// modelSettingsEnvelope is one entry of data.modelSettings.
type modelSettingsEnvelope struct {
	ID              string  `json:"id"`
	ModelName       string  `json:"modelName"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"maxTokens"`
	Enabled         bool    `json:"enabled"`
	Role            string  `json:"role,omitempty"`
}

// modelBlockEnvelope is one entry of data.appSettings (summarizerModel /
// integratorModel).
type modelBlockEnvelope struct {
	ModelName   string  `json:"modelName"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type appSettingsEnvelope struct {
	SummarizerModel *modelBlockEnvelope `json:"summarizerModel"`
	IntegratorModel *modelBlockEnvelope `json:"integratorModel"`
}

type dataEnvelope struct {
	AgentMode           string                  `json:"agentMode"`
	SystemPrompt        string                  `json:"systemPrompt"`
	ModelSettings       []modelSettingsEnvelope `json:"modelSettings"`
	AppSettings         appSettingsEnvelope     `json:"appSettings"`
	TotalContentLength  int                     `json:"totalContentLength"`
}

// requestEnvelope is the full body of the single POST endpoint.
type requestEnvelope struct {
	Messages []messageEnvelope `json:"messages"`
	Data     dataEnvelope      `json:"data"`
}

// decodeEnvelope parses and validates the request body. A malformed or
// empty message list is reported as a BadRequest here, before ServeHTTP
// opens the response stream — the client must be able to see a normal
// JSON error status instead of a half-open chunked body.
func decodeEnvelope(body io.Reader) (*requestEnvelope, error) {
	var env requestEnvelope
	dec := json.NewDecoder(body)
	if err := dec.Decode(&env); err != nil {
		return nil, &orchestration.BadRequest{Reason: "malformed JSON body: " + err.Error()}
	}
	if len(env.Messages) == 0 {
		return nil, &orchestration.BadRequest{Reason: "messages must be a non-empty ordered sequence"}
	}
	last := env.Messages[len(env.Messages)-1]
	if last.Role != string(orchestration.RoleUser) {
		return nil, &orchestration.BadRequest{Reason: "messages must end with a user turn"}
	}
	return &env, nil
}

func toMessages(in []messageEnvelope) []orchestration.Message {
	out := make([]orchestration.Message, len(in))
	for i, m := range in {
		out[i] = orchestration.Message{Role: orchestration.Role(m.Role), Content: m.Content}
	}
	return out
}

func toModelSpecs(in []modelSettingsEnvelope) []orchestration.ModelSpec {
	var out []orchestration.ModelSpec
	for _, m := range in {
		if !m.Enabled {
			continue
		}
		out = append(out, orchestration.ModelSpec{
			ID:              m.ID,
			ModelName:       m.ModelName,
			Temperature:     m.Temperature,
			MaxOutputTokens: m.MaxTokens,
			Enabled:         m.Enabled,
			Role:            m.Role,
		})
	}
	return out
}

func toModelSettings(in *modelBlockEnvelope) *orchestration.ModelSettings {
	if in == nil {
		return nil
	}
	return &orchestration.ModelSettings{
		ModelName:       in.ModelName,
		Temperature:     in.Temperature,
		MaxOutputTokens: in.MaxTokens,
	}
}

func toAppConfig(in appSettingsEnvelope) orchestration.AppConfig {
	return orchestration.AppConfig{
		SummarizerModel: toModelSettings(in.SummarizerModel),
		IntegratorModel: toModelSettings(in.IntegratorModel),
	}
}
