// Package llmclient is the thin call layer over a single backend model
// endpoint. It surfaces every failure as *orchestration.ApiError so that
// internal/classify can make retry/eviction decisions without inspecting
// provider-specific error types.
//
// Cerebras (like several other inference providers) exposes an
// OpenAI-compatible /chat/completions endpoint, so Client is built on
// sashabaranov/go-openai with a configurable base URL rather than a
// bespoke HTTP client — the same choice the teacher makes for its OpenAI
// provider (internal/agent/providers/openai.go).
package llmclient

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// Sink receives streamed token fragments. CallStreaming owns the sink for
// the duration of one call, so a single model's tokens are always handed
// to it in order on one goroutine even though the caller may be fanning
// out several models concurrently.
type Sink interface {
	Emit(chunk string)
}

// SinkFunc adapts a plain function to a Sink.
type SinkFunc func(chunk string)

func (f SinkFunc) Emit(chunk string) { f(chunk) }

// Client calls one backend model endpoint with one credential at a time.
// A Client is stateless with respect to keys: the caller passes a fresh key
// on every call, since ParallelExecutor and IntegrationExecutor rotate keys
// between attempts.
type Client struct {
	baseURL string
}

// New creates a Client bound to a base URL (the Cerebras endpoint, or any
// OpenAI-compatible backend — tests point this at an httptest.Server).
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL}
}

func (c *Client) newOpenAIClient(key string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func toOpenAIMessages(messages []orchestration.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	}
	return out
}

func request(spec orchestration.ModelSpec, messages []orchestration.Message) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       spec.ModelName,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(spec.Temperature),
		MaxTokens:   spec.MaxOutputTokens,
	}
}

// CallBuffered sends a non-streaming completion request and returns the
// first choice's full text ("" if the response has no choices).
func (c *Client) CallBuffered(ctx context.Context, key string, spec orchestration.ModelSpec, messages []orchestration.Message) (string, error) {
	client := c.newOpenAIClient(key)
	req := request(spec, messages)
	req.Stream = false

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", toApiError(err, key, spec.ModelName)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// CallStreaming forwards each token to sink as it arrives and also returns
// the full accumulated text on normal completion.
func (c *Client) CallStreaming(ctx context.Context, key string, spec orchestration.ModelSpec, messages []orchestration.Message, sink Sink) (string, error) {
	client := c.newOpenAIClient(key)
	req := request(spec, messages)
	req.Stream = true

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", toApiError(err, key, spec.ModelName)
	}
	defer stream.Close()

	var acc []byte
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(acc), nil
			}
			return string(acc), toApiError(err, key, spec.ModelName)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		acc = append(acc, delta...)
		if sink != nil {
			sink.Emit(delta)
		}
	}
}

// toApiError normalizes any transport or provider error into
// *orchestration.ApiError so classify.Classify always has a status to act
// on. status is the HTTP status if the SDK surfaced one, else 500 — a
// dropped connection or timeout gets treated as a retryable server error
// rather than left unclassified.
func toApiError(err error, key, model string) *orchestration.ApiError {
	status := 500
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
			status = apiErr.HTTPStatusCode
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
			status = reqErr.HTTPStatusCode
		}
	}
	return &orchestration.ApiError{Status: status, Key: key, Model: model, Err: err}
}
