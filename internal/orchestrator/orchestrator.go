// Package orchestrator implements the request lifecycle described in spec
// §4.9: parse and validate the envelope, construct a per-request KeyPool,
// open the stream, run the summarisation pre-step, iterate the looked-up
// agent's steps emitting STATUS frames, then emit a final DATA frame (if
// not already streamed) and a RESPONSES frame, or an ERROR frame on
// failure.
//
// Grounded on the teacher's HTTP handler shape in
// internal/gateway/http_server.go (validate request, open response,
// stream incrementally, recover into an error frame instead of a changed
// status code once bytes have been written).
package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cerebraschat/orchestrator/internal/agentregistry"
	"github.com/cerebraschat/orchestrator/internal/integration"
	"github.com/cerebraschat/orchestrator/internal/keypool"
	"github.com/cerebraschat/orchestrator/internal/metrics"
	"github.com/cerebraschat/orchestrator/internal/parallel"
	"github.com/cerebraschat/orchestrator/internal/steps"
	"github.com/cerebraschat/orchestrator/internal/streamcodec"
	"github.com/cerebraschat/orchestrator/internal/summarize"
	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// Caller is what Orchestrator needs from a backend model client: both the
// buffered-only surface ParallelExecutor uses and the buffered+streaming
// surface IntegrationExecutor uses.
type Caller interface {
	parallel.ModelCaller
	integration.Caller
}

// Orchestrator owns the configured credential set and the step executors
// shared by every request.
type Orchestrator struct {
	keys       []string
	steps      *steps.Steps
	summarizer *summarize.Summarizer
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics attaches a *metrics.Metrics instance; every request's
// outcome/duration, key evictions, and summarisation runs are recorded
// against it. Nil (the default) disables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds an Orchestrator. client is the backend model caller (an
// *llmclient.Client in production, a fake in tests); keys is the
// configured credential set each request's KeyPool is built from.
func New(client Caller, keys []string, opts ...Option) *Orchestrator {
	o := &Orchestrator{keys: keys, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	parallelExec := parallel.New(client, o.logger, parallel.WithRecorder(o.metrics))
	integrationExec := integration.New(client, o.logger)
	o.steps = steps.New(parallelExec, integrationExec, o.logger)
	o.summarizer = summarize.New(bufferedOnly{integrationExec}, o.logger)
	return o
}

// bufferedOnly narrows *integration.Executor to the buffered-only
// Integrator interface summarize.Summarizer expects.
type bufferedOnly struct{ e *integration.Executor }

func (b bufferedOnly) CallBuffered(ctx context.Context, pool *keypool.Pool, spec orchestration.ModelSpec, messages []orchestration.Message) (string, error) {
	return b.e.CallBuffered(ctx, pool, spec, messages)
}

func summarizerSpec(ac orchestration.AppConfig) orchestration.ModelSpec {
	if ac.SummarizerModel == nil {
		return orchestration.ModelSpec{ID: "summarizer", ModelName: "summarizer-default", Enabled: true}
	}
	return orchestration.ModelSpec{
		ID:              "summarizer",
		ModelName:       ac.SummarizerModel.ModelName,
		Temperature:     ac.SummarizerModel.Temperature,
		MaxOutputTokens: ac.SummarizerModel.MaxOutputTokens,
		Enabled:         true,
	}
}

// ServeHTTP implements the single POST endpoint: decode the request,
// stream status/data/model-response frames as the agent pipeline runs,
// and terminate the connection with an ERROR frame on failure.
func (o *Orchestrator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	env, err := decodeEnvelope(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pool, err := keypool.New(o.keys, keypool.WithEvictionObserver(func(string) {
		o.metrics.RecordKeyEviction("classifier_evict")
	}))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	sw := streamcodec.NewWriter(newFlushWriter(w))

	o.Run(r.Context(), sw, pool, env)
}

// Run executes the request lifecycle against an already-open stream
// writer. Exported so tests can drive it directly against a bytes.Buffer
// without going through net/http.
func (o *Orchestrator) Run(ctx context.Context, sw *streamcodec.Writer, pool *keypool.Pool, env *requestEnvelope) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		o.metrics.RecordRequest(env.Data.AgentMode, outcome, time.Since(start).Seconds())
	}()

	ac := &orchestration.AgentContext{
		Pool:               pool,
		LLMMessages:        toMessages(env.Messages),
		EnabledModels:      toModelSpecs(env.Data.ModelSettings),
		AppConfig:          toAppConfig(env.Data.AppSettings),
		StreamSink:         sw,
		StatusSink:         sw,
		TotalContentLength: env.Data.TotalContentLength,
		AgentMode:          env.Data.AgentMode,
		SystemPrompt:       env.Data.SystemPrompt,
	}

	sumResult := o.summarizer.Run(ctx, pool, summarizerSpec(ac.AppConfig), ac.LLMMessages, ac.TotalContentLength)
	ac.LLMMessages = sumResult.Messages
	if sumResult.Executed {
		ac.SummaryExecuted = true
		ac.NewHistoryContext = sumResult.NewHistoryContext
		o.metrics.RecordSummaryExecuted()
		if err := sw.SummaryExecuted(sumResult.NewHistoryContext); err != nil {
			outcome = "error"
			return
		}
	}

	if ac.SystemPrompt != "" {
		ac.LLMMessages = append([]orchestration.Message{
			{Role: orchestration.RoleSystem, Content: ac.SystemPrompt},
		}, ac.LLMMessages...)
	}

	phases := agentregistry.PostSummarisePhases(ac.AgentMode)
	for _, kind := range phases {
		if err := sw.Status(steps.StatusName(kind)); err != nil {
			outcome = "error"
			return
		}
		fn, err := o.steps.Dispatch(kind)
		if err != nil {
			_ = sw.Error(err.Error())
			outcome = "error"
			return
		}
		if err := fn(ctx, ac); err != nil {
			_ = sw.Error(err.Error())
			outcome = "error"
			return
		}
	}

	if !ac.FinalContentStreamed && ac.FinalContent != "" {
		sw.Emit(ac.FinalContent)
	}

	responses := ac.ModelResponses
	if responses == nil {
		responses = ac.ParallelResponses
	}
	_ = sw.ModelResponses(responses)
}
