// Package parallel implements the fan-out over a set of backend models with
// per-task retry budgets and cross-task key-eviction coordination.
//
// The round structure (one goroutine per pending task, gather, then decide
// who retries) follows the teacher's multiagent.Swarm.Execute stage loop
// (internal/multiagent/swarm.go); the retry/classify bookkeeping is new,
// since the teacher's swarm has no concept of a shared, evictable
// credential pool.
package parallel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cerebraschat/orchestrator/internal/classify"
	"github.com/cerebraschat/orchestrator/internal/keypool"
	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

// MinRetry is the floor on every task's initial retry budget, fixed per
// spec at 3 regardless of pool size.
const MinRetry = 3

// ModelCaller is the subset of llmclient.Client that ParallelExecutor
// needs; declared here so tests can supply a fake without importing the
// real HTTP-backed client.
type ModelCaller interface {
	CallBuffered(ctx context.Context, key string, spec orchestration.ModelSpec, messages []orchestration.Message) (string, error)
}

// Recorder observes the outcome of each task attempt, for metrics.
type Recorder interface {
	RecordModelTaskOutcome(model, outcome string)
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithRecorder attaches a Recorder; every attempt is reported to it as
// success, retried (failed, task requeued) or dropped (failed, task given
// up). Nil (the default) disables reporting.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// Executor runs one fan-out across a set of ModelSpecs against a shared,
// evictable KeyPool.
type Executor struct {
	client   ModelCaller
	logger   *slog.Logger
	recorder Recorder
}

func New(client ModelCaller, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{client: client, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) record(model, outcome string) {
	if e.recorder != nil {
		e.recorder.RecordModelTaskOutcome(model, outcome)
	}
}

type task struct {
	index       int
	spec        orchestration.ModelSpec
	messages    []orchestration.Message
	attempts    int
	maxAttempts int
	succeeded   bool
	failed      bool
	reply       orchestration.ModelReply
}

func (t *task) pending() bool { return !t.succeeded && !t.failed }

// outcome is the result of one attempt at calling one task's model.
type outcome struct {
	t       *task
	key     string
	content string
	err     error
}

// Run executes the fan-out. messagesFor supplies the message list for each
// spec by index — the shared case passes the same slice for every index;
// execute_subtasks passes a per-id override.
func (e *Executor) Run(ctx context.Context, pool *keypool.Pool, specs []orchestration.ModelSpec, messagesFor func(i int) []orchestration.Message) ([]orchestration.ModelReply, error) {
	tasks := make([]*task, len(specs))
	for i, spec := range specs {
		msgs := messagesFor(i)
		t := &task{
			index:       i,
			spec:        spec,
			messages:    msgs,
			maxAttempts: maxInt(pool.Count(), MinRetry),
		}
		if len(msgs) == 0 {
			t.failed = true
		}
		tasks[i] = t
	}

	for anyPending(tasks) && pool.Count() > 0 {
		var pendingTasks []*task
		for _, t := range tasks {
			if t.pending() {
				pendingTasks = append(pendingTasks, t)
			}
		}

		outcomes := e.runRound(ctx, pool, pendingTasks)

		for _, o := range outcomes {
			t := o.t
			t.attempts++
			if o.err == nil {
				t.succeeded = true
				t.reply = orchestration.ModelReply{Model: t.spec.ModelName, Provider: orchestration.ProviderCerebras, Content: o.content}
				e.record(t.spec.ModelName, "success")
				continue
			}

			status := 0
			if apiErr, ok := o.err.(*orchestration.ApiError); ok {
				status = apiErr.Status
			}
			c := classify.Classify(status)

			if c.EvictKey {
				pool.Evict(o.key)
				remaining := pool.Count()
				for _, other := range tasks {
					if other.pending() {
						other.maxAttempts = maxInt(other.maxAttempts, other.attempts+remaining)
					}
				}
			}

			switch {
			case c.Permanent && c.DropModel:
				t.failed = true
				e.record(t.spec.ModelName, "dropped")
			case t.attempts < t.maxAttempts:
				e.record(t.spec.ModelName, "retried")
			default:
				t.failed = true
				e.record(t.spec.ModelName, "dropped")
			}
		}
	}

	var replies []orchestration.ModelReply
	for _, t := range tasks {
		if t.succeeded {
			replies = append(replies, t.reply)
		}
	}
	if len(replies) == 0 {
		return nil, &orchestration.AllFailed{Reason: "no model produced a successful response"}
	}
	return replies, nil
}

func (e *Executor) runRound(ctx context.Context, pool *keypool.Pool, pendingTasks []*task) []outcome {
	outcomes := make([]outcome, len(pendingTasks))
	var wg sync.WaitGroup
	for i, t := range pendingTasks {
		i, t := i, t
		key, err := pool.Next()
		if err != nil {
			outcomes[i] = outcome{t: t, err: err}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			content, err := e.client.CallBuffered(ctx, key, t.spec, t.messages)
			outcomes[i] = outcome{t: t, key: key, content: content, err: err}
		}()
	}
	wg.Wait()
	return outcomes
}

func anyPending(tasks []*task) bool {
	for _, t := range tasks {
		if t.pending() {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
