package integration

import (
	"context"
	"testing"

	"github.com/cerebraschat/orchestrator/internal/keypool"
	"github.com/cerebraschat/orchestrator/pkg/orchestration"
)

type fakeCaller struct {
	bufferedCalls  []string // keys seen
	streamingCalls []string
	behavior       func(key string, call int) (string, int, bool)
	call           int
}

func (f *fakeCaller) CallBuffered(ctx context.Context, key string, spec orchestration.ModelSpec, messages []orchestration.Message) (string, error) {
	f.call++
	f.bufferedCalls = append(f.bufferedCalls, key)
	content, status, isErr := f.behavior(key, f.call)
	if isErr {
		return "", &orchestration.ApiError{Status: status, Key: key, Model: spec.ModelName}
	}
	return content, nil
}

func (f *fakeCaller) CallStreaming(ctx context.Context, key string, spec orchestration.ModelSpec, messages []orchestration.Message, sink Sink) (string, error) {
	f.call++
	f.streamingCalls = append(f.streamingCalls, key)
	content, status, isErr := f.behavior(key, f.call)
	if isErr {
		return "", &orchestration.ApiError{Status: status, Key: key, Model: spec.ModelName}
	}
	if sink != nil {
		sink.Emit(content)
	}
	return content, nil
}

func testSpec() orchestration.ModelSpec {
	return orchestration.ModelSpec{ID: "s", ModelName: "summarizer", Enabled: true}
}

func TestCallBuffered_SucceedsFirstTry(t *testing.T) {
	pool, _ := keypool.New([]string{"k1"})
	caller := &fakeCaller{behavior: func(key string, call int) (string, int, bool) { return "summary", 0, false }}
	exec := New(caller, nil)

	got, err := exec.CallBuffered(context.Background(), pool, testSpec(), nil)
	if err != nil {
		t.Fatalf("CallBuffered: %v", err)
	}
	if got != "summary" {
		t.Fatalf("got %q", got)
	}
}

func TestCallBuffered_RetriesOn429ThenSucceeds(t *testing.T) {
	pool, _ := keypool.New([]string{"k1"})
	caller := &fakeCaller{behavior: func(key string, call int) (string, int, bool) {
		if call < 3 {
			return "", 429, true
		}
		return "ok", 0, false
	}}
	exec := New(caller, nil)

	got, err := exec.CallBuffered(context.Background(), pool, testSpec(), nil)
	if err != nil {
		t.Fatalf("CallBuffered: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q", got)
	}
	if len(caller.bufferedCalls) != 3 {
		t.Fatalf("calls=%d, want 3", len(caller.bufferedCalls))
	}
}

func TestCallBuffered_ExhaustsBudgetReturnsIntegrationFailed(t *testing.T) {
	pool, _ := keypool.New([]string{"k1"})
	caller := &fakeCaller{behavior: func(key string, call int) (string, int, bool) { return "", 500, true }}
	exec := New(caller, nil)

	_, err := exec.CallBuffered(context.Background(), pool, testSpec(), nil)
	if err == nil {
		t.Fatal("expected IntegrationFailed, got nil")
	}
	if _, ok := err.(*orchestration.IntegrationFailed); !ok {
		t.Fatalf("expected *orchestration.IntegrationFailed, got %T", err)
	}
	if len(caller.bufferedCalls) != MinRetry {
		t.Fatalf("calls=%d, want %d", len(caller.bufferedCalls), MinRetry)
	}
}

func TestCallBuffered_401EvictsKeyAndRetriesOnAnother(t *testing.T) {
	pool, _ := keypool.New([]string{"bad", "good"})
	// The pool shuffles its keys, so "good" answers 429 until "bad" has been
	// tried; that way the 401 eviction happens whichever key comes first.
	sawBad := false
	caller := &fakeCaller{behavior: func(key string, call int) (string, int, bool) {
		if key == "bad" {
			sawBad = true
			return "", 401, true
		}
		if !sawBad {
			return "", 429, true
		}
		return "ok", 0, false
	}}
	exec := New(caller, nil)

	got, err := exec.CallBuffered(context.Background(), pool, testSpec(), nil)
	if err != nil {
		t.Fatalf("CallBuffered: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q", got)
	}
	if pool.Count() != 1 {
		t.Fatalf("pool.Count()=%d, want 1", pool.Count())
	}
}

func TestCallBuffered_404FailsImmediatelyWithoutEviction(t *testing.T) {
	pool, _ := keypool.New([]string{"k1"})
	caller := &fakeCaller{behavior: func(key string, call int) (string, int, bool) { return "", 404, true }}
	exec := New(caller, nil)

	_, err := exec.CallBuffered(context.Background(), pool, testSpec(), nil)
	if err == nil {
		t.Fatal("expected IntegrationFailed")
	}
	if len(caller.bufferedCalls) != 1 {
		t.Fatalf("calls=%d, want 1 (404 is permanent, no retry)", len(caller.bufferedCalls))
	}
	if pool.Count() != 1 {
		t.Fatalf("pool.Count()=%d, want 1 (404 must not evict)", pool.Count())
	}
}

func TestCallStreaming_ForwardsToSinkOnSuccess(t *testing.T) {
	pool, _ := keypool.New([]string{"k1"})
	caller := &fakeCaller{behavior: func(key string, call int) (string, int, bool) { return "streamed text", 0, false }}
	exec := New(caller, nil)

	var got string
	sink := SinkFunc(func(chunk string) { got += chunk })
	full, err := exec.CallStreaming(context.Background(), pool, testSpec(), nil, sink)
	if err != nil {
		t.Fatalf("CallStreaming: %v", err)
	}
	if full != "streamed text" || got != "streamed text" {
		t.Fatalf("full=%q sink=%q", full, got)
	}
}

// SinkFunc adapts a function to the Sink interface for tests.
type SinkFunc func(string)

func (f SinkFunc) Emit(chunk string) { f(chunk) }
