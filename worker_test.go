package rqjobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/avarga/rqjobs/job"
	"github.com/avarga/rqjobs/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s := store.NewRedisStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nilWriter{}, nil))
}

type nilWriter struct{}

func (nilWriter) Write(p []byte) (int, error) { return len(p), nil }

func waitForTerminal(t *testing.T, s store.Store, keys job.Keys, id string, timeout time.Duration) *job.Record {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		rec, err := getRecord(context.Background(), s, keys, id)
		if err != nil {
			t.Fatalf("getRecord: %v", err)
		}
		if rec != nil && rec.Terminal() {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state within %s", id, timeout)
	return nil
}

func TestWorkerHappyPath(t *testing.T) {
	s := newTestStore(t)
	keys := job.NewKeys("q")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(s, "q", "worker-1", WorkerConfig{Callback: DefaultCallbackConfig()}, quietLogger())
	w.Registry.CreateListener("echo", func(_ context.Context, msg any, _ *Context) (any, error) {
		return fmt.Sprintf("%s", msg), nil
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(time.Second)

	p := NewProducer(s, "q")
	id, err := p.Post(ctx, "hello", nil, nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if id != "1" {
		t.Fatalf("id = %q, want 1", id)
	}

	rec := waitForTerminal(t, s, keys, id, 2*time.Second)
	if rec.Progress == nil || *rec.Progress != 100 {
		t.Fatalf("Progress = %v, want 100", rec.Progress)
	}
	if rec.ShortResult == nil || *rec.ShortResult != "hello" {
		t.Fatalf("ShortResult = %v, want hello", rec.ShortResult)
	}

	n, err := s.LLen(ctx, keys.JobsRefs())
	if err != nil {
		t.Fatalf("LLen: %v", err)
	}
	if n != 0 {
		t.Fatalf("jobsrefs len = %d, want 0", n)
	}
}

func TestWorkerTupleReturn(t *testing.T) {
	s := newTestStore(t)
	keys := job.NewKeys("q")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(s, "q", "", WorkerConfig{Callback: DefaultCallbackConfig()}, quietLogger())
	w.Registry.CreateListener("pairer", func(_ context.Context, _ any, _ *Context) (any, error) {
		return Pair{Short: "ok", Result: map[string]any{"big": "payload"}}, nil
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(time.Second)

	p := NewProducer(s, "q")
	id, err := p.Post(ctx, "x", nil, nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	rec := waitForTerminal(t, s, keys, id, 2*time.Second)
	if rec.ShortResult == nil || *rec.ShortResult != "ok" {
		t.Fatalf("ShortResult = %v, want ok", rec.ShortResult)
	}
	m, ok := rec.Result.(map[string]any)
	if !ok || m["big"] != "payload" {
		t.Fatalf("Result = %v, want map[big:payload]", rec.Result)
	}
}

func TestWorkerHandlerFailure(t *testing.T) {
	s := newTestStore(t)
	keys := job.NewKeys("q")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(s, "q", "", WorkerConfig{Callback: DefaultCallbackConfig()}, quietLogger())
	w.Registry.CreateListener("boom", func(_ context.Context, _ any, _ *Context) (any, error) {
		return nil, errors.New("kaboom")
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(time.Second)

	p := NewProducer(s, "q")
	id, err := p.Post(ctx, "x", nil, nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	rec := waitForTerminal(t, s, keys, id, 2*time.Second)
	if rec.Progress == nil || *rec.Progress != -1 {
		t.Fatalf("Progress = %v, want -1", rec.Progress)
	}

	dead, err := s.LRange(ctx, keys.DeadLetter(), 0, -1)
	if err != nil {
		t.Fatalf("LRange deadletter: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("deadletter len = %d, want 1", len(dead))
	}

	// Subsequent posts still process.
	id2, err := p.Post(ctx, "y", nil, nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	rec2 := waitForTerminal(t, s, keys, id2, 2*time.Second)
	if rec2.Progress == nil || *rec2.Progress != -1 {
		t.Fatalf("second job Progress = %v, want -1", rec2.Progress)
	}
}

func TestWorkerFunctionsFilter(t *testing.T) {
	s := newTestStore(t)
	keys := job.NewKeys("q")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var h1Ran, h2Ran bool
	w := NewWorker(s, "q", "", WorkerConfig{Callback: DefaultCallbackConfig()}, quietLogger())
	w.Registry.CreateListener("h1", func(_ context.Context, _ any, _ *Context) (any, error) {
		h1Ran = true
		return "from-h1", nil
	})
	w.Registry.CreateListener("h2", func(_ context.Context, _ any, _ *Context) (any, error) {
		h2Ran = true
		return "from-h2", nil
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(time.Second)

	p := NewProducer(s, "q")
	id, err := p.Post(ctx, "x", nil, []string{"h1"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	waitForTerminal(t, s, keys, id, 2*time.Second)
	if !h1Ran {
		t.Fatal("h1 did not run")
	}
	if h2Ran {
		t.Fatal("h2 ran but functions filter should have excluded it")
	}
}

func TestWorkerDoubleStartStop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := NewWorker(s, "q", "", WorkerConfig{Callback: DefaultCallbackConfig()}, quietLogger())

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := w.Start(ctx); err == nil {
		t.Fatal("second Start should have failed")
	}
	if err := w.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := w.Stop(time.Second); err == nil {
		t.Fatal("second Stop should have failed")
	}
}
