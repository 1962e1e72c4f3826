package rqjobs

import (
	"context"
	"testing"
	"time"

	"github.com/avarga/rqjobs/job"
)

func TestContextStoreFetchDataRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := &Context{store: s, keys: job.NewKeys("q"), id: "1"}

	key, err := c.StoreData(ctx, map[string]any{"a": 1}, nil, 0)
	if err != nil {
		t.Fatalf("StoreData: %v", err)
	}

	got, err := c.FetchData(ctx, key)
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("FetchData returned %T, want map[string]any", got)
	}
	if v, ok := m["a"].(int8); !ok || v != 1 {
		t.Fatalf("FetchData[a] = %v, want 1", m["a"])
	}
}

func TestContextFetchDataMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := &Context{store: s, keys: job.NewKeys("q"), id: "1"}

	got, err := c.FetchData(ctx, "q_data_nonexistent")
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	if got != nil {
		t.Fatalf("FetchData = %v, want nil", got)
	}
}

func TestContextStoreDataExplicitKeyNamespaced(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := &Context{store: s, keys: job.NewKeys("q"), id: "1"}

	name := "report"
	key, err := c.StoreData(ctx, "payload", &name, 0)
	if err != nil {
		t.Fatalf("StoreData: %v", err)
	}
	if key != "q_data_report" {
		t.Fatalf("key = %q, want q_data_report", key)
	}
}

// TestWorkerPostAndBlock exercises the nested post-then-block pattern: a
// handler uses utils.PostAndBlock to enqueue a sub-job on a second
// handler and wait for its result before returning its own. Two workers
// run: the worker blocked in PostAndBlock cannot claim the sub-job itself.
func TestWorkerPostAndBlock(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	double := func(_ context.Context, msg any, _ *Context) (any, error) {
		n, _ := msg.(int8)
		return int64(n) * 2, nil
	}
	orchestrate := func(ctx context.Context, _ any, utils *Context) (any, error) {
		_, result, err := utils.PostAndBlock(ctx, int8(21), nil, []string{"double"})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	for i := 0; i < 2; i++ {
		w := NewWorker(s, "q", "", WorkerConfig{Callback: DefaultCallbackConfig()}, quietLogger())
		w.Registry.CreateListener("double", double)
		w.Registry.CreateListener("orchestrate", orchestrate)
		if err := w.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
		defer w.Stop(time.Second)
	}

	p := NewProducer(s, "q")
	id, err := p.Post(ctx, "go", nil, []string{"orchestrate"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}

	keys := job.NewKeys("q")
	rec := waitForTerminal(t, s, keys, id, 2*time.Second)
	if rec.Progress == nil || *rec.Progress != 100 {
		t.Fatalf("Progress = %v, want 100", rec.Progress)
	}
}

// TestWorkerBlockUntilResultPreExisting posts a job first, then blocks on
// its already-allocated id from a second, independent job's handler.
func TestWorkerBlockUntilResultPreExisting(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWorker(s, "q", "", WorkerConfig{Callback: DefaultCallbackConfig()}, quietLogger())
	w.Registry.CreateListener("slow", func(_ context.Context, msg any, _ *Context) (any, error) {
		return msg, nil
	})
	w.Registry.CreateListener("watcher", func(ctx context.Context, msg any, utils *Context) (any, error) {
		targetID, _ := msg.(string)
		return utils.BlockUntilResult(ctx, targetID)
	})
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(time.Second)

	p := NewProducer(s, "q")
	targetID, err := p.Post(ctx, "payload", nil, []string{"slow"})
	if err != nil {
		t.Fatalf("Post target: %v", err)
	}

	watcherID, err := p.Post(ctx, targetID, nil, []string{"watcher"})
	if err != nil {
		t.Fatalf("Post watcher: %v", err)
	}

	keys := job.NewKeys("q")
	waitForTerminal(t, s, keys, targetID, 2*time.Second)
	rec := waitForTerminal(t, s, keys, watcherID, 2*time.Second)
	if rec.ShortResult == nil || *rec.ShortResult != "payload" {
		t.Fatalf("watcher ShortResult = %v, want payload", rec.ShortResult)
	}
}
