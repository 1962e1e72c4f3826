package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := NewRedisStore(rdb)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPushAndBRPopLPush(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.PushLeft(ctx, "pending", []byte("job-1")); err != nil {
		t.Fatalf("PushLeft: %v", err)
	}
	got, err := s.BRPopLPush(ctx, "pending", "processing", time.Second)
	if err != nil {
		t.Fatalf("BRPopLPush: %v", err)
	}
	if string(got) != "job-1" {
		t.Fatalf("got %q, want job-1", got)
	}

	n, err := s.LLen(ctx, "processing")
	if err != nil {
		t.Fatalf("LLen: %v", err)
	}
	if n != 1 {
		t.Fatalf("LLen(processing) = %d, want 1", n)
	}
}

func TestBRPopLPushTimeout(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.BRPopLPush(ctx, "empty", "dst", 50*time.Millisecond)
	if err != ErrNil {
		t.Fatalf("err = %v, want ErrNil", err)
	}
}

func TestGetSetIncr(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Get(ctx, "missing"); err != ErrNil {
		t.Fatalf("Get(missing) err = %v, want ErrNil", err)
	}

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("Get = %q, want v", got)
	}

	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "counter")
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if n != i {
			t.Fatalf("Incr = %d, want %d", n, i)
		}
	}
}

func TestPipelineAtomicWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Pipeline(ctx, func(p Pipeline) error {
		p.PushRight("pending", []byte("job-1"))
		p.Set("progress_1", []byte("rec-1"), 0)
		return nil
	})
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}

	n, err := s.LLen(ctx, "pending")
	if err != nil {
		t.Fatalf("LLen: %v", err)
	}
	if n != 1 {
		t.Fatalf("LLen(pending) = %d, want 1", n)
	}
	got, err := s.Get(ctx, "progress_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "rec-1" {
		t.Fatalf("Get(progress_1) = %q, want rec-1", got)
	}
}

func TestPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sub, err := s.Subscribe(ctx, "pub_1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := s.Publish(ctx, "pub_1", []byte("done")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if string(msg) != "done" {
			t.Fatalf("msg = %q, want done", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestLRangeAndLRem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"1", "2", "3"} {
		if err := s.PushRight(ctx, "jobsrefs", []byte(id)); err != nil {
			t.Fatalf("PushRight: %v", err)
		}
	}

	all, err := s.LRange(ctx, "jobsrefs", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("LRange len = %d, want 3", len(all))
	}

	if err := s.LRem(ctx, "jobsrefs", 1, []byte("2")); err != nil {
		t.Fatalf("LRem: %v", err)
	}
	remaining, err := s.LRange(ctx, "jobsrefs", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("LRange len after LRem = %d, want 2", len(remaining))
	}
}
