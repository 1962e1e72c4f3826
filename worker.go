package rqjobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avarga/rqjobs/codec"
	"github.com/avarga/rqjobs/internal"
	"github.com/avarga/rqjobs/job"
	"github.com/avarga/rqjobs/store"
)

// WorkerConfig configures a Worker's runtime behavior. Concurrency is
// fixed at 1 by design: handlers run sequentially on the worker's own
// claim-loop goroutine (spec §5), so running N workers means
// constructing N Workers rather than widening one worker's pool — the
// teacher's internal.WorkerPool[T] does not fit this model and is not
// used here.
type WorkerConfig struct {
	// Callback controls completion/failure callback delivery.
	Callback CallbackConfig
}

// Worker runs a single claim/dispatch/finalize loop against a queue
// namespace. Its registry is shared mutable state: CreateListener and
// RemoveListener may be called at any time, including before Start
// (the first registration call does not itself start the loop; callers
// start the worker explicitly via Start).
type Worker struct {
	lc       internal.Lifecycle
	store    store.Store
	keys     job.Keys
	id       string
	Registry Registry
	log      *slog.Logger
	callback CallbackConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker returns a Worker claiming jobs from namespace over s. id is
// the worker's own identity (the value written to a claimed job's
// worker field); pass "" to have one generated.
func NewWorker(s store.Store, namespace string, id string, config WorkerConfig, log *slog.Logger) *Worker {
	if id == "" {
		id = uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		store:    s,
		keys:     job.NewKeys(namespace),
		id:       id,
		log:      log,
		callback: config.Callback,
	}
}

// ID returns the worker's identity.
func (w *Worker) ID() string { return w.id }

// Start begins the claim loop on a dedicated goroutine. Start returns
// internal.ErrDoubleStarted if the worker is already running.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.lc.TryStart(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.claimLoop(ctx)
	}()
	return nil
}

// Stop cancels the claim loop and waits up to timeout for the current
// claim (and any in-flight dispatch) to unwind. Stop returns
// internal.ErrDoubleStopped if the worker is not running, or
// internal.ErrStopTimeout if shutdown does not complete in time.
func (w *Worker) Stop(timeout time.Duration) error {
	return w.lc.TryStop(timeout, func() internal.DoneChan {
		w.cancel()
		return internal.WrapWaitGroup(&w.wg)
	})
}

func (w *Worker) claimLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		data, err := w.store.BRPopLPush(ctx, w.keys.Pending(), w.keys.Processing(), 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if err == store.ErrNil {
				continue
			}
			w.log.Error("claim failed", "err", err)
			continue
		}
		w.handle(ctx, data)
	}
}

// handle runs one claimed job end to end: mark in-flight, dispatch to
// the matching registered handlers in order (stopping at the first
// failure, per spec §9's "Handler failure loop" fix), and finalize.
func (w *Worker) handle(ctx context.Context, original []byte) {
	rec, err := codec.Decode(original)
	if err != nil {
		w.log.Error("cannot decode claimed job", "err", err)
		return
	}
	id := rec.ID
	rec.MarkClaimed(w.id)
	if _, err := putRecord(ctx, w.store, w.keys, rec); err != nil {
		w.log.Error("cannot mark job in-flight", "id", id, "err", err)
		return
	}

	utils := &Context{store: w.store, keys: w.keys, id: id, FullMessage: rec}

	var (
		shortResult *string
		result      any
		dispatchErr error
	)
	for _, nh := range w.Registry.snapshot() {
		if !wantsHandler(rec.Functions, nh.name) {
			continue
		}
		out, herr := invokeHandler(ctx, nh, rec.Msg, utils)
		if herr != nil {
			dispatchErr = fmt.Errorf("handler %s: %w", nh.name, herr)
			break
		}
		switch v := out.(type) {
		case Pair:
			s := v.Short
			shortResult = &s
			result = v.Result
		default:
			s := fmt.Sprint(v)
			shortResult = &s
			result = v
		}
	}

	if dispatchErr != nil {
		w.finalizeFailure(ctx, rec, original, dispatchErr)
		return
	}
	w.finalizeSuccess(ctx, rec, original, shortResult, result)
}

func invokeHandler(ctx context.Context, nh namedHandler, msg any, utils *Context) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerFailed, r)
		}
	}()
	return nh.handler(ctx, msg, utils)
}

func (w *Worker) finalizeSuccess(ctx context.Context, rec *job.Record, original []byte, shortResult *string, result any) {
	rec.Worker = nil
	progress := 100
	rec.Progress = &progress
	finished := job.Now()
	rec.ProcessingFinished = &finished
	rec.ShortResult = shortResult
	rec.Result = result

	if _, err := putRecord(ctx, w.store, w.keys, rec); err != nil {
		w.log.Error("cannot finalize completed job", "id", rec.ID, "err", err)
	}

	payload := ""
	if shortResult != nil {
		payload = *shortResult
	}
	if err := w.store.Publish(ctx, w.keys.Pub(rec.ID), []byte(payload)); err != nil {
		w.log.Warn("publish completion failed", "id", rec.ID, "err", err)
	}

	if rec.Callback != nil {
		deliverCallback(w.log, w.callback, *rec.Callback, rec.ID, true, shortResult)
	}
	w.cleanup(ctx, rec.ID, original)
}

func (w *Worker) finalizeFailure(ctx context.Context, rec *job.Record, original []byte, cause error) {
	w.log.Warn("job failed", "id", rec.ID, "err", cause)
	rec.Worker = nil
	progress := -1
	rec.Progress = &progress
	finished := job.Now()
	rec.ProcessingFinished = &finished
	desc := cause.Error()
	rec.Result = desc

	if _, err := putRecord(ctx, w.store, w.keys, rec); err != nil {
		w.log.Error("cannot finalize failed job", "id", rec.ID, "err", err)
	}
	if err := w.store.PushRight(ctx, w.keys.DeadLetter(), original); err != nil {
		w.log.Error("cannot dead-letter job", "id", rec.ID, "err", err)
	}
	if rec.Callback != nil {
		deliverCallback(w.log, w.callback, *rec.Callback, rec.ID, false, nil)
	}
	w.cleanup(ctx, rec.ID, original)
}

// cleanup removes the job's entries from the processing list and the
// reaper's scan index. Both removes are best-effort: if the reaper
// already rewrote the record, these become no-ops on already-absent
// values, exactly as spec §4.4 step 6 describes.
func (w *Worker) cleanup(ctx context.Context, id string, original []byte) {
	if err := w.store.LRem(ctx, w.keys.Processing(), -1, original); err != nil {
		w.log.Debug("cleanup: processing list remove", "id", id, "err", err)
	}
	if err := w.store.LRem(ctx, w.keys.JobsRefs(), 1, []byte(id)); err != nil {
		w.log.Debug("cleanup: jobsrefs remove", "id", id, "err", err)
	}
}
