package rqjobs

import (
	"context"
	"sync"
)

// Pair lets a handler report a short, human-readable summary distinct
// from its full result payload. A handler that returns any other value
// uses that value for both short_result (via fmt.Sprint) and result.
type Pair struct {
	Short  string
	Result any
}

// Handler processes one job's payload. The context passed in is the
// worker's claim-loop context; it carries no per-job cancellation since
// the engine has no in-band way to cancel a running handler (timeout
// enforcement is external, via the reaper). utils exposes the
// progress/data/post/block-until-result operations available to the
// handler for the duration of this one invocation.
type Handler func(ctx context.Context, msg any, utils *Context) (any, error)

type namedHandler struct {
	name    string
	handler Handler
}

// Registry holds a worker's ordered handler list. CreateListener and
// RemoveListener may be called from any goroutine while the claim loop
// reads a snapshot of the registry for each dispatch; a mutex, not a
// channel, guards it since registry mutations are rare and reads are
// a simple copy.
type Registry struct {
	mu       sync.Mutex
	handlers []namedHandler
}

// CreateListener appends h under name. Registration is idempotent: a
// second call with a name already present is a no-op.
func (r *Registry) CreateListener(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, nh := range r.handlers {
		if nh.name == name {
			return
		}
	}
	r.handlers = append(r.handlers, namedHandler{name: name, handler: h})
}

// RemoveListener removes the first handler registered under name, if
// any.
func (r *Registry) RemoveListener(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, nh := range r.handlers {
		if nh.name == name {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return
		}
	}
}

// Names returns the currently registered handler names, in
// registration order. Used by the HTTP control surface's registry
// introspection route.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.handlers))
	for i, nh := range r.handlers {
		names[i] = nh.name
	}
	return names
}

func (r *Registry) snapshot() []namedHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]namedHandler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

func (r *Registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

func wantsHandler(functions []string, name string) bool {
	if functions == nil {
		return true
	}
	for _, f := range functions {
		if f == name {
			return true
		}
	}
	return false
}
