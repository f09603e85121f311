package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/aspicho/stream-chat-reader/message"
	"github.com/aspicho/stream-chat-reader/telemetry"
)

// Factory establishes the task for one key. It returns the loop the task runs
// until ctx is canceled or its stream ends.
type Factory func(ctx context.Context) (run func(ctx context.Context), err error)

type handle struct {
	cancel context.CancelFunc
	ready  chan struct{} // closed once the factory returned
	done   chan struct{} // closed once the task exited
	err    error         // factory error, valid after ready
}

func (h *handle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Registry maps each (platform, channel) key to at most one running task.
type Registry struct {
	mu      sync.Mutex
	entries map[message.Key]*handle

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry returns an empty registry. Tasks run under a context owned by the
// registry, never under the caller's request context.
func NewRegistry() *Registry {
	root, cancel := context.WithCancel(context.Background())
	return &Registry{entries: make(map[message.Key]*handle), root: root, cancel: cancel}
}

// Start runs factory for key unless a task already owns it. started is false when
// an existing task was found; a caller that finds a connection attempt in flight
// waits for it and gets the same outcome.
func (r *Registry) Start(ctx context.Context, key message.Key, factory Factory) (started bool, err error) {
	r.mu.Lock()
	if h, ok := r.entries[key]; ok {
		if h.alive() {
			r.mu.Unlock()
			select {
			case <-h.ready:
				return false, h.err
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		delete(r.entries, key)
	}
	if r.root.Err() != nil {
		r.mu.Unlock()
		return false, context.Canceled
	}
	taskCtx, cancel := context.WithCancel(r.root)
	h := &handle{cancel: cancel, ready: make(chan struct{}), done: make(chan struct{})}
	r.entries[key] = h
	r.wg.Add(1)
	r.mu.Unlock()

	run, err := factory(taskCtx)

	r.mu.Lock()
	if err != nil {
		h.err = err
		r.removeLocked(key, h)
		close(h.ready)
		close(h.done)
		r.mu.Unlock()
		cancel()
		r.wg.Done()
		return false, err
	}
	close(h.ready)
	r.updateGaugeLocked()
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer cancel()
		run(taskCtx)

		r.mu.Lock()
		r.removeLocked(key, h)
		close(h.done)
		r.mu.Unlock()
		slog.Debug("listener deregistered", slog.String("key", key.String()), slog.String("component", "registry"))
	}()
	return true, nil
}

// Stop cancels the task for key and forgets it. It reports whether one was
// registered and does not wait for the task to unwind.
func (r *Registry) Stop(key message.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[key]
	if !ok {
		return false
	}
	delete(r.entries, key)
	r.updateGaugeLocked()
	h.cancel()
	return h.alive()
}

// Active returns the keys with a running task, sorted.
func (r *Registry) Active() []message.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]message.Key, 0, len(r.entries))
	for k, h := range r.entries {
		if h.alive() && isReady(h) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// IsActive reports whether key has a running task.
func (r *Registry) IsActive(key message.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[key]
	return ok && h.alive() && isReady(h)
}

// Shutdown cancels every task and waits for them to exit or for ctx to end.
// Start fails once Shutdown has been called.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.cancel()
	for k := range r.entries {
		delete(r.entries, k)
	}
	r.updateGaugeLocked()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) removeLocked(key message.Key, h *handle) {
	if cur, ok := r.entries[key]; ok && cur == h {
		delete(r.entries, key)
	}
	r.updateGaugeLocked()
}

func (r *Registry) updateGaugeLocked() {
	n := 0
	for _, h := range r.entries {
		if h.alive() && isReady(h) {
			n++
		}
	}
	telemetry.SetActiveListeners(n)
}

func isReady(h *handle) bool {
	select {
	case <-h.ready:
		return true
	default:
		return false
	}
}
