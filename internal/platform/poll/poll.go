// Package poll implements keyed, cancellable polling loops. A Poller owns at
// most one loop per key; each loop fetches at a fixed interval until the
// fetch reports completion, the optional max-wait deadline passes, or the
// loop is cancelled.
package poll

import (
	"context"
	"sync"
	"time"
)

// Resolution describes how a polling loop ended.
type Resolution int

const (
	// ResolutionDone means the fetch reported that polling can stop.
	ResolutionDone Resolution = iota
	// ResolutionTimeout means the max-wait deadline passed before the fetch
	// reported completion. Timeout is an expected outcome, not an error.
	ResolutionTimeout
	// ResolutionCancelled means Cancel was called or the context ended.
	ResolutionCancelled
	// ResolutionError means a fetch returned an error and the loop stopped.
	ResolutionError
)

func (r Resolution) String() string {
	switch r {
	case ResolutionDone:
		return "done"
	case ResolutionTimeout:
		return "timeout"
	case ResolutionCancelled:
		return "cancelled"
	case ResolutionError:
		return "error"
	}
	return "unknown"
}

// Config controls a single polling loop.
type Config struct {
	// Interval between fetches.
	Interval time.Duration
	// MaxWait bounds the loop's total runtime. Zero means unbounded.
	MaxWait time.Duration
	// Immediate fetches once before the first tick.
	Immediate bool
}

// FetchFunc performs one poll. Returning stop=true ends the loop with
// ResolutionDone; returning an error ends it with ResolutionError.
type FetchFunc func(ctx context.Context) (stop bool, err error)

// DoneFunc is invoked exactly once when the loop ends.
type DoneFunc func(res Resolution, err error)

// Handle refers to a running polling loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	res Resolution
	err error
}

// Cancel stops the loop. No further fetches happen after Cancel returns and
// the loop drains. Safe to call more than once.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the loop has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result reports how the loop ended. Valid only after Done is closed.
func (h *Handle) Result() (Resolution, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.res, h.err
}

func (h *Handle) finish(res Resolution, err error) {
	h.mu.Lock()
	h.res = res
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Poller owns a registry of polling loops, one per key.
type Poller struct {
	mu    sync.Mutex
	tasks map[string]*Handle
}

// New returns an empty Poller.
func New() *Poller {
	return &Poller{tasks: make(map[string]*Handle)}
}

// Start launches a polling loop for key. If a loop for the key is already
// running, Start does nothing and returns (nil, false).
func (p *Poller) Start(ctx context.Context, key string, cfg Config, fetch FetchFunc, done DoneFunc) (*Handle, bool) {
	p.mu.Lock()
	if _, active := p.tasks[key]; active {
		p.mu.Unlock()
		return nil, false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	p.tasks[key] = h
	p.mu.Unlock()

	go p.run(loopCtx, key, cfg, fetch, done, h)
	return h, true
}

// Active reports whether a loop for key is currently running.
func (p *Poller) Active(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, active := p.tasks[key]
	return active
}

// Cancel stops the loop for key, if any.
func (p *Poller) Cancel(key string) {
	p.mu.Lock()
	h, ok := p.tasks[key]
	p.mu.Unlock()
	if ok {
		h.Cancel()
	}
}

// Shutdown cancels every running loop.
func (p *Poller) Shutdown() {
	p.mu.Lock()
	handles := make([]*Handle, 0, len(p.tasks))
	for _, h := range p.tasks {
		handles = append(handles, h)
	}
	p.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

// run is the single goroutine behind one key. It owns one ticker and one
// deadline; no timers interact outside this loop.
func (p *Poller) run(ctx context.Context, key string, cfg Config, fetch FetchFunc, done DoneFunc, h *Handle) {
	var deadline time.Time
	if cfg.MaxWait > 0 {
		deadline = time.Now().Add(cfg.MaxWait)
	}

	finish := func(res Resolution, err error) {
		p.mu.Lock()
		delete(p.tasks, key)
		p.mu.Unlock()
		h.cancel()
		h.finish(res, err)
		if done != nil {
			done(res, err)
		}
	}

	if cfg.Immediate {
		stop, err := fetch(ctx)
		if err != nil {
			finish(ResolutionError, err)
			return
		}
		if stop {
			finish(ResolutionDone, nil)
			return
		}
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finish(ResolutionCancelled, nil)
			return
		case <-ticker.C:
			stop, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					finish(ResolutionCancelled, nil)
					return
				}
				finish(ResolutionError, err)
				return
			}
			if stop {
				finish(ResolutionDone, nil)
				return
			}
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				finish(ResolutionTimeout, nil)
				return
			}
		}
	}
}
