package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/scriptkit/internal/dom"
)

var (
	ErrPoolClosed     = errors.New("sandbox pool is closed")
	ErrAcquireTimeout = errors.New("sandbox acquisition timeout")
)

// DefaultPoolSize is used when NewPool is given a non-positive size
const DefaultPoolSize = 4

// acquireTimeout bounds how long Acquire waits for a free runtime
const acquireTimeout = 5 * time.Second

// Pool hands runtimes to concurrently running userscripts. Runtimes are
// built on demand up to size and reset on release, so one script's
// globals never reach the next.
type Pool struct {
	config Config
	opts   []Option
	size   int

	idle  chan *Runtime
	slots chan struct{} // one token per runtime not yet built

	mu     sync.RWMutex
	closed bool
	busy   atomic.Int32
}

// PoolStats is a point-in-time view of a pool
type PoolStats struct {
	Size   int  `json:"size"`
	Idle   int  `json:"idle"`
	Busy   int  `json:"busy"`
	Closed bool `json:"closed"`
}

// NewPool creates a pool of at most size runtimes, each built with opts.
// One runtime is built up front so a bad configuration fails here.
func NewPool(config Config, size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	p := &Pool{
		config: config,
		opts:   opts,
		size:   size,
		idle:   make(chan *Runtime, size),
		slots:  make(chan struct{}, size),
	}
	for range size - 1 {
		p.slots <- struct{}{}
	}

	rt, err := New(config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}
	p.idle <- rt
	return p, nil
}

// Acquire returns an idle runtime, building a new one while the pool is
// below size. It waits at most acquireTimeout for a release.
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	// Prefer a warm runtime over building one
	select {
	case rt, ok := <-p.idle:
		return p.checkout(rt, ok)
	default:
	}

	timer := time.NewTimer(acquireTimeout)
	defer timer.Stop()

	select {
	case rt, ok := <-p.idle:
		return p.checkout(rt, ok)
	case <-p.slots:
		rt, err := New(p.config, p.opts...)
		if err != nil {
			p.slots <- struct{}{}
			return nil, fmt.Errorf("failed to create sandbox: %w", err)
		}
		p.busy.Add(1)
		return rt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrAcquireTimeout
	}
}

func (p *Pool) checkout(rt *Runtime, ok bool) (*Runtime, error) {
	if !ok {
		return nil, ErrPoolClosed
	}
	p.busy.Add(1)
	return rt, nil
}

// Release resets rt and makes it available again. A runtime that fails
// to reset is dropped and its slot freed for a replacement.
func (p *Pool) Release(rt *Runtime) error {
	p.busy.Add(-1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return rt.Close()
	}

	if err := rt.Reset(); err != nil {
		rt.Close()
		p.slots <- struct{}{}
		return fmt.Errorf("failed to reset sandbox: %w", err)
	}

	// idle has room for every runtime the pool can own
	p.idle <- rt
	return nil
}

// Execute runs script on a pooled runtime
func (p *Pool) Execute(ctx context.Context, script string, doc *dom.Document) (*Result, error) {
	rt, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(rt)

	return rt.Execute(ctx, script, doc)
}

// Close closes every idle runtime. Runtimes still checked out are closed
// when released.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	close(p.idle)
	for rt := range p.idle {
		rt.Close()
	}
	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:   p.size,
		Idle:   len(p.idle),
		Busy:   int(p.busy.Load()),
		Closed: p.closed,
	}
}
