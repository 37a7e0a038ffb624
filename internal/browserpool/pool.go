package browserpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool manages a fleet of browser contexts. In ephemeral mode (the
// default) it is a fixed-size FIFO pool, matching spec §4.5's "pool size
// = concurrency". In persistent-session mode, contexts are instead keyed
// by origin and created lazily, with a semaphore enforcing the same
// concurrency ceiling across however many distinct origins are active.
type Pool struct {
	cfg    *Config
	logger *zap.Logger

	sem chan struct{}

	// ephemeral mode
	instances []*Context
	queue     chan int

	// persistent-session mode
	mu       sync.Mutex
	byOrigin map[string]*Context
	nextID   int

	activeLeases  atomic.Int32
	totalRenders  atomic.Int64
	totalRestarts atomic.Int64
	createdAt     time.Time

	shutdownCtx context.Context
	shutdown    context.CancelFunc
}

// New builds a Pool. In ephemeral mode it eagerly launches cfg.Concurrency
// browser contexts; in persistent-session mode contexts are created
// on-demand per origin by Acquire.
func New(cfg *Config, logger *zap.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:         cfg,
		logger:      logger,
		sem:         make(chan struct{}, cfg.Concurrency),
		byOrigin:    make(map[string]*Context),
		createdAt:   time.Now().UTC(),
		shutdownCtx: shutdownCtx,
		shutdown:    cancel,
	}

	if !cfg.PersistSession {
		p.instances = make([]*Context, cfg.Concurrency)
		p.queue = make(chan int, cfg.Concurrency)
		for i := 0; i < cfg.Concurrency; i++ {
			instance, err := NewContext(i, "", cfg, logger)
			if err != nil {
				p.Shutdown()
				return nil, fmt.Errorf("browserpool: create instance %d: %w", i, err)
			}
			p.instances[i] = instance
			p.queue <- i
		}
	}

	return p, nil
}

// Lease is a held browser context; callers must call Release exactly once.
type Lease struct {
	pool    *Pool
	ctx     *Context
	slotIdx int // ephemeral mode only; -1 in persistent mode
}

// Context returns the underlying browser context to drive a navigation on.
func (l *Lease) Context() *Context { return l.ctx }

// Release returns the context to the pool (ephemeral mode) or simply
// unlocks it for the next lease on the same origin (persistent mode).
func (l *Lease) Release() {
	l.pool.release(l)
}

// Acquire leases a browser context for origin (ignored in ephemeral mode).
// On lease failure — the underlying launch/restart crashing — it returns
// ErrLeaseFailed wrapping the cause; the caller is expected to emit a
// render-phase Error and drop the page rather than retry indefinitely.
func (p *Pool) Acquire(ctx context.Context, origin, requestID string) (*Lease, error) {
	select {
	case <-p.shutdownCtx.Done():
		return nil, ErrPoolShutdown
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.cfg.PersistSession {
		lease, err := p.acquirePersistent(origin, requestID)
		if err != nil {
			<-p.sem
			return nil, err
		}
		return lease, nil
	}

	lease, err := p.acquireEphemeral(requestID)
	if err != nil {
		<-p.sem
		return nil, err
	}
	return lease, nil
}

func (p *Pool) acquireEphemeral(requestID string) (*Lease, error) {
	select {
	case <-p.shutdownCtx.Done():
		return nil, ErrPoolShutdown
	case idx := <-p.queue:
		instance := p.instances[idx]
		if err := p.ensureHealthy(instance, requestID); err != nil {
			select {
			case p.queue <- idx:
			case <-p.shutdownCtx.Done():
			}
			return nil, err
		}
		instance.SetStatus(StatusRendering)
		instance.currentLease = requestID
		p.activeLeases.Add(1)
		return &Lease{pool: p, ctx: instance, slotIdx: idx}, nil
	}
}

func (p *Pool) acquirePersistent(origin, requestID string) (*Lease, error) {
	p.mu.Lock()
	instance, ok := p.byOrigin[origin]
	if !ok {
		id := p.nextID
		p.nextID++
		var err error
		instance, err = NewContext(id, origin, p.cfg, p.logger)
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrLeaseFailed, err)
		}
		p.byOrigin[origin] = instance
	}
	p.mu.Unlock()

	if err := p.ensureHealthy(instance, requestID); err != nil {
		return nil, err
	}
	instance.SetStatus(StatusRendering)
	instance.currentLease = requestID
	p.activeLeases.Add(1)
	return &Lease{pool: p, ctx: instance, slotIdx: -1}, nil
}

// ensureHealthy restarts instance if it has died or aged past its restart
// policy, surfacing a wrapped ErrLeaseFailed if the restart itself fails.
func (p *Pool) ensureHealthy(instance *Context, requestID string) error {
	if !instance.IsAlive() {
		p.logger.Warn("browser context is dead, restarting",
			zap.String("request_id", requestID), zap.Int("context_id", instance.ID))
		if err := instance.Restart(p.cfg); err != nil {
			return fmt.Errorf("%w: %v", ErrLeaseFailed, err)
		}
		p.totalRestarts.Add(1)
		return nil
	}

	if instance.ShouldRestart(p.cfg) {
		if err := instance.Restart(p.cfg); err != nil {
			p.logger.Error("policy-triggered restart failed, continuing with current context",
				zap.String("request_id", requestID), zap.Int("context_id", instance.ID), zap.Error(err))
		} else {
			p.totalRestarts.Add(1)
		}
	}
	return nil
}

func (p *Pool) release(l *Lease) {
	l.ctx.SetStatus(StatusIdle)
	l.ctx.IncrementRequests()
	l.ctx.currentLease = ""
	p.totalRenders.Add(1)
	p.activeLeases.Add(-1)
	<-p.sem

	if l.slotIdx >= 0 {
		select {
		case p.queue <- l.slotIdx:
		case <-p.shutdownCtx.Done():
		}
	}
	// Persistent-mode contexts stay in p.byOrigin; nothing further to do.
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	total := len(p.instances)
	if p.cfg.PersistSession {
		total = len(p.byOrigin)
	}
	p.mu.Unlock()

	return Stats{
		TotalInstances:     total,
		AvailableInstances: total - int(p.activeLeases.Load()),
		ActiveInstances:    int(p.activeLeases.Load()),
		TotalRenders:       p.totalRenders.Load(),
		TotalRestarts:      p.totalRestarts.Load(),
		Uptime:             time.Since(p.createdAt),
	}
}

// Shutdown gracefully terminates all contexts, waiting up to
// cfg.ShutdownTimeout for in-flight leases to drain first.
func (p *Pool) Shutdown() error {
	p.shutdown()

	deadline := time.Now().Add(p.cfg.ShutdownTimeout)
	for p.activeLeases.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, inst := range p.instances {
		if inst == nil {
			continue
		}
		if err := inst.Terminate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, inst := range p.byOrigin {
		if err := inst.Terminate(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("browserpool: %d errors during shutdown", len(errs))
	}
	return nil
}
