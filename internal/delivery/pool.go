package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/feedbackhooks/internal/config"
	"github.com/shohag/feedbackhooks/internal/models"
)

type EventDispatcher interface {
	Dispatch(ctx context.Context, ev models.Event) (DispatchResult, error)
}

type Sweeper interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// Pool owns the background side of delivery: a bounded event queue drained
// by a fixed set of workers, and the periodic retry sweep.
type Pool struct {
	dispatcher    EventDispatcher
	sweeper       Sweeper
	workers       int
	sweepEnabled  bool
	sweepInterval time.Duration
	log           zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	queue   chan models.Event
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewPool(cfg config.DeliveryConfig, sweepCfg config.SweepConfig, dispatcher EventDispatcher, sweeper Sweeper, log zerolog.Logger) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return &Pool{
		dispatcher:    dispatcher,
		sweeper:       sweeper,
		workers:       workers,
		sweepEnabled:  sweepCfg.Enabled && sweeper != nil && sweepCfg.Interval > 0,
		sweepInterval: sweepCfg.Interval,
		log:           log,
		queue:         make(chan models.Event, queueSize),
		stop:          make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().
		Int("workers", p.workers).
		Bool("sweep", p.sweepEnabled).
		Msg("starting delivery worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.work(ctx)
		}()
	}

	if p.sweepEnabled {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.sweepLoop(ctx)
		}()
	}
}

// Enqueue hands an event to the workers without waiting for delivery. The
// event is validated first so callers still learn about bad input.
func (p *Pool) Enqueue(ev models.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new events, lets the workers finish what is queued and waits
// for them to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stop)
	close(p.queue)
	p.mu.Unlock()

	p.log.Info().Msg("stopping delivery worker pool")
	p.wg.Wait()
	p.log.Info().Msg("delivery worker pool stopped")
}

func (p *Pool) work(ctx context.Context) {
	for ev := range p.queue {
		p.dispatch(ctx, ev)
	}
}

func (p *Pool) dispatch(ctx context.Context, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Str("event", ev.Event).Msg("queued dispatch panicked")
		}
	}()

	if _, err := p.dispatcher.Dispatch(ctx, ev); err != nil {
		p.log.Error().Err(err).
			Str("event", ev.Event).
			Str("project_id", ev.ProjectID).
			Msg("queued dispatch failed")
	}
}

func (p *Pool) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.sweeper.Sweep(ctx); err != nil {
				p.log.Error().Err(err).Msg("retry sweep failed")
			}
		}
	}
}
