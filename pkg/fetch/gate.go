package fetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate is the admission gate in front of every outbound request.
// It bounds in-flight requests, optionally caps the global request rate,
// and enforces a minimum delay between acquiring a slot and issuing the request.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	delay    time.Duration
	limiter  *rate.Limiter // nil = no rate cap
	inFlight atomic.Int64
	log      *logrus.Entry
}

// NewGate creates a Gate with the given slot count, post-acquire delay, and
// requests-per-second cap (0 disables the cap).
func NewGate(capacity int, delay time.Duration, perSecond float64, log *logrus.Entry) *Gate {
	limit := int64(capacity)
	if limit <= 0 {
		limit = 1
		log.Warnf("concurrency invalid or zero, defaulting gate to %d slot", limit)
	}
	g := &Gate{
		sem:      semaphore.NewWeighted(limit),
		capacity: limit,
		delay:    delay,
		log:      log,
	}
	if perSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return g
}

// Acquire blocks until a slot is free, the rate cap admits a request, and the
// politeness delay has elapsed. The returned release func must be called exactly
// once the request is finished; extra calls are ignored.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire request slot: %w", err)
	}
	g.inFlight.Add(1)

	var once sync.Once
	release = func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		})
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			release()
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("politeness delay interrupted: %w", ctx.Err())
		}
	}

	return release, nil
}

// Capacity returns the number of slots
func (g *Gate) Capacity() int {
	return int(g.capacity)
}

// InFlight returns the number of currently held slots
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}
