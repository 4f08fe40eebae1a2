package buffer

import (
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Flushable is satisfied by Pool and ParallelPool. The background flusher is
// entirely additive: no buffer-pool invariant depends on it ever running.
type Flushable interface {
	FlushAll() error
}

// BackgroundFlusher periodically calls FlushAll on a schedule, generalizing
// the ticker-based flusher sketch this is adapted from into a cron-scheduled
// job so the cadence is configurable alongside the rest of process config.
type BackgroundFlusher struct {
	pool Flushable
	cr   *cron.Cron

	mu      sync.Mutex
	running bool
}

// NewBackgroundFlusher builds a flusher for pool on the given cron schedule
// spec (e.g. "@every 30s"). It does not start until Start is called.
func NewBackgroundFlusher(pool Flushable, schedule string) (*BackgroundFlusher, error) {
	cr := cron.New()
	f := &BackgroundFlusher{pool: pool, cr: cr}
	if _, err := cr.AddFunc(schedule, f.flushOnce); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *BackgroundFlusher) flushOnce() {
	if err := f.pool.FlushAll(); err != nil {
		slog.Error("buffer: background flush failed", "err", err)
	}
}

// Start begins the cron schedule. Safe to call once; a second call is a
// no-op.
func (f *BackgroundFlusher) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true
	f.cr.Start()
}

// Stop halts the schedule and waits for any in-flight flush to finish.
func (f *BackgroundFlusher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	ctx := f.cr.Stop()
	<-ctx.Done()
}
