package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RefreshFunc is handed the bounds of the current day
type RefreshFunc func(ctx context.Context, start, end time.Time)

// Watcher recomputes the "today" window right away and then at every local
// midnight. Each refresh derives the window from the clock instead of
// stepping the previous one, so a restart or a missed midnight doesn't skew it.
type Watcher struct {
	refresh  RefreshFunc
	location *time.Location
	now      func() time.Time
	log      zerolog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewWatcher creates a stopped watcher
func NewWatcher(location *time.Location, now func() time.Time, refresh RefreshFunc, log zerolog.Logger) *Watcher {
	if location == nil {
		location = time.Local
	}

	if now == nil {
		now = time.Now
	}

	return &Watcher{
		refresh:  refresh,
		location: location,
		now:      now,
		log:      log.With().Str("component", "watcher").Logger(),
	}
}

// Start refreshing until ctx is done or Stop is called. Starting a running watcher restarts it.
func (w *Watcher) Start(ctx context.Context) error {
	w.Stop()

	ctx, cancel := context.WithCancel(ctx)

	c := cron.New(cron.WithLocation(w.location))
	if _, err := c.AddFunc("@midnight", func() { w.Refresh(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule midnight refresh: %w", err)
	}

	w.mu.Lock()
	w.cron = c
	w.cancel = cancel
	w.mu.Unlock()

	w.Refresh(ctx)
	c.Start()

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()

	w.log.Debug().Msg("watching for midnight")

	return nil
}

// Refresh hands the current day's bounds to the refresh func
func (w *Watcher) Refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start, end := TodayRange(w.now().In(w.location))
	w.log.Debug().Time("start", start).Time("end", end).Msg("refreshing today")

	w.refresh(ctx, start, end)
}

// Stop refreshing. Safe to call on a stopped watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	c, cancel := w.cron, w.cancel
	w.cron, w.cancel = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-c.Stop().Done()
}
