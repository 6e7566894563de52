// Package timer delivers one-shot wake-ups identified by integer keys.
package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"git.0xdad.com/tblyler/meditime/db"
)

var (
	// ErrExactNotPermitted occurs when exact timing is requested but not granted
	ErrExactNotPermitted = errors.New("exact timing is not permitted")
	// ErrNotFound occurs when cancelling a key with no pending wake-up
	ErrNotFound = errors.New("no pending wake-up for key")
)

// Store persists pending wake-ups across restarts
type Store interface {
	PutTimer(ctx context.Context, entry *db.TimerEntry) error
	DeleteTimer(ctx context.Context, key int32) error
	ListTimers(ctx context.Context) ([]*db.TimerEntry, error)
}

// FireFunc receives the payload of a wake-up when it comes due
type FireFunc func(ctx context.Context, payload []byte)

// Options for a Cron timer
type Options struct {
	// Exact grants exact timing. Without it exact requests fail with ErrExactNotPermitted.
	Exact    bool
	Location *time.Location
	Now      func() time.Time
}

// once fires a single time at an absolute instant. cron asks for the first
// run when the entry is added or the scheduler starts, and again after every
// run, so only the first answer may name a time. An instant that already
// passed by then runs right away instead of being dropped.
type once struct {
	at        time.Time
	evaluated bool
}

func (o *once) Next(t time.Time) time.Time {
	if o.evaluated {
		return time.Time{}
	}

	o.evaluated = true
	if t.Before(o.at) {
		return o.at
	}

	return t
}

type pending struct {
	id    cron.EntryID
	entry *db.TimerEntry
}

// Cron is a timer service on top of robfig/cron. Registering a key that is
// already pending replaces the earlier wake-up.
type Cron struct {
	cron    *cron.Cron
	store   Store
	fire    FireFunc
	opts    Options
	log     zerolog.Logger
	mu      sync.Mutex
	entries map[int32]pending
	late    sync.WaitGroup
}

// NewCron creates a timer. store may be nil, in which case nothing outlives the process.
func NewCron(store Store, fire FireFunc, opts Options, log zerolog.Logger) *Cron {
	if opts.Location == nil {
		opts.Location = time.Local
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	log = log.With().Str("component", "timer").Logger()

	return &Cron{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cronLogger{log: log}),
		),
		store:   store,
		fire:    fire,
		opts:    opts,
		log:     log,
		entries: make(map[int32]pending),
	}
}

// inexact rounds at up to the next whole minute
func inexact(at time.Time) time.Time {
	rounded := at.Truncate(time.Minute)
	if rounded.Before(at) {
		rounded = rounded.Add(time.Minute)
	}

	return rounded
}

// Schedule a wake-up for key at the given instant, replacing any pending
// wake-up for the same key. An instant that is not in the future is
// delivered right away.
func (c *Cron) Schedule(ctx context.Context, key int32, at time.Time, payload []byte, exact bool) error {
	if exact && !c.opts.Exact {
		return fmt.Errorf("unable to schedule key %d at %s: %w", key, at, ErrExactNotPermitted)
	}

	if !exact {
		at = inexact(at)
	}

	entry := &db.TimerEntry{
		Key:     key,
		At:      at,
		Payload: payload,
		Exact:   exact,
	}

	// a firing entry clears its persisted copy under the same lock
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		if err := c.store.PutTimer(ctx, entry); err != nil {
			return fmt.Errorf("failed to persist wake-up for key %d: %w", key, err)
		}
	}

	c.register(entry)

	return nil
}

// register must be called with c.mu held
func (c *Cron) register(entry *db.TimerEntry) {
	if previous, ok := c.entries[entry.Key]; ok {
		delete(c.entries, entry.Key)
		c.cron.Remove(previous.id)
	}

	if !entry.At.After(c.opts.Now()) {
		c.log.Info().Int32("key", entry.Key).Time("at", entry.At).Msg("delivering overdue wake-up")
		c.forget(entry.Key)
		c.deliverLate(entry)
		return
	}

	var id cron.EntryID
	id = c.cron.Schedule(&once{at: entry.At}, cron.FuncJob(func() {
		c.mu.Lock()
		current, ok := c.entries[entry.Key]
		if !ok || current.id != id {
			c.mu.Unlock()
			return
		}

		delete(c.entries, entry.Key)
		c.cron.Remove(id)
		c.forget(entry.Key)
		c.mu.Unlock()

		c.deliver(entry)
	}))

	c.entries[entry.Key] = pending{id: id, entry: entry}

	c.log.Debug().Int32("key", entry.Key).Time("at", entry.At).Bool("exact", entry.Exact).Msg("wake-up registered")
}

// forget the persisted copy of key. Must be called with c.mu held.
func (c *Cron) forget(key int32) {
	if c.store == nil {
		return
	}

	if err := c.store.DeleteTimer(context.Background(), key); err != nil {
		c.log.Error().Err(err).Int32("key", key).Msg("failed to clear delivered wake-up")
	}
}

func (c *Cron) deliver(entry *db.TimerEntry) {
	c.log.Debug().Int32("key", entry.Key).Time("at", entry.At).Msg("wake-up due")
	c.fire(context.Background(), entry.Payload)
}

// deliverLate runs outside the caller's lock since delivery may schedule again
func (c *Cron) deliverLate(entry *db.TimerEntry) {
	c.late.Add(1)
	go func() {
		defer c.late.Done()
		c.deliver(entry)
	}()
}

// Cancel the pending wake-up for key. ErrNotFound when nothing is pending.
func (c *Cron) Cancel(ctx context.Context, key int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.cron.Remove(previous.id)
	}

	persisted := false
	if c.store != nil && !ok {
		entries, err := c.store.ListTimers(ctx)
		if err != nil {
			return fmt.Errorf("failed to look up wake-up for key %d: %w", key, err)
		}

		for _, entry := range entries {
			if entry.Key == key {
				persisted = true
				break
			}
		}
	}

	if !ok && !persisted {
		return fmt.Errorf("unable to cancel key %d: %w", key, ErrNotFound)
	}

	if c.store != nil {
		if err := c.store.DeleteTimer(ctx, key); err != nil {
			return fmt.Errorf("failed to delete persisted wake-up for key %d: %w", key, err)
		}
	}

	c.log.Debug().Int32("key", key).Msg("wake-up cancelled")

	return nil
}

// Pending returns the instant key is due, if it is pending in this process
func (c *Cron) Pending(key int32) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.entries[key]
	if !ok {
		return time.Time{}, false
	}

	return p.entry.At, true
}

// Start restores persisted wake-ups and begins delivering. Wake-ups that came
// due while nothing was running are delivered right away.
func (c *Cron) Start(ctx context.Context) error {
	if c.store != nil {
		entries, err := c.store.ListTimers(ctx)
		if err != nil {
			return fmt.Errorf("failed to restore wake-ups: %w", err)
		}

		c.mu.Lock()
		for _, entry := range entries {
			c.register(entry)
		}
		c.mu.Unlock()

		c.log.Info().Int("count", len(entries)).Msg("restored wake-ups")
	}

	c.cron.Start()

	return nil
}

// Stop delivering and wait for running deliveries to finish
func (c *Cron) Stop() {
	<-c.cron.Stop().Done()
	c.late.Wait()
}

// cronLogger adapts zerolog to cron's logger
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
