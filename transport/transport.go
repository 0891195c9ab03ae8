// Package transport plays timelines back in time. Every event of a
// scheduled timeline becomes a fire-once callback that calls the player
// when the transport reaches the event time.
package transport

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"sync"
	"time"

	"github.com/hako/durafmt"

	"github.com/pipelined/piano/clock"
	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/metric"
	"github.com/pipelined/piano/timeline"
)

const (
	// PlayedCounter counts notes passed to the player.
	PlayedCounter = "Played"
	// FailedCounter counts notes the player failed to play.
	FailedCounter = "Failed"
)

var (
	// ErrNothingScheduled is returned when transport is started without
	// pending callbacks.
	ErrNothingScheduled = errors.New("nothing scheduled")
	// ErrRunning is returned when transport is started while running.
	ErrRunning = errors.New("transport is running")
)

// Player triggers notes.
type Player interface {
	Play(note string) error
}

// Scheduler is the transport. One batch of callbacks is scheduled at a
// time and one run advances it. It's safe for concurrent use.
type Scheduler struct {
	player Player
	clock  clock.Clock
	log    log.Logger
	played *expvar.Int
	failed *expvar.Int

	mu     sync.Mutex
	batch  []*callback
	cancel context.CancelFunc
	done   chan struct{}
}

// callback fires the event once unless it's cancelled.
type callback struct {
	event     timeline.NoteEvent
	fired     bool
	cancelled bool
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithClock sets the time source. Real clock is used by default.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger. Silent logger is used by default.
func WithLogger(l log.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// New creates a scheduler that plays notes with the player.
func New(player Player, options ...Option) *Scheduler {
	s := &Scheduler{
		player: player,
		clock:  clock.Real{},
		log:    log.Silent(),
	}
	for _, option := range options {
		option(s)
	}
	s.played = metric.Counter(s, PlayedCounter)
	s.failed = metric.Counter(s, FailedCounter)
	return s
}

// Schedule replaces the pending batch with a callback per timeline event.
// A running transport is stopped and callbacks of the previous batch are
// cancelled before the new batch is registered. Events with equal time
// keep timeline order.
func (s *Scheduler) Schedule(tl timeline.Timeline) error {
	if tl.Empty() {
		return timeline.ErrEmptyTimeline
	}
	s.Stop()

	events := tl.Sorted()
	batch := make([]*callback, len(events))
	for i := range events {
		batch[i] = &callback{event: events[i]}
	}
	s.mu.Lock()
	s.batch = batch
	s.mu.Unlock()
	s.log.Debug(fmt.Sprintf("scheduled %d notes", len(batch)))
	return nil
}

// Start advances the transport from zero in a new goroutine. Done channel
// is closed when every callback is fired or the run is stopped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running() {
		return ErrRunning
	}
	pending := make([]*callback, 0, len(s.batch))
	for _, cb := range s.batch {
		if !cb.fired && !cb.cancelled {
			pending = append(pending, cb)
		}
	}
	if len(pending) == 0 {
		return ErrNothingScheduled
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	origin := s.clock.Now()
	length := seconds(pending[len(pending)-1].event.Time)
	s.log.Info(fmt.Sprintf("playback started: %d notes in %v", len(pending), durafmt.Parse(length).LimitFirstN(2)))
	go s.run(ctx, cancel, done, origin, pending)
	return nil
}

func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}, origin time.Time, batch []*callback) {
	defer close(done)
	defer cancel()
	// cancel what's left when run is interrupted.
	defer func() {
		s.mu.Lock()
		for _, cb := range batch {
			if !cb.fired {
				cb.cancelled = true
			}
		}
		s.mu.Unlock()
	}()

	for _, cb := range batch {
		if wait := seconds(cb.event.Time) - s.clock.Now().Sub(origin); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(wait):
			}
		}
		s.mu.Lock()
		if cb.cancelled || ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		cb.fired = true
		s.mu.Unlock()
		s.play(cb.event)
	}
	s.log.Debug("playback finished")
}

func (s *Scheduler) play(e timeline.NoteEvent) {
	if err := s.player.Play(e.Note); err != nil {
		s.failed.Add(1)
		s.log.Info(fmt.Sprintf("failed to play %v at %.3fs: %v", e.Note, e.Time, err))
		return
	}
	s.played.Add(1)
}

// Stop cancels callbacks that are not fired yet and waits for the run to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, cb := range s.batch {
		if !cb.fired {
			cb.cancelled = true
		}
	}
	s.batch = nil
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Pending returns the number of registered callbacks that are not fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, cb := range s.batch {
		if !cb.fired && !cb.cancelled {
			n++
		}
	}
	return n
}

// Running reports if transport is advancing.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running()
}

func (s *Scheduler) running() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Done returns a channel that is closed when the latest run is finished.
// If transport was never started, closed channel is returned.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return s.done
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
