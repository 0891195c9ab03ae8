// Package record captures note onsets while a recording session is active.
package record

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/pipelined/piano/clock"
	"github.com/pipelined/piano/timeline"
)

// ErrNotRecording is returned when recording is stopped while inactive.
var ErrNotRecording = errors.New("not recording")

// Session is a snapshot of a recording session.
type Session struct {
	ID     string
	Active bool
	Start  time.Time
	Events []timeline.NoteEvent
}

// Recorder accumulates note events relative to the session start. It's
// safe for concurrent use.
type Recorder struct {
	clock clock.Clock

	mu      sync.Mutex
	id      string
	active  bool
	start   time.Time
	events  []timeline.NoteEvent
	stopped timeline.Timeline
}

// New returns a recorder that uses c as time source.
func New(c clock.Clock) *Recorder {
	if c == nil {
		c = clock.Real{}
	}
	return &Recorder{clock: c}
}

// Start begins a new session. Events of any previous session are discarded.
// Returns the session id.
func (r *Recorder) Start() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = xid.New().String()
	r.active = true
	r.start = r.clock.Now()
	r.events = nil
	return r.id
}

// Trigger appends the note to the active session. Returns false if
// recording is not active, nothing is recorded in that case.
func (r *Recorder) Trigger(note string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return false
	}
	t := clock.Since(r.clock, r.start)
	if t < 0 {
		t = 0
	}
	// onsets never go back in time
	if n := len(r.events); n > 0 && t < r.events[n-1].Time {
		t = r.events[n-1].Time
	}
	r.events = append(r.events, timeline.NoteEvent{Note: note, Time: t})
	return true
}

// Stop ends the session and returns a copy of its events.
func (r *Recorder) Stop() (timeline.Timeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return timeline.Timeline{}, ErrNotRecording
	}
	r.active = false
	r.stopped = timeline.New(r.events...)
	return r.stopped, nil
}

// Active reports if recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Last returns the timeline of the last stopped session.
func (r *Recorder) Last() timeline.Timeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Session returns a snapshot of the current session.
func (r *Recorder) Session() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Session{
		ID:     r.id,
		Active: r.active,
		Start:  r.start,
		Events: append([]timeline.NoteEvent(nil), r.events...),
	}
}
