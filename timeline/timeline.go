// Package timeline holds recorded note events and composes recorded and
// generated notes into a single playable sequence.
package timeline

import (
	"errors"
	"sort"
	"time"
)

// DefaultSpacing is the gap in seconds between appended generated notes.
const DefaultSpacing = 0.5

// ErrEmptyTimeline is returned when an operation needs at least one event.
var ErrEmptyTimeline = errors.New("timeline is empty")

// NoteEvent is a note onset. Time is seconds since the start of the
// timeline.
type NoteEvent struct {
	Note string  `json:"note"`
	Time float64 `json:"time"`
}

// Timeline is an immutable list of note events. Events keep the order they
// were added in; Sorted returns them ordered by time.
type Timeline struct {
	events []NoteEvent
}

// New returns a timeline with a copy of events. Negative times are clamped
// to zero.
func New(events ...NoteEvent) Timeline {
	if len(events) == 0 {
		return Timeline{}
	}
	e := make([]NoteEvent, len(events))
	copy(e, events)
	for i := range e {
		if e[i].Time < 0 {
			e[i].Time = 0
		}
	}
	return Timeline{events: e}
}

// Events returns a copy of timeline events in insertion order.
func (t Timeline) Events() []NoteEvent {
	if len(t.events) == 0 {
		return []NoteEvent{}
	}
	e := make([]NoteEvent, len(t.events))
	copy(e, t.events)
	return e
}

// Sorted returns a copy of timeline events ordered by time. Events with
// equal time keep their insertion order.
func (t Timeline) Sorted() []NoteEvent {
	e := t.Events()
	sort.SliceStable(e, func(i, j int) bool {
		return e[i].Time < e[j].Time
	})
	return e
}

// Notes returns note names in insertion order.
func (t Timeline) Notes() []string {
	notes := make([]string, len(t.events))
	for i := range t.events {
		notes[i] = t.events[i].Note
	}
	return notes
}

// Len returns number of events.
func (t Timeline) Len() int {
	return len(t.events)
}

// Empty reports if timeline has no events.
func (t Timeline) Empty() bool {
	return len(t.events) == 0
}

// End returns the latest event time or zero if timeline is empty.
func (t Timeline) End() float64 {
	var end float64
	for _, e := range t.events {
		if e.Time > end {
			end = e.Time
		}
	}
	return end
}

// Duration returns the time needed to play the timeline out: the latest
// onset plus the tail that lets the last note ring.
func (t Timeline) Duration(tail float64) float64 {
	if tail < 0 {
		tail = 0
	}
	return t.End() + tail
}

// Length returns Duration as time.Duration.
func (t Timeline) Length(tail float64) time.Duration {
	return time.Duration(t.Duration(tail) * float64(time.Second))
}

// Compose appends generated notes after the recorded ones. The i-th
// generated note is placed at last + (i+1)*spacing, where last is the time
// of the final recorded event. Recorded events are never moved. If spacing
// is not positive, DefaultSpacing is used.
func Compose(recorded Timeline, generated []string, spacing float64) Timeline {
	if len(generated) == 0 {
		return recorded
	}
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	var last float64
	if n := len(recorded.events); n > 0 {
		last = recorded.events[n-1].Time
	}
	events := make([]NoteEvent, 0, len(recorded.events)+len(generated))
	events = append(events, recorded.events...)
	for i, note := range generated {
		events = append(events, NoteEvent{
			Note: note,
			Time: last + float64(i+1)*spacing,
		})
	}
	return Timeline{events: events}
}
