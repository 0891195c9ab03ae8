// Package midi exports timelines as standard MIDI files and imports them
// back.
package midi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/pipelined/piano/note"
	"github.com/pipelined/piano/timeline"
)

const (
	// Extension is the file extension of MIDI files.
	Extension = "mid"
	// ContentType is the MIME type of MIDI files.
	ContentType = "audio/midi"

	// DefaultBPM is the tempo written into exported files.
	DefaultBPM = 120
	// DefaultVelocity of exported notes.
	DefaultVelocity = 100
	// DefaultNoteLength is the time between note on and note off.
	DefaultNoteLength = 0.25

	// Resolution is the number of ticks per quarter note.
	Resolution = smf.MetricTicks(960)

	channel = 0
)

// ErrNoTimeFormat is returned when file doesn't use metric ticks.
var ErrNoTimeFormat = errors.New("midi file has no metric time format")

// Encoder writes timelines as single track MIDI files.
type Encoder struct {
	BPM        float64
	Velocity   uint8
	NoteLength float64
}

func (e Encoder) withDefaults() Encoder {
	if e.BPM <= 0 {
		e.BPM = DefaultBPM
	}
	if e.Velocity == 0 {
		e.Velocity = DefaultVelocity
	}
	if e.NoteLength <= 0 {
		e.NoteLength = DefaultNoteLength
	}
	return e
}

// message is a channel message at absolute tick.
type message struct {
	tick uint32
	on   bool
	key  uint8
}

// Encode returns MIDI file contents of the timeline.
func (e Encoder) Encode(tl timeline.Timeline) ([]byte, error) {
	var b bytes.Buffer
	if err := e.EncodeTo(&b, tl); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// EncodeTo writes MIDI file contents of the timeline into w.
func (e Encoder) EncodeTo(w io.Writer, tl timeline.Timeline) error {
	if tl.Empty() {
		return timeline.ErrEmptyTimeline
	}
	e = e.withDefaults()
	messages := make([]message, 0, 2*tl.Len())
	for _, ev := range tl.Events() {
		n, err := note.Parse(ev.Note)
		if err != nil {
			return err
		}
		on := Resolution.Ticks(e.BPM, seconds(ev.Time))
		off := Resolution.Ticks(e.BPM, seconds(ev.Time+e.NoteLength))
		messages = append(messages,
			message{tick: on, on: true, key: n.MIDI()},
			message{tick: off, key: n.MIDI()},
		)
	}
	// note offs go first so repeated keys are retriggered.
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].tick != messages[j].tick {
			return messages[i].tick < messages[j].tick
		}
		return !messages[i].on && messages[j].on
	})

	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName("piano"))
	track.Add(0, smf.MetaTempo(e.BPM))
	var last uint32
	for _, m := range messages {
		if m.on {
			track.Add(m.tick-last, gomidi.NoteOn(channel, m.key, e.Velocity))
		} else {
			track.Add(m.tick-last, gomidi.NoteOff(channel, m.key))
		}
		last = m.tick
	}
	track.Close(0)

	s := smf.New()
	s.TimeFormat = Resolution
	if err := s.Add(track); err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("write midi: %w", err)
	}
	return nil
}

// Extension returns MIDI extension.
func (Encoder) Extension() string {
	return Extension
}

// ContentType returns MIDI MIME type.
func (Encoder) ContentType() string {
	return ContentType
}

// Decode reads note onsets of all tracks into a timeline. Events are
// ordered by time. The first tempo of the file is used for all tracks, 120
// BPM if there is none.
func Decode(r io.Reader) (timeline.Timeline, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return timeline.Timeline{}, fmt.Errorf("read midi: %w", err)
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return timeline.Timeline{}, ErrNoTimeFormat
	}

	bpm := float64(DefaultBPM)
tempo:
	for _, track := range s.Tracks {
		for _, ev := range track {
			var v float64
			if ev.Message.GetMetaTempo(&v) {
				bpm = v
				break tempo
			}
		}
	}

	var events []timeline.NoteEvent
	for _, track := range s.Tracks {
		var abs uint32
		for _, ev := range track {
			abs += ev.Delta
			var ch, key, vel uint8
			if ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0 {
				events = append(events, timeline.NoteEvent{
					Note: note.Note(key).String(),
					Time: ticks.Duration(bpm, abs).Seconds(),
				})
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })
	return timeline.New(events...), nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
