package render_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/pipelined/piano/mock"
	"github.com/pipelined/piano/render"
	"github.com/pipelined/piano/samplebank"
	"github.com/pipelined/piano/signal"
	"github.com/pipelined/piano/timeline"
)

const sampleRate = 8000

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingLoader loads banks from dir and counts calls.
func countingLoader(dir string, calls *int32) render.BankLoader {
	load := render.DirLoader(dir, samplebank.Options{})
	return func(ctx context.Context, sampleRate int) *samplebank.Bank {
		atomic.AddInt32(calls, 1)
		return load(ctx, sampleRate)
	}
}

func TestRender(t *testing.T) {
	dir := mock.SampleDir(t, sampleRate, 2, "C4", "G4")
	var calls int32
	r := render.New(countingLoader(dir, &calls))

	tl := timeline.New(
		timeline.NoteEvent{Note: "C4", Time: 1.0},
		timeline.NoteEvent{Note: "C4", Time: 0.25},
		timeline.NoteEvent{Note: "G4", Time: 0.75},
	)
	audio, err := r.Render(context.Background(), tl, sampleRate, 2)
	assert.Nil(t, err)
	assert.Equal(t, sampleRate, audio.SampleRate)
	assert.Equal(t, 2, audio.NumChannels())
	// latest onset plus note length and release.
	assert.Equal(t, 18000, audio.Frames())
	assert.Equal(t, "2.25s", audio.Duration().String())

	// silence before the first onset.
	assert.Equal(t, 0.0, signal.Float64{audio.Signal[0][:2000]}.Peak())
	// cosine samples start at full amplitude.
	assert.InDelta(t, 0.5, audio.Signal[0][2000], 1e-3)
	assert.InDelta(t, 0.5, audio.Signal[1][2000], 1e-3)

	// output equals voices mixed at their frame offsets.
	bank := samplebank.Load(context.Background(), dir, sampleRate, samplebank.Options{})
	assert.Nil(t, bank.Wait(context.Background()))
	expected := signal.EmptyFloat64(2, 18000)
	for _, e := range tl.Sorted() {
		v, err := bank.Voice(e.Note)
		assert.Nil(t, err)
		expected.MixAt(v, signal.FramesOf(sampleRate, e.Time))
	}
	assert.Equal(t, expected, audio.Signal)

	// every render gets its own bank.
	_, err = r.Render(context.Background(), tl, sampleRate, 1)
	assert.Nil(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRenderRepitched(t *testing.T) {
	dir := mock.SampleDir(t, sampleRate, 2, "A2", "C3", "D#3", "F#3")
	r := render.New(render.DirLoader(dir, samplebank.Options{}))
	audio, err := r.Render(context.Background(), timeline.New(
		timeline.NoteEvent{Note: "B2", Time: 0},
		timeline.NoteEvent{Note: "E3", Time: 0.5},
	), sampleRate, 1)
	assert.Nil(t, err)
	assert.Equal(t, 14000, audio.Frames())
	assert.True(t, audio.Signal.Peak() > 0)
}

func TestRenderSingleNote(t *testing.T) {
	dir := mock.SampleDir(t, sampleRate, 2, "C4")
	opts := samplebank.Options{NoteLength: 0.25, Release: 0.75}
	r := render.New(render.DirLoader(dir, opts))
	audio, err := r.Render(context.Background(), timeline.New(timeline.NoteEvent{Note: "C4"}), sampleRate, 1)
	assert.Nil(t, err)
	// one second tail.
	assert.Equal(t, sampleRate, audio.Frames())

	bank, err := samplebank.FromSamples(sampleRate, map[string]signal.Float64{"C4": mock.Tone("C4", sampleRate, 2, 0.5)}, opts)
	assert.Nil(t, err)
	voice, err := bank.Voice("C4")
	assert.Nil(t, err)
	assert.Equal(t, voice.Size(), audio.Frames())
	for i := range voice[0] {
		assert.InDelta(t, voice[0][i], audio.Signal[0][i], 1e-4)
	}
}

func TestRenderErrors(t *testing.T) {
	dir := mock.SampleDir(t, sampleRate, 1, "C4")
	r := render.New(render.DirLoader(dir, samplebank.Options{}))
	tl := timeline.New(timeline.NoteEvent{Note: "C4", Time: 0})

	tests := []struct {
		description string
		renderer    *render.Renderer
		timeline    timeline.Timeline
		sampleRate  int
		channels    int
		expected    []error
	}{
		{
			description: "empty timeline",
			renderer:    r,
			timeline:    timeline.New(),
			sampleRate:  sampleRate,
			channels:    1,
			expected:    []error{timeline.ErrEmptyTimeline},
		},
		{
			description: "unknown note",
			renderer:    r,
			timeline: timeline.New(
				timeline.NoteEvent{Note: "C4", Time: 0},
				timeline.NoteEvent{Note: "C1", Time: 0.5},
			),
			sampleRate: sampleRate,
			channels:   1,
			expected:   []error{samplebank.ErrUnknownNote},
		},
		{
			description: "invalid note",
			renderer:    r,
			timeline:    timeline.New(timeline.NoteEvent{Note: "H4", Time: 0}),
			sampleRate:  sampleRate,
			channels:    1,
			expected:    []error{samplebank.ErrUnknownNote},
		},
		{
			description: "no samples",
			renderer:    render.New(render.DirLoader(t.TempDir(), samplebank.Options{})),
			timeline:    tl,
			sampleRate:  sampleRate,
			channels:    1,
			expected:    []error{render.ErrBankNotLoaded, samplebank.ErrNoSamples},
		},
		{
			description: "invalid format",
			renderer:    r,
			timeline:    tl,
			sampleRate:  0,
			channels:    1,
			expected:    []error{render.ErrInvalidFormat},
		},
	}
	for _, test := range tests {
		audio, err := test.renderer.Render(context.Background(), test.timeline, test.sampleRate, test.channels)
		assert.Nil(t, audio, test.description)
		for _, expected := range test.expected {
			assert.True(t, errors.Is(err, expected), "%v: %v", test.description, err)
		}
	}
}

func TestRenderCancelled(t *testing.T) {
	dir := mock.SampleDir(t, sampleRate, 1, "C4")
	r := render.New(render.DirLoader(dir, samplebank.Options{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	audio, err := r.Render(ctx, timeline.New(timeline.NoteEvent{Note: "C4"}), sampleRate, 1)
	assert.Nil(t, audio)
	assert.Equal(t, context.Canceled, err)
}
