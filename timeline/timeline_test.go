package timeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/piano/timeline"
)

func TestCompose(t *testing.T) {
	tests := []struct {
		description string
		recorded    []timeline.NoteEvent
		generated   []string
		spacing     float64
		expected    []timeline.NoteEvent
	}{
		{
			description: "append after last recorded",
			recorded:    []timeline.NoteEvent{{"C4", 0}, {"E4", 0.5}, {"G4", 1.0}},
			generated:   []string{"A4", "B4"},
			spacing:     timeline.DefaultSpacing,
			expected: []timeline.NoteEvent{
				{"C4", 0}, {"E4", 0.5}, {"G4", 1.0}, {"A4", 1.5}, {"B4", 2.0},
			},
		},
		{
			description: "no generated notes",
			recorded:    []timeline.NoteEvent{{"C4", 0.3}},
			expected:    []timeline.NoteEvent{{"C4", 0.3}},
		},
		{
			description: "empty recording",
			generated:   []string{"C4", "D4", "E4"},
			spacing:     timeline.DefaultSpacing,
			expected:    []timeline.NoteEvent{{"C4", 0.5}, {"D4", 1.0}, {"E4", 1.5}},
		},
		{
			description: "custom spacing",
			recorded:    []timeline.NoteEvent{{"C4", 2}},
			generated:   []string{"D4", "E4"},
			spacing:     0.25,
			expected:    []timeline.NoteEvent{{"C4", 2}, {"D4", 2.25}, {"E4", 2.5}},
		},
		{
			description: "zero spacing falls back to default",
			recorded:    []timeline.NoteEvent{{"C4", 1}},
			generated:   []string{"D4"},
			expected:    []timeline.NoteEvent{{"C4", 1}, {"D4", 1.5}},
		},
	}
	for _, test := range tests {
		result := timeline.Compose(timeline.New(test.recorded...), test.generated, test.spacing)
		assert.Equal(t, len(test.expected), result.Len(), test.description)
		for i, e := range result.Events() {
			assert.Equal(t, test.expected[i].Note, e.Note, test.description)
			assert.InDelta(t, test.expected[i].Time, e.Time, 1e-9, test.description)
		}
	}
}

func TestComposeKeepsRecorded(t *testing.T) {
	recorded := timeline.New(timeline.NoteEvent{Note: "C4", Time: 0.1})
	composed := timeline.Compose(recorded, []string{"D4"}, timeline.DefaultSpacing)
	assert.Equal(t, 1, recorded.Len())
	assert.Equal(t, 2, composed.Len())
}

func TestImmutable(t *testing.T) {
	events := []timeline.NoteEvent{{Note: "C4", Time: 0}}
	tl := timeline.New(events...)
	events[0].Note = "D4"
	assert.Equal(t, "C4", tl.Events()[0].Note)

	e := tl.Events()
	e[0].Note = "E4"
	assert.Equal(t, "C4", tl.Events()[0].Note)
}

func TestDuration(t *testing.T) {
	tl := timeline.New(
		timeline.NoteEvent{Note: "G4", Time: 1.5},
		timeline.NoteEvent{Note: "C4", Time: 0},
	)
	assert.Equal(t, 1.5, tl.End())
	assert.Equal(t, 2.75, tl.Duration(1.25))
	assert.Equal(t, 2750*time.Millisecond, tl.Length(1.25))
	assert.Equal(t, 1.0, timeline.Timeline{}.Duration(1))
	assert.True(t, timeline.Timeline{}.Empty())
}

func TestSorted(t *testing.T) {
	tl := timeline.New(
		timeline.NoteEvent{Note: "E4", Time: 1},
		timeline.NoteEvent{Note: "C4", Time: 0},
		timeline.NoteEvent{Note: "D4", Time: 1},
		timeline.NoteEvent{Note: "B3", Time: -1},
	)
	sorted := tl.Sorted()
	assert.Equal(t, []string{"C4", "B3", "E4", "D4"}, []string{sorted[0].Note, sorted[1].Note, sorted[2].Note, sorted[3].Note})
	assert.Equal(t, []string{"E4", "C4", "D4", "B3"}, tl.Notes())
}
