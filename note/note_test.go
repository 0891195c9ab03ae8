package note_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/piano/note"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		midi     uint8
		expected string
		err      error
	}{
		{name: "C4", midi: 60, expected: "C4"},
		{name: "A4", midi: 69, expected: "A4"},
		{name: "C#4", midi: 61, expected: "C#4"},
		{name: "Cs4", midi: 61, expected: "C#4"},
		{name: "C4s", midi: 61, expected: "C#4"},
		{name: "Ds4", midi: 63, expected: "D#4"},
		{name: "Db4", midi: 61, expected: "C#4"},
		{name: "c5", midi: 72, expected: "C5"},
		{name: "B1", midi: 35, expected: "B1"},
		{name: "A0", midi: 21, expected: "A0"},
		{name: "H4", err: note.ErrInvalidName},
		{name: "C", err: note.ErrInvalidName},
		{name: "C#x", err: note.ErrInvalidName},
		{name: "", err: note.ErrInvalidName},
		{name: "G9s", err: note.ErrInvalidName},
	}
	for _, test := range tests {
		n, err := note.Parse(test.name)
		if test.err != nil {
			assert.True(t, errors.Is(err, test.err), test.name)
			continue
		}
		assert.Nil(t, err)
		assert.Equal(t, test.midi, n.MIDI(), test.name)
		assert.Equal(t, test.expected, n.String(), test.name)
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "C4s.mp3", note.MustParse("C#4").FileName("mp3"))
	assert.Equal(t, "A2.wav", note.MustParse("A2").FileName(".wav"))
}

func TestFrequencyAndRatio(t *testing.T) {
	assert.InDelta(t, 440, note.MustParse("A4").Frequency(), 1e-9)
	assert.InDelta(t, 261.6256, note.MustParse("C4").Frequency(), 1e-3)
	assert.InDelta(t, 2, note.MustParse("A3").Ratio(note.MustParse("A4")), 1e-9)
	assert.InDelta(t, 1, note.MustParse("A3").Ratio(note.MustParse("A3")), 1e-9)
}

func TestKeyboard(t *testing.T) {
	keys := note.Keyboard(1, 5)
	assert.Equal(t, 61, len(keys))
	assert.Equal(t, note.Key{Note: "C1"}, keys[0])
	assert.Equal(t, note.Key{Note: "C#1", Black: true}, keys[1])
	assert.Equal(t, note.Key{Note: "C6"}, keys[60])
	assert.Nil(t, note.Keyboard(3, 2))
}
