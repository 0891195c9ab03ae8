package mock

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/pipelined/piano/note"
	"github.com/pipelined/piano/signal"
	"github.com/pipelined/piano/wav"
)

// Tone returns a mono cosine of the note frequency. Cosine starts at full
// amplitude, so the first frame of a triggered sample is audible.
func Tone(name string, sampleRate int, seconds, amplitude float64) signal.Float64 {
	freq := note.MustParse(name).Frequency()
	s := signal.EmptyFloat64(1, signal.FramesOf(sampleRate, seconds))
	for i := range s[0] {
		s[0][i] = amplitude * math.Cos(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return s
}

// SampleDir creates a temporary directory with a 16 bit wav sample for
// every note. Files are named with the sample file convention, e.g.
// C4s.wav for C#4.
func SampleDir(t testing.TB, sampleRate int, seconds float64, notes ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range notes {
		path := filepath.Join(dir, note.MustParse(name).FileName(wav.Extension))
		if err := wav.WriteFile(path, Tone(name, sampleRate, seconds, 0.5), sampleRate, signal.BitDepth16); err != nil {
			t.Fatalf("write sample %v: %v", name, err)
		}
	}
	return dir
}
