// Package note parses piano note names and maps them to MIDI numbers and
// sample file names.
//
// Accepted spellings are scientific pitch names with an optional accidental
// between the letter and the octave ("C4", "C#4", "Cs4", "Db4") and the
// sample file convention with a trailing sharp marker ("C4s").
package note

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidName is returned when a note name cannot be parsed.
var ErrInvalidName = errors.New("invalid note name")

const (
	// MinOctave is the lowest supported octave.
	MinOctave = -1
	// MaxOctave is the highest supported octave.
	MaxOctave = 9
)

var (
	semitones = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}
	sharps    = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
)

// Note is a pitch on the equal-tempered scale identified by its MIDI number.
type Note int

// Parse returns the note for a name.
func Parse(name string) (Note, error) {
	s := strings.TrimSpace(name)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	semitone, ok := semitones[upper(s[0])]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	s = s[1:]
	switch s[0] {
	case '#', 's':
		semitone++
		s = s[1:]
	case 'b':
		semitone--
		s = s[1:]
	}
	if strings.HasSuffix(s, "s") {
		semitone++
		s = s[:len(s)-1]
	}
	octave, err := strconv.Atoi(s)
	if err != nil || octave < MinOctave || octave > MaxOctave {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	n := Note((octave+1)*12 + semitone)
	if n < 0 || n > 127 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidName, name)
	}
	return n, nil
}

// MustParse is like Parse but panics if name is invalid.
func MustParse(name string) Note {
	n, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return n
}

// Normalize returns the canonical sharp spelling of a note name.
func Normalize(name string) (string, error) {
	n, err := Parse(name)
	if err != nil {
		return "", err
	}
	return n.String(), nil
}

// String returns the canonical sharp spelling, e.g. "C#4".
func (n Note) String() string {
	return sharps[n.pitchClass()] + strconv.Itoa(n.Octave())
}

// MIDI returns the MIDI key number.
func (n Note) MIDI() uint8 {
	return uint8(n)
}

// Octave returns the scientific octave number.
func (n Note) Octave() int {
	return int(math.Floor(float64(n)/12)) - 1
}

// Black reports if the note is played with a black key.
func (n Note) Black() bool {
	return strings.HasSuffix(sharps[n.pitchClass()], "#")
}

// Frequency returns the pitch in Hz, A4 = 440.
func (n Note) Frequency() float64 {
	return 440 * math.Pow(2, float64(n-69)/12)
}

// Ratio returns the playback rate that shifts a sample of n to target.
func (n Note) Ratio(target Note) float64 {
	return math.Pow(2, float64(target-n)/12)
}

// FileName returns the sample file name for the note using the trailing
// sharp convention, e.g. "C4s.mp3" for C#4.
func (n Note) FileName(ext string) string {
	name := sharps[n.pitchClass()]
	suffix := ""
	if strings.HasSuffix(name, "#") {
		name = name[:1]
		suffix = "s"
	}
	return name + strconv.Itoa(n.Octave()) + suffix + "." + strings.TrimPrefix(ext, ".")
}

func (n Note) pitchClass() int {
	return ((int(n) % 12) + 12) % 12
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// Key is a single key of the on-screen keyboard.
type Key struct {
	Note  string `json:"note"`
	Black bool   `json:"black"`
}

// Keyboard returns keys of octaves from first to last inclusive followed by
// the closing C of the next octave.
func Keyboard(first, last int) []Key {
	if last < first {
		return nil
	}
	keys := make([]Key, 0, (last-first+1)*12+1)
	for octave := first; octave <= last; octave++ {
		for pc := 0; pc < 12; pc++ {
			n := Note((octave+1)*12 + pc)
			keys = append(keys, Key{Note: n.String(), Black: n.Black()})
		}
	}
	c := Note((last + 2) * 12)
	return append(keys, Key{Note: c.String()})
}
