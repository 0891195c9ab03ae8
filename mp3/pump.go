// Package mp3 decodes mp3 samples into pipes and encodes rendered signals
// into mp3 files.
package mp3

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"

	"github.com/pipelined/piano/signal"
)

const (
	// decoder always provides 16 bit stereo.
	numChannels   = 2
	bytesPerFrame = 4
)

// Pump allows to read mp3 files.
// This component cannot be reused for consequent runs.
type Pump struct {
	path string
	f    *os.File
}

// NewPump creates new mp3 Pump.
func NewPump(path string) *Pump {
	return &Pump{path: path}
}

// Pump opens the file and returns the closure that decodes it buffer by
// buffer.
func (p *Pump) Pump(pipeID string, bufferSize int) (func() (signal.Float64, error), int, int, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, 0, 0, err
	}
	d, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, 0, 0, err
	}
	p.f = f

	raw := make([]byte, bufferSize*bytesPerFrame)
	ints := make([]int, bufferSize*numChannels)
	return func() (signal.Float64, error) {
		n, err := io.ReadFull(d, raw)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, err
		}
		frames := n / bytesPerFrame
		if frames == 0 {
			return nil, io.EOF
		}
		for i := 0; i < frames*numChannels; i++ {
			ints[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
		b := signal.InterInt{Data: ints[:frames*numChannels], NumChannels: numChannels, BitDepth: signal.BitDepth16}.AsFloat64()
		if frames != bufferSize {
			return b, io.ErrUnexpectedEOF
		}
		return b, nil
	}, d.SampleRate(), numChannels, nil
}

// Flush closes the file.
func (p *Pump) Flush(string) error {
	return p.f.Close()
}

// Interrupt closes the file.
func (p *Pump) Interrupt(string) error {
	return p.f.Close()
}
