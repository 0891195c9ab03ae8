// Package wav decodes wav samples into pipes and encodes rendered signals
// into wav files.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/pipelined/piano/signal"
)

const (
	// Extension is the file extension of wav files.
	Extension = "wav"
	// ContentType is the MIME type of wav files.
	ContentType = "audio/wav"

	// pcmFormat is the wav audio format of integer PCM data.
	pcmFormat = 1
)

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")
	// ErrInvalidFile is returned when file is not a valid wav.
	ErrInvalidFile = errors.New("wav is not valid")
)

func supported(bitDepth signal.BitDepth) bool {
	switch bitDepth {
	case signal.BitDepth16, signal.BitDepth24, signal.BitDepth32:
		return true
	}
	return false
}

// Pump reads from wav file.
// This component cannot be reused for consequent runs.
type Pump struct {
	path string
	file *os.File
}

// NewPump creates a new wav pump.
func NewPump(path string) *Pump {
	return &Pump{path: path}
}

// Pump opens the file and returns the closure that reads it buffer by buffer.
func (p *Pump) Pump(pipeID string, bufferSize int) (func() (signal.Float64, error), int, int, error) {
	file, err := os.Open(p.path)
	if err != nil {
		return nil, 0, 0, err
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		if err := file.Close(); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: failed to close %v: %v", ErrInvalidFile, p.path, err)
		}
		return nil, 0, 0, fmt.Errorf("%w: %v", ErrInvalidFile, p.path)
	}
	bitDepth := signal.BitDepth(decoder.BitDepth)
	if !supported(bitDepth) {
		file.Close()
		return nil, 0, 0, fmt.Errorf("%w: %v has %d", ErrUnsupportedBitDepth, p.path, bitDepth)
	}

	p.file = file
	format := decoder.Format()
	numChannels := format.NumChannels
	sampleRate := int(decoder.SampleRate)

	ib := &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, bufferSize*numChannels),
		SourceBitDepth: int(bitDepth),
	}

	return func() (signal.Float64, error) {
		readSamples, err := decoder.PCMBuffer(ib)
		if err != nil {
			return nil, err
		}

		if readSamples == 0 {
			return nil, io.EOF
		}
		// prune buffer to actual size
		b := signal.InterInt{Data: ib.Data[:readSamples], NumChannels: numChannels, BitDepth: bitDepth}.AsFloat64()
		if b.Size() != bufferSize {
			return b, io.ErrUnexpectedEOF
		}
		return b, nil
	}, sampleRate, numChannels, nil
}

// Flush closes the file.
func (p *Pump) Flush(string) error {
	return p.file.Close()
}

// Interrupt closes the file.
func (p *Pump) Interrupt(string) error {
	return p.file.Close()
}

// Encoder encodes signals into wav data.
type Encoder struct {
	BitDepth signal.BitDepth
}

// Encode returns wav file contents of the signal.
func (e Encoder) Encode(s signal.Float64, sampleRate int) ([]byte, error) {
	var b WriteSeeker
	if err := e.EncodeTo(&b, s, sampleRate); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// EncodeTo writes wav file contents of the signal into w.
func (e Encoder) EncodeTo(w io.WriteSeeker, s signal.Float64, sampleRate int) error {
	if !supported(e.BitDepth) {
		return ErrUnsupportedBitDepth
	}
	numChannels := s.NumChannels()
	if numChannels == 0 {
		return errors.New("signal has no channels")
	}
	encoder := wav.NewEncoder(w, sampleRate, int(e.BitDepth), numChannels, pcmFormat)
	ib := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		Data:           s.AsInterInt(e.BitDepth),
		SourceBitDepth: int(e.BitDepth),
	}
	if err := encoder.Write(ib); err != nil {
		return err
	}
	return encoder.Close()
}

// Extension returns wav extension.
func (Encoder) Extension() string {
	return Extension
}

// ContentType returns wav MIME type.
func (Encoder) ContentType() string {
	return ContentType
}

// WriteFile encodes the signal into a wav file at path.
func WriteFile(path string, s signal.Float64, sampleRate int, bitDepth signal.BitDepth) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := (Encoder{BitDepth: bitDepth}).EncodeTo(f, s, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
