// Package portaudio plays pipes through the default output device.
package portaudio

import (
	"github.com/gordonklaus/portaudio"

	"github.com/pipelined/piano/signal"
)

// Sink represets portaudio sink which allows to play audio using default device.
type Sink struct {
	buf    []float32
	stream *portaudio.Stream
}

// Sink writes the buffer of data to portaudio stream.
// It aslo initilizes a portaudio api with default stream.
func (s *Sink) Sink(pipeID string, sampleRate, numChannels, bufferSize int) (func(signal.Float64) error, error) {
	s.buf = make([]float32, bufferSize*numChannels)
	err := portaudio.Initialize()
	if err != nil {
		return nil, err
	}
	s.stream, err = portaudio.OpenDefaultStream(0, numChannels, float64(sampleRate), bufferSize, &s.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	err = s.stream.Start()
	if err != nil {
		s.stream.Close()
		portaudio.Terminate()
		return nil, err
	}
	return func(b signal.Float64) error {
		size := b.Size()
		for i := 0; i < size; i++ {
			for j := range b {
				s.buf[i*numChannels+j] = float32(b[j][i])
			}
		}
		// zero the tail of a short last buffer.
		for i := size * numChannels; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		return s.stream.Write()
	}, nil
}

// Flush terminates portaudio structures.
func (s *Sink) Flush(string) error {
	return s.close()
}

// Interrupt terminates portaudio structures.
func (s *Sink) Interrupt(string) error {
	return s.close()
}

func (s *Sink) close() error {
	err := s.stream.Stop()
	if err != nil {
		return err
	}
	err = s.stream.Close()
	if err != nil {
		return err
	}
	return portaudio.Terminate()
}
