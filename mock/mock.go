// Package mock provides mocks for pipeline components and piano
// collaborators and allows to execute integration tests.
package mock

import (
	"io"
	"time"

	"github.com/pipelined/piano/signal"
)

// Pump mocks a pipe.Pump interface.
type Pump struct {
	counter
	Interval    time.Duration
	Limit       int
	Value       float64
	NumChannels int
	SampleRate  int
	ErrorOnCall error
	ErrorOnMake error
	Hooks
}

// Pump returns new buffer for pipe.
func (m *Pump) Pump(pipeID string, bufferSize int) (func() (signal.Float64, error), int, int, error) {
	if m.ErrorOnMake != nil {
		return nil, 0, 0, m.ErrorOnMake
	}
	return func() (signal.Float64, error) {
		if m.ErrorOnCall != nil {
			return nil, m.ErrorOnCall
		}
		if m.samples >= m.Limit {
			return nil, io.EOF
		}
		time.Sleep(m.Interval)

		bs := bufferSize
		if left := m.Limit - m.samples; left < bs {
			bs = left
		}
		b := signal.EmptyFloat64(m.NumChannels, bs)
		for i := range b {
			for j := range b[i] {
				b[i][j] = m.Value
			}
		}
		m.advance(bs)
		if bs != bufferSize {
			return b, io.ErrUnexpectedEOF
		}
		return b, nil
	}, m.SampleRate, m.NumChannels, nil
}

// Processor mocks a pipe.Processor interface.
type Processor struct {
	counter
	ErrorOnCall error
	ErrorOnMake error
	Hooks
}

// Process implementation for runner.
func (m *Processor) Process(pipeID string, sampleRate, numChannels, bufferSize int) (func(signal.Float64) (signal.Float64, error), error) {
	if m.ErrorOnMake != nil {
		return nil, m.ErrorOnMake
	}
	return func(b signal.Float64) (signal.Float64, error) {
		if m.ErrorOnCall != nil {
			return nil, m.ErrorOnCall
		}
		m.advance(b.Size())
		return b, nil
	}, nil
}

// Sink mocks up a pipe.Sink interface.
// Buffer is not thread-safe, so should not be checked while pipe is running.
type Sink struct {
	counter
	buffer      signal.Float64
	Discard     bool
	Interval    time.Duration
	ErrorOnCall error
	ErrorOnMake error
	Hooks
}

// Sink implementation for runner.
func (m *Sink) Sink(pipeID string, sampleRate, numChannels, bufferSize int) (func(signal.Float64) error, error) {
	if m.ErrorOnMake != nil {
		return nil, m.ErrorOnMake
	}
	return func(b signal.Float64) error {
		if m.ErrorOnCall != nil {
			return m.ErrorOnCall
		}
		time.Sleep(m.Interval)
		if !m.Discard {
			m.buffer = m.buffer.Append(b)
		}
		m.advance(b.Size())
		return nil
	}, nil
}

// Buffer returns sink's buffer.
func (m *Sink) Buffer() signal.Float64 {
	return m.buffer
}

// Hooks allows to mock components hooks.
type Hooks struct {
	Flushed     bool
	Interrupted bool

	ErrorOnFlush     error
	ErrorOnInterrupt error
}

// Flush implements pipe.Flusher.
func (h *Hooks) Flush(string) error {
	h.Flushed = true
	return h.ErrorOnFlush
}

// Interrupt implements pipe.Interrupter.
func (h *Hooks) Interrupt(string) error {
	h.Interrupted = true
	return h.ErrorOnInterrupt
}

// counter counts messages and samples.
type counter struct {
	messages int
	samples  int
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.messages++
	c.samples = c.samples + size
}

// Count returns messages and samples metrics.
func (c *counter) Count() (int, int) {
	return c.messages, c.samples
}
