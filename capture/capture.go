// Package capture turns rendered audio into files. Rendered signal is
// streamed block by block through a pipe into an accumulating sink, which
// encodes the whole signal once the last block has arrived.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/xid"

	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/pipe"
	"github.com/pipelined/piano/render"
	"github.com/pipelined/piano/signal"
)

// DefaultBufferSize is the size of blocks passed through the capture pipe.
const DefaultBufferSize = 512

var (
	// ErrCaptureInFlight is returned when capture is started before the
	// previous one is completed.
	ErrCaptureInFlight = errors.New("capture in flight")
	// ErrEncode is returned when accumulated signal cannot be encoded.
	ErrEncode = errors.New("encode failed")
	// ErrUnknownFormat is returned when there is no encoder for format.
	ErrUnknownFormat = errors.New("unknown format")
	// ErrNoAudio is returned when there is nothing to capture.
	ErrNoAudio = errors.New("no audio to capture")
)

// Encoder encodes a signal into file data.
type Encoder interface {
	Encode(s signal.Float64, sampleRate int) ([]byte, error)
	Extension() string
	ContentType() string
}

// File is an exported file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Capturer runs one capture at a time.
type Capturer struct {
	encoders   map[string]Encoder
	format     string
	bufferSize int
	log        log.Logger

	mu       sync.Mutex
	inFlight bool
}

// Option configures the capturer.
type Option func(*Capturer)

// WithEncoder registers the encoder under format name. The first
// registered format is the default one.
func WithEncoder(format string, e Encoder) Option {
	return func(c *Capturer) {
		if c.format == "" {
			c.format = format
		}
		c.encoders[format] = e
	}
}

// WithBufferSize sets the block size.
func WithBufferSize(bufferSize int) Option {
	return func(c *Capturer) {
		if bufferSize > 0 {
			c.bufferSize = bufferSize
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Capturer) {
		c.log = l
	}
}

// New creates a capturer.
func New(options ...Option) *Capturer {
	c := &Capturer{
		encoders:   make(map[string]Encoder),
		bufferSize: DefaultBufferSize,
		log:        log.Silent(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Supports reports if the format has an encoder.
func (c *Capturer) Supports(format string) bool {
	_, ok := c.encoders[format]
	return ok
}

// Job is a running capture.
type Job struct {
	ID     string
	Format string

	done chan struct{}
	file *File
	err  error
}

// Await blocks until the capture is completed. File is returned only if
// every block was captured and encoded.
func (j *Job) Await() (*File, error) {
	<-j.done
	return j.file, j.err
}

// Done returns a channel that is closed when the capture is completed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Begin starts the capture of audio with the default format.
func (c *Capturer) Begin(ctx context.Context, audio *render.Audio) (*Job, error) {
	return c.BeginFormat(ctx, audio, c.format)
}

// BeginFormat starts the capture of audio with the format encoder. Only
// one capture can be in flight.
func (c *Capturer) BeginFormat(ctx context.Context, audio *render.Audio, format string) (*Job, error) {
	encoder, ok := c.encoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if audio == nil || audio.Frames() == 0 {
		return nil, ErrNoAudio
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return nil, ErrCaptureInFlight
	}
	c.inFlight = true
	c.mu.Unlock()

	job := &Job{
		ID:     xid.New().String(),
		Format: format,
		done:   make(chan struct{}),
	}
	sink := &accumulator{encoder: encoder}
	p, err := pipe.New(
		c.bufferSize,
		pipe.WithName("capture "+job.ID),
		pipe.WithLogger(c.log),
		pipe.WithPump(&blocks{audio: audio}),
		pipe.WithSinks(sink),
	)
	if err != nil {
		c.release()
		return nil, err
	}

	errc := p.Run(ctx)
	go func() {
		defer close(job.done)
		defer c.release()
		if err := pipe.Wait(errc); err != nil {
			job.err = fmt.Errorf("capture %v: %w", job.ID, err)
			return
		}
		job.file = &File{
			Name:        fmt.Sprintf("piano-%s.%s", job.ID, encoder.Extension()),
			ContentType: encoder.ContentType(),
			Data:        sink.data,
		}
		c.log.Info(fmt.Sprintf("captured %v (%s)", job.file.Name, humanize.Bytes(uint64(len(sink.data)))))
	}()
	return job, nil
}

// Export captures audio with the default format and waits for the file.
func (c *Capturer) Export(ctx context.Context, audio *render.Audio) (*File, error) {
	return c.ExportFormat(ctx, audio, c.format)
}

// ExportFormat captures audio with the format encoder and waits for the
// file.
func (c *Capturer) ExportFormat(ctx context.Context, audio *render.Audio, format string) (*File, error) {
	job, err := c.BeginFormat(ctx, audio, format)
	if err != nil {
		return nil, err
	}
	return job.Await()
}

// InFlight reports if a capture is running.
func (c *Capturer) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Capturer) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// blocks pumps the rendered signal in temporal order.
type blocks struct {
	audio *render.Audio
	pos   int
}

// Pump implements pipe.Pump.
func (b *blocks) Pump(pipeID string, bufferSize int) (func() (signal.Float64, error), int, int, error) {
	return func() (signal.Float64, error) {
		if b.pos >= b.audio.Frames() {
			return nil, io.EOF
		}
		block := b.audio.Signal.Slice(b.pos, bufferSize)
		b.pos += block.Size()
		if block.Size() != bufferSize {
			return block, io.ErrUnexpectedEOF
		}
		return block, nil
	}, b.audio.SampleRate, b.audio.NumChannels(), nil
}

// accumulator collects blocks and encodes them when input is done.
type accumulator struct {
	encoder    Encoder
	sampleRate int
	blocks     []signal.Float64
	data       []byte
}

// Sink implements pipe.Sink.
func (a *accumulator) Sink(pipeID string, sampleRate, numChannels, bufferSize int) (func(signal.Float64) error, error) {
	a.sampleRate = sampleRate
	return func(b signal.Float64) error {
		a.blocks = append(a.blocks, b)
		return nil
	}, nil
}

// Flush encodes accumulated blocks and releases them.
func (a *accumulator) Flush(string) error {
	var s signal.Float64
	for _, b := range a.blocks {
		s = s.Append(b)
	}
	a.blocks = nil
	data, err := a.encoder.Encode(s, a.sampleRate)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	a.data = data
	return nil
}

// Interrupt drops accumulated blocks.
func (a *accumulator) Interrupt(string) error {
	a.blocks = nil
	return nil
}
