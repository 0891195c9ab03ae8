// Package render renders timelines offline into a signal.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hako/durafmt"

	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/metric"
	"github.com/pipelined/piano/samplebank"
	"github.com/pipelined/piano/signal"
	"github.com/pipelined/piano/timeline"
)

// RenderedCounter counts rendered timelines.
const RenderedCounter = "Rendered"

var (
	// ErrBankNotLoaded is returned when sample bank failed to load.
	ErrBankNotLoaded = errors.New("sample bank not loaded")
	// ErrInvalidFormat is returned when sample rate or number of channels
	// is not positive.
	ErrInvalidFormat = errors.New("invalid audio format")
)

// Audio is a rendered signal. It's not modified after render.
type Audio struct {
	Signal     signal.Float64
	SampleRate int
}

// Frames returns the number of frames per channel.
func (a *Audio) Frames() int {
	return a.Signal.Size()
}

// NumChannels returns the number of channels.
func (a *Audio) NumChannels() int {
	return a.Signal.NumChannels()
}

// Duration returns the time span of the signal.
func (a *Audio) Duration() time.Duration {
	return signal.DurationOf(a.SampleRate, int64(a.Frames()))
}

// BankLoader starts loading a new sample bank at the sample rate. Every call
// must return a new bank.
type BankLoader func(ctx context.Context, sampleRate int) *samplebank.Bank

// DirLoader loads banks from the sample directory.
func DirLoader(dir string, opts samplebank.Options) BankLoader {
	return func(ctx context.Context, sampleRate int) *samplebank.Bank {
		return samplebank.Load(ctx, dir, sampleRate, opts)
	}
}

// Renderer renders timelines with its own sample bank per render.
type Renderer struct {
	load BankLoader
	log  log.Logger
}

// Option configures the renderer.
type Option func(*Renderer)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(r *Renderer) {
		r.log = l
	}
}

// New creates a renderer.
func New(load BankLoader, options ...Option) *Renderer {
	r := &Renderer{
		load: load,
		log:  log.Silent(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Render loads a new sample bank, waits until it's ready and mixes every
// event at its frame offset. The result spans the timeline duration with
// the bank tail. No audio is returned on error.
func (r *Renderer) Render(ctx context.Context, tl timeline.Timeline, sampleRate, numChannels int) (*Audio, error) {
	if tl.Empty() {
		return nil, timeline.ErrEmptyTimeline
	}
	if sampleRate <= 0 || numChannels <= 0 {
		return nil, fmt.Errorf("%w: %d Hz %d channels", ErrInvalidFormat, sampleRate, numChannels)
	}

	bank := r.load(ctx, sampleRate)
	if err := bank.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrBankNotLoaded, err)
	}

	start := time.Now()
	duration := tl.Duration(bank.Tail())
	out := signal.EmptyFloat64(numChannels, signal.FramesOf(sampleRate, duration))
	for _, e := range tl.Sorted() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := bank.RenderInto(out, e.Note, signal.FramesOf(sampleRate, e.Time)); err != nil {
			return nil, fmt.Errorf("render %v at %.3fs: %w", e.Note, e.Time, err)
		}
	}
	metric.Counter(r, RenderedCounter).Add(1)
	r.log.Info(fmt.Sprintf("rendered %d notes, %v of audio in %v",
		tl.Len(), durafmt.Parse(tl.Length(bank.Tail())).LimitFirstN(2), time.Since(start).Round(time.Millisecond)))
	return &Audio{Signal: out, SampleRate: sampleRate}, nil
}
