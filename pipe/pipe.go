// Package pipe runs block-based signal pipelines. A pipe has one pump,
// zero or more processors and one or more sinks. Every component runs in
// its own goroutine and components are joined with unbuffered channels, so
// a slow sink applies back pressure up to the pump.
package pipe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"

	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/metric"
	"github.com/pipelined/piano/signal"
)

// Pump is a source of samples. Pump method returns a closure that returns a
// new buffer with signal data on every call, sample rate and number of
// channels of the signal.
// Implementations should use next error conventions:
// 		- nil if a full buffer was read;
// 		- io.EOF if no data was read;
// 		- io.ErrUnexpectedEOF if not a full buffer was read.
// The latest case means that pump executed as expected, but not enough data was available.
// This incomplete buffer still will be sent further and pump will be finished gracefully.
type Pump interface {
	Pump(pipeID string, bufferSize int) (func() (signal.Float64, error), int, int, error)
}

// Processor defines interface for pipe-processors.
type Processor interface {
	Process(pipeID string, sampleRate, numChannels, bufferSize int) (func(signal.Float64) (signal.Float64, error), error)
}

// Sink is an interface for final stage in audio pipeline. When multiple
// sinks are used, they receive the same buffer and must not modify it.
type Sink interface {
	Sink(pipeID string, sampleRate, numChannels, bufferSize int) (func(signal.Float64) error, error)
}

// Flusher defines component that must be flushed in the end of successful
// execution.
type Flusher interface {
	Flush(pipeID string) error
}

// Interrupter defines component that has custom interruption logic. It's
// called instead of flush when execution is cancelled or failed.
type Interrupter interface {
	Interrupt(pipeID string) error
}

var (
	// ErrInvalidState is returned if pipe method cannot be executed at this moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrNoPump is returned when pipe is created without pump.
	ErrNoPump = errors.New("pump is not defined")
	// ErrNoSinks is returned when pipe is created without sinks.
	ErrNoSinks = errors.New("sinks are not defined")
)

// Pipe is a pipeline with fully defined sound processing sequence.
// Components are bound when pipe is created, so pipe can be run only once.
type Pipe struct {
	uid         string
	name        string
	sampleRate  int
	numChannels int
	bufferSize  int

	pump       *pumpRunner
	processors []*processRunner
	sinks      []*sinkRunner

	log log.Logger

	mu      sync.Mutex
	started bool
}

// Option provides a way to set functional parameters to pipe.
type Option func(p *Pipe) error

// New creates a new pipe and applies provided options. Pump option must
// precede processors and sinks, because they are bound with pump's signal
// properties.
func New(bufferSize int, options ...Option) (*Pipe, error) {
	p := &Pipe{
		uid:        newUID(),
		bufferSize: bufferSize,
		log:        log.Silent(),
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	if p.pump == nil {
		return nil, ErrNoPump
	}
	if len(p.sinks) == 0 {
		return nil, ErrNoSinks
	}
	return p, nil
}

// WithLogger sets logger to Pipe. If this option is not provided, silent logger is used.
func WithLogger(logger log.Logger) Option {
	return func(p *Pipe) error {
		p.log = logger
		return nil
	}
}

// WithName sets name to Pipe.
func WithName(n string) Option {
	return func(p *Pipe) error {
		p.name = n
		return nil
	}
}

// WithPump sets pump to Pipe.
func WithPump(pump Pump) Option {
	return func(p *Pipe) error {
		r, sampleRate, numChannels, err := newPumpRunner(p.uid, p.bufferSize, pump)
		if err != nil {
			return fmt.Errorf("pump: %w", err)
		}
		p.pump = r
		p.sampleRate = sampleRate
		p.numChannels = numChannels
		return nil
	}
}

// WithProcessors sets processors to Pipe.
func WithProcessors(processors ...Processor) Option {
	return func(p *Pipe) error {
		if p.pump == nil {
			return ErrNoPump
		}
		for _, proc := range processors {
			r, err := newProcessRunner(p.uid, p.sampleRate, p.numChannels, p.bufferSize, proc)
			if err != nil {
				return fmt.Errorf("processor: %w", err)
			}
			p.processors = append(p.processors, r)
		}
		return nil
	}
}

// WithSinks sets sinks to Pipe.
func WithSinks(sinks ...Sink) Option {
	return func(p *Pipe) error {
		if p.pump == nil {
			return ErrNoPump
		}
		for _, sink := range sinks {
			r, err := newSinkRunner(p.uid, p.sampleRate, p.numChannels, p.bufferSize, sink)
			if err != nil {
				return fmt.Errorf("sink: %w", err)
			}
			p.sinks = append(p.sinks, r)
		}
		return nil
	}
}

// SampleRate returns sample rate of the pump's signal.
func (p *Pipe) SampleRate() int {
	return p.sampleRate
}

// NumChannels returns number of channels of the pump's signal.
func (p *Pipe) NumChannels() int {
	return p.numChannels
}

// Run starts the pipe. Returned channel receives at most one error and is
// closed when all components are done. If ctx is cancelled, components are
// interrupted and ctx error is returned.
func (p *Pipe) Run(ctx context.Context) <-chan error {
	result := make(chan error, 1)
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		result <- ErrInvalidState
		close(result)
		return result
	}
	p.started = true
	p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	errcList := make([]<-chan error, 0, 1+len(p.processors)+len(p.sinks))
	out, errc := p.pump.run(runCtx, cancel, p.uid, metric.Meter(p.pump.Pump, p.sampleRate))
	errcList = append(errcList, errc)

	for _, proc := range p.processors {
		out, errc = proc.run(runCtx, cancel, p.uid, out, metric.Meter(proc.Processor, p.sampleRate))
		errcList = append(errcList, errc)
	}
	errcList = append(errcList, p.broadcastToSinks(runCtx, cancel, out)...)
	p.log.Debug(fmt.Sprintf("%v started", p))

	merged := mergeErrors(errcList...)
	go func() {
		defer close(result)
		defer cancel()
		var errs execErrors
		for err := range merged {
			errs = append(errs, err)
			cancel()
		}
		if err := errs.ret(); err != nil {
			p.log.Info(fmt.Sprintf("%v failed: %v", p, err))
			result <- err
			return
		}
		if err := ctx.Err(); err != nil {
			p.log.Debug(fmt.Sprintf("%v cancelled", p))
			result <- err
			return
		}
		p.log.Debug(fmt.Sprintf("%v done", p))
	}()
	return result
}

// Wait for pipe to finish and return the error if any occurred.
func Wait(errc <-chan error) error {
	return <-errc
}

// broadcastToSinks passes buffers to all sinks.
func (p *Pipe) broadcastToSinks(ctx context.Context, cancel context.CancelFunc, in <-chan signal.Float64) []<-chan error {
	errcList := make([]<-chan error, 0, len(p.sinks))
	if len(p.sinks) == 1 {
		s := p.sinks[0]
		return append(errcList, s.run(ctx, cancel, p.uid, in, metric.Meter(s.Sink, p.sampleRate)))
	}

	broadcasts := make([]chan signal.Float64, len(p.sinks))
	for i := range broadcasts {
		broadcasts[i] = make(chan signal.Float64)
	}
	for i, s := range p.sinks {
		errcList = append(errcList, s.run(ctx, cancel, p.uid, broadcasts[i], metric.Meter(s.Sink, p.sampleRate)))
	}

	go func() {
		defer func() {
			for i := range broadcasts {
				close(broadcasts[i])
			}
		}()
		for b := range in {
			for i := range broadcasts {
				select {
				case broadcasts[i] <- b:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return errcList
}

// mergeErrors merges error channels from all components into one.
func mergeErrors(errcList ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	errc := make(chan error, len(errcList))

	output := func(ec <-chan error) {
		for e := range ec {
			errc <- e
		}
		wg.Done()
	}
	wg.Add(len(errcList))
	for _, ec := range errcList {
		go output(ec)
	}

	go func() {
		wg.Wait()
		close(errc)
	}()
	return errc
}

// String returns pipe name and id.
func (p *Pipe) String() string {
	if p.name == "" {
		return p.uid
	}
	return fmt.Sprintf("%v %v", p.name, p.uid)
}

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}
