package pipe

import (
	"context"
	"errors"
	"io"

	"github.com/pipelined/piano/metric"
	"github.com/pipelined/piano/signal"
)

// hook represents optional functions for components lifecycle.
type hook func(string) error

// set of hooks for runners.
type hooks struct {
	flush     hook
	interrupt hook
}

// bindHooks of component.
func bindHooks(v interface{}) hooks {
	h := hooks{}
	if f, ok := v.(Flusher); ok {
		h.flush = f.Flush
	}
	if i, ok := v.(Interrupter); ok {
		h.interrupt = i.Interrupt
	}
	return h
}

// call hook and send error if it occurred.
func call(h hook, pipeID string, errc chan<- error) {
	if h == nil {
		return
	}
	if err := h(pipeID); err != nil {
		errc <- err
	}
}

// pumpRunner is pump's runner.
type pumpRunner struct {
	Pump
	fn func() (signal.Float64, error)
	hooks
}

// processRunner represents processor's runner.
type processRunner struct {
	Processor
	fn func(signal.Float64) (signal.Float64, error)
	hooks
}

// sinkRunner represents sink's runner.
type sinkRunner struct {
	Sink
	fn func(signal.Float64) error
	hooks
}

// newPumpRunner creates the closure. it's separated from run to have pre-run
// logic executed in correct order for all components.
func newPumpRunner(pipeID string, bufferSize int, p Pump) (*pumpRunner, int, int, error) {
	fn, sampleRate, numChannels, err := p.Pump(pipeID, bufferSize)
	if err != nil {
		return nil, 0, 0, err
	}
	return &pumpRunner{
		Pump:  p,
		fn:    fn,
		hooks: bindHooks(p),
	}, sampleRate, numChannels, nil
}

// run the Pump runner. Output channel is closed when pump is done. On error
// cancel is called before output is closed, so consumers can tell failure
// from the end of data.
func (r *pumpRunner) run(ctx context.Context, cancel context.CancelFunc, pipeID string, meter metric.ResetFunc) (<-chan signal.Float64, <-chan error) {
	out := make(chan signal.Float64)
	errc := make(chan error, 2)
	go func() {
		defer close(errc)
		defer close(out)
		measure := meter()
		for {
			if ctx.Err() != nil {
				call(r.interrupt, pipeID, errc)
				return
			}
			b, err := r.fn()
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				if errors.Is(err, io.EOF) {
					call(r.flush, pipeID, errc)
				} else {
					errc <- err
					cancel()
					call(r.interrupt, pipeID, errc)
				}
				return
			}
			measure(int64(b.Size()))
			select {
			case out <- b:
			case <-ctx.Done():
				call(r.interrupt, pipeID, errc)
				return
			}
			if err != nil {
				call(r.flush, pipeID, errc)
				return
			}
		}
	}()
	return out, errc
}

// newProcessRunner creates the closure. it's separated from run to have pre-run
// logic executed in correct order for all components.
func newProcessRunner(pipeID string, sampleRate, numChannels, bufferSize int, p Processor) (*processRunner, error) {
	fn, err := p.Process(pipeID, sampleRate, numChannels, bufferSize)
	if err != nil {
		return nil, err
	}
	return &processRunner{
		Processor: p,
		fn:        fn,
		hooks:     bindHooks(p),
	}, nil
}

// run the Processor runner.
func (r *processRunner) run(ctx context.Context, cancel context.CancelFunc, pipeID string, in <-chan signal.Float64, meter metric.ResetFunc) (<-chan signal.Float64, <-chan error) {
	out := make(chan signal.Float64)
	errc := make(chan error, 2)
	go func() {
		defer close(errc)
		defer close(out)
		measure := meter()
		for {
			var (
				b  signal.Float64
				ok bool
			)
			select {
			case b, ok = <-in:
			case <-ctx.Done():
				call(r.interrupt, pipeID, errc)
				return
			}
			if !ok {
				if ctx.Err() != nil {
					call(r.interrupt, pipeID, errc)
				} else {
					call(r.flush, pipeID, errc)
				}
				return
			}
			b, err := r.fn(b)
			if err != nil {
				errc <- err
				cancel()
				call(r.interrupt, pipeID, errc)
				return
			}
			measure(int64(b.Size()))
			select {
			case out <- b:
			case <-ctx.Done():
				call(r.interrupt, pipeID, errc)
				return
			}
		}
	}()
	return out, errc
}

// newSinkRunner creates the closure. it's separated from run to have pre-run
// logic executed in correct order for all components.
func newSinkRunner(pipeID string, sampleRate, numChannels, bufferSize int, s Sink) (*sinkRunner, error) {
	fn, err := s.Sink(pipeID, sampleRate, numChannels, bufferSize)
	if err != nil {
		return nil, err
	}
	return &sinkRunner{
		Sink:  s,
		fn:    fn,
		hooks: bindHooks(s),
	}, nil
}

// run the sink runner. Flush hook is called only when input is closed and
// the pipe wasn't cancelled.
func (r *sinkRunner) run(ctx context.Context, cancel context.CancelFunc, pipeID string, in <-chan signal.Float64, meter metric.ResetFunc) <-chan error {
	errc := make(chan error, 2)
	go func() {
		defer close(errc)
		measure := meter()
		for {
			var (
				b  signal.Float64
				ok bool
			)
			select {
			case b, ok = <-in:
			case <-ctx.Done():
				call(r.interrupt, pipeID, errc)
				return
			}
			if !ok {
				if ctx.Err() != nil {
					call(r.interrupt, pipeID, errc)
				} else {
					call(r.flush, pipeID, errc)
				}
				return
			}
			if err := r.fn(b); err != nil {
				errc <- err
				cancel()
				call(r.interrupt, pipeID, errc)
				return
			}
			measure(int64(b.Size()))
		}
	}()
	return errc
}
