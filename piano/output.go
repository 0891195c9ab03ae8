package piano

import (
	"context"
	"errors"

	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/pipe"
)

// StartOutput runs the live pump into the output sink until ctx is done.
// Returned channel receives the output error, if any, and is closed when
// output is stopped.
func StartOutput(ctx context.Context, live pipe.Pump, sink pipe.Sink, bufferSize int, l log.Logger) (<-chan error, error) {
	if l == nil {
		l = log.Silent()
	}
	p, err := pipe.New(
		bufferSize,
		pipe.WithName("live output"),
		pipe.WithLogger(l),
		pipe.WithPump(live),
		pipe.WithSinks(sink),
	)
	if err != nil {
		return nil, err
	}
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		err := pipe.Wait(p.Run(ctx))
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			errc <- err
		}
	}()
	return errc, nil
}
