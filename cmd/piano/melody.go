package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"time"

	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/melody"
	"github.com/pipelined/piano/timeline"
)

type melodyCommand struct {
	addr    string
	order   int
	length  int
	seed    int64
	spacing float64
}

func (cmd *melodyCommand) Name() string {
	return "melody"
}

func (cmd *melodyCommand) Help() string {
	return "Serve the melody generation service"
}

func (cmd *melodyCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.addr, "addr", ":5000", "service address")
	fs.IntVar(&cmd.order, "order", melody.DefaultOrder, "markov chain order")
	fs.IntVar(&cmd.length, "length", melody.DefaultLength, "number of generated notes")
	fs.Int64Var(&cmd.seed, "seed", time.Now().UnixNano(), "random seed")
	fs.Float64Var(&cmd.spacing, "spacing", timeline.DefaultSpacing, "seconds between notes of generated music")
}

func (cmd *melodyCommand) Run(ctx context.Context) error {
	l := log.GetLogger()
	svc := &melody.Service{
		Generator: melody.NewMarkov(cmd.order, cmd.length, cmd.seed),
		Spacing:   cmd.spacing,
		Log:       l,
	}
	ln, err := net.Listen("tcp", cmd.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	l.Infof("Melody service is running on http://%s", ln.Addr())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
