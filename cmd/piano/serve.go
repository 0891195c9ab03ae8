package main

import (
	"context"
	"flag"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pipelined/piano/config"
	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/melody"
	"github.com/pipelined/piano/piano"
	"github.com/pipelined/piano/pipe"
	"github.com/pipelined/piano/portaudio"
	"github.com/pipelined/piano/render"
	"github.com/pipelined/piano/samplebank"
	"github.com/pipelined/piano/server"
	"github.com/pipelined/piano/store"
)

type serveCommand struct {
	path  string
	cfg   *config.Config
	flags *flag.FlagSet
}

func (cmd *serveCommand) Name() string {
	return "serve"
}

func (cmd *serveCommand) Help() string {
	return "Serve the piano page and API"
}

func (cmd *serveCommand) Register(fs *flag.FlagSet) {
	cmd.cfg = config.Default()
	cmd.flags = fs
	fs.StringVar(&cmd.path, "config", "", "config file, flags override its values")
	cmd.cfg.Bind(fs)
}

func (cmd *serveCommand) Run(ctx context.Context) error {
	cfg := cmd.cfg
	if cmd.path != "" {
		var err error
		if cfg, err = config.Load(cmd.path); err != nil {
			return err
		}
		if err = cfg.Override(cmd.flags); err != nil {
			return err
		}
	} else if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Debug {
		log.SetDebug(true)
	}
	l := log.GetLogger()

	bankOptions := cfg.BankOptions()
	bankOptions.Logger = l
	bank := samplebank.Load(ctx, cfg.SoundsDir, cfg.Audio.SampleRate, bankOptions)
	live := samplebank.NewLive(bank, cfg.Audio.Channels)

	var sink pipe.Sink = &samplebank.Discard{}
	if cfg.Audio.Output == config.OutputPortaudio {
		sink = &portaudio.Sink{}
	}

	options := []piano.Option{
		piano.WithBank(bank),
		piano.WithFormat(cfg.Audio.SampleRate, cfg.Audio.Channels),
		piano.WithSpacing(cfg.Melody.Spacing),
		piano.WithLogger(l),
	}
	if cfg.Melody.URL != "" {
		melodyOptions := []melody.Option{
			melody.WithRate(cfg.Melody.Rate),
			melody.WithLogger(l),
		}
		if cfg.Melody.Timeout > 0 {
			melodyOptions = append(melodyOptions, melody.WithTimeout(seconds(cfg.Melody.Timeout)))
		}
		options = append(options, piano.WithMelody(melody.NewClient(cfg.Melody.URL, melodyOptions...)))
	}
	if cfg.DBPath != "" {
		takes, err := store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer takes.Close()
		options = append(options, piano.WithTakes(takes))
	}
	p := piano.New(live, render.New(render.DirLoader(cfg.SoundsDir, bankOptions), render.WithLogger(l)), options...)
	defer p.StopPlayback()

	srv := server.New(p,
		server.WithSounds(cfg.SoundsDir),
		server.WithWebDir(cfg.WebDir),
		server.WithLogger(l),
	)

	g, ctx := errgroup.WithContext(ctx)
	output, err := piano.StartOutput(ctx, live, sink, cfg.Audio.BufferSize, l)
	if err != nil {
		return err
	}
	g.Go(func() error {
		for err := range output {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Addr)
	})
	return g.Wait()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
