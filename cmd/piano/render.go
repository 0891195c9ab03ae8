package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pipelined/piano/capture"
	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/midi"
	"github.com/pipelined/piano/mp3"
	"github.com/pipelined/piano/render"
	"github.com/pipelined/piano/samplebank"
	"github.com/pipelined/piano/signal"
	"github.com/pipelined/piano/timeline"
	"github.com/pipelined/piano/wav"
)

type renderCommand struct {
	in         string
	out        string
	sounds     string
	sampleRate int
	channels   int
	bitDepth   int
	bitRate    int
}

func (cmd *renderCommand) Name() string {
	return "render"
}

func (cmd *renderCommand) Help() string {
	return "Render a timeline to wav, mp3 or mid file"
}

func (cmd *renderCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.in, "in", "", "timeline to render: json list of {note, time} or mid file (required)")
	fs.StringVar(&cmd.out, "out", "", "output file, format is defined by extension (required)")
	fs.StringVar(&cmd.sounds, "sounds", "sounds", "note samples directory")
	fs.IntVar(&cmd.sampleRate, "rate", 44100, "sample rate")
	fs.IntVar(&cmd.channels, "channels", 2, "number of channels")
	fs.IntVar(&cmd.bitDepth, "bits", 16, "wav bit depth: 16, 24 or 32")
	fs.IntVar(&cmd.bitRate, "bitrate", mp3.DefaultBitRate, "mp3 bit rate in kbps")
}

func (cmd *renderCommand) Run(ctx context.Context) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	tl, err := readTimeline(cmd.in)
	if err != nil {
		return err
	}
	data, err := cmd.encode(ctx, tl, strings.TrimPrefix(filepath.Ext(cmd.out), "."))
	if err != nil {
		return err
	}
	if err := os.WriteFile(cmd.out, data, 0o644); err != nil {
		return err
	}
	log.GetLogger().Infof("rendered %d notes to %v (%s)", tl.Len(), cmd.out, humanize.Bytes(uint64(len(data))))
	return nil
}

func (cmd *renderCommand) encode(ctx context.Context, tl timeline.Timeline, format string) ([]byte, error) {
	if format == midi.Extension {
		return midi.Encoder{}.Encode(tl)
	}
	l := log.GetLogger()
	c := capture.New(
		capture.WithEncoder(wav.Extension, wav.Encoder{BitDepth: signal.BitDepth(cmd.bitDepth)}),
		capture.WithEncoder(mp3.Extension, mp3.Encoder{BitRate: cmd.bitRate}),
		capture.WithLogger(l),
	)
	if !c.Supports(format) {
		return nil, fmt.Errorf("%w: %q", capture.ErrUnknownFormat, format)
	}
	r := render.New(render.DirLoader(cmd.sounds, samplebank.Options{Logger: l}), render.WithLogger(l))
	audio, err := r.Render(ctx, tl, cmd.sampleRate, cmd.channels)
	if err != nil {
		return nil, err
	}
	f, err := c.ExportFormat(ctx, audio, format)
	if err != nil {
		return nil, err
	}
	return f.Data, nil
}

func (cmd *renderCommand) Validate() error {
	var message string
	if cmd.in == "" {
		message = message + "Missing -in required flag\n"
	}
	if cmd.out == "" {
		message = message + "Missing -out required flag\n"
	}
	if message != "" {
		return fmt.Errorf("%s", message)
	}
	return nil
}

// readTimeline reads a mid file or json list of note events.
func readTimeline(path string) (timeline.Timeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return timeline.Timeline{}, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), "."+midi.Extension) {
		return midi.Decode(f)
	}
	var events []timeline.NoteEvent
	if err := json.NewDecoder(f).Decode(&events); err != nil {
		return timeline.Timeline{}, fmt.Errorf("parse %v: %w", path, err)
	}
	return timeline.New(events...), nil
}
