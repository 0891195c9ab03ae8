// Package config holds piano settings loaded from a JSON file and
// overridden by command line flags.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pipelined/piano/samplebank"
	"github.com/pipelined/piano/timeline"
)

// Output names the live output driver.
type Output string

const (
	// OutputNone consumes live output without playing it.
	OutputNone Output = "none"
	// OutputPortaudio plays live output through the default device.
	OutputPortaudio Output = "portaudio"
)

// String implements flag.Value.
func (o Output) String() string {
	return string(o)
}

// Set implements flag.Value.
func (o *Output) Set(v string) error {
	switch Output(v) {
	case OutputNone, OutputPortaudio:
		*o = Output(v)
		return nil
	}
	return fmt.Errorf("%w: output %q", ErrInvalid, v)
}

// ErrInvalid is returned when config values are out of range.
var ErrInvalid = errors.New("invalid config")

// MelodyConfig defines the melody service.
type MelodyConfig struct {
	URL string `json:"url"`
	// Rate is the number of requests per second.
	Rate float64 `json:"rate,omitempty"`
	// Timeout in seconds.
	Timeout float64 `json:"timeout,omitempty"`
	// Spacing is the time between generated notes in seconds.
	Spacing float64 `json:"spacing,omitempty"`
}

// AudioConfig defines rendering and sample playback.
type AudioConfig struct {
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
	BufferSize int     `json:"bufferSize"`
	NoteLength float64 `json:"noteLength,omitempty"`
	Release    float64 `json:"release,omitempty"`
	MaxShift   int     `json:"maxShift,omitempty"`
	Output     Output  `json:"output,omitempty"`
}

// Config is the main configuration structure.
type Config struct {
	Addr      string       `json:"addr"`
	WebDir    string       `json:"webDir,omitempty"`
	SoundsDir string       `json:"soundsDir"`
	DBPath    string       `json:"dbPath,omitempty"`
	Debug     bool         `json:"debug,omitempty"`
	Melody    MelodyConfig `json:"melody"`
	Audio     AudioConfig  `json:"audio"`
}

// Default returns a config with defaults.
func Default() *Config {
	return &Config{
		Addr:      ":5001",
		SoundsDir: "sounds",
		DBPath:    "piano.sqlite",
		Melody: MelodyConfig{
			URL:     "http://localhost:5000",
			Rate:    2,
			Timeout: 10,
			Spacing: timeline.DefaultSpacing,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   2,
			BufferSize: 512,
			NoteLength: samplebank.DefaultNoteLength,
			Release:    samplebank.DefaultRelease,
			MaxShift:   samplebank.DefaultMaxShift,
			Output:     OutputNone,
		},
	}
}

// Load reads the config from path, or returns defaults if it doesn't exist.
// Values missing in the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %v: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Save writes the config to path.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Bind registers flags that override config values.
func (c *Config) Bind(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "server address")
	fs.StringVar(&c.WebDir, "web", c.WebDir, "serve web assets from directory instead of embedded ones")
	fs.StringVar(&c.SoundsDir, "sounds", c.SoundsDir, "note samples directory")
	fs.StringVar(&c.DBPath, "db", c.DBPath, "takes database path, empty disables takes")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "debug logging")
	fs.StringVar(&c.Melody.URL, "melody", c.Melody.URL, "melody service url")
	fs.Float64Var(&c.Melody.Rate, "melody-rate", c.Melody.Rate, "melody requests per second")
	fs.Float64Var(&c.Melody.Spacing, "spacing", c.Melody.Spacing, "seconds between generated notes")
	fs.IntVar(&c.Audio.SampleRate, "rate", c.Audio.SampleRate, "sample rate")
	fs.IntVar(&c.Audio.Channels, "channels", c.Audio.Channels, "number of channels")
	fs.IntVar(&c.Audio.BufferSize, "buffer", c.Audio.BufferSize, "buffer size")
	fs.Float64Var(&c.Audio.NoteLength, "note-length", c.Audio.NoteLength, "seconds a note is held")
	fs.Float64Var(&c.Audio.Release, "release", c.Audio.Release, "seconds a note fades out")
	fs.IntVar(&c.Audio.MaxShift, "max-shift", c.Audio.MaxShift, "maximum repitch in semitones")
	fs.Var(&c.Audio.Output, "output", "live output: none or portaudio")
}

// Override applies flags set in fs to the config. It's used to apply
// command line flags over a config loaded after the flags were parsed.
func (c *Config) Override(fs *flag.FlagSet) error {
	bound := flag.NewFlagSet("config", flag.ContinueOnError)
	c.Bind(bound)
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil || bound.Lookup(f.Name) == nil {
			return
		}
		err = bound.Set(f.Name, f.Value.String())
	})
	if err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Audio.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalid, c.Audio.SampleRate)
	case c.Audio.Channels <= 0:
		return fmt.Errorf("%w: channels %d", ErrInvalid, c.Audio.Channels)
	case c.Audio.BufferSize <= 0:
		return fmt.Errorf("%w: buffer size %d", ErrInvalid, c.Audio.BufferSize)
	case c.Audio.Output != "" && c.Audio.Output != OutputNone && c.Audio.Output != OutputPortaudio:
		return fmt.Errorf("%w: output %q", ErrInvalid, c.Audio.Output)
	}
	return nil
}

// BankOptions returns sample bank options.
func (c *Config) BankOptions() samplebank.Options {
	return samplebank.Options{
		NoteLength: c.Audio.NoteLength,
		Release:    c.Audio.Release,
		MaxShift:   c.Audio.MaxShift,
	}
}
