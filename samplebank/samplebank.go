// Package samplebank loads piano note samples and triggers them either into
// an offline buffer or into a live mixer.
//
// Notes without their own sample are repitched from the nearest loaded
// sample. Every triggered note is held for the note length and then faded
// out over the release time.
package samplebank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/remeh/sizedwaitgroup"
	"golang.org/x/sync/errgroup"

	"github.com/pipelined/piano/log"
	"github.com/pipelined/piano/note"
	"github.com/pipelined/piano/signal"
)

const (
	// DefaultNoteLength is the hold time of a triggered note: an eighth
	// note at 120 BPM.
	DefaultNoteLength = 0.25
	// DefaultRelease is the fade out time after the note is released.
	DefaultRelease = 1.0
	// DefaultMaxShift is the default maximum repitch distance in semitones.
	DefaultMaxShift = 6
	// DefaultConcurrency is the default number of concurrently decoded
	// files.
	DefaultConcurrency = 4
)

var (
	// ErrUnknownNote is returned when note has no sample within repitch
	// distance or its name is invalid.
	ErrUnknownNote = errors.New("unknown note")
	// ErrNotLoaded is returned when bank is used before loading finished.
	ErrNotLoaded = errors.New("sample bank is not loaded")
	// ErrNoSamples is returned when sample directory has no samples.
	ErrNoSamples = errors.New("no samples found")
)

// Options of the bank. Zero values are replaced with defaults.
type Options struct {
	NoteLength  float64
	Release     float64
	MaxShift    int
	Concurrency int
	Logger      log.Logger
}

func (o Options) withDefaults() Options {
	if o.NoteLength <= 0 {
		o.NoteLength = DefaultNoteLength
	}
	if o.Release < 0 {
		o.Release = 0
	} else if o.Release == 0 {
		o.Release = DefaultRelease
	}
	if o.MaxShift <= 0 {
		o.MaxShift = DefaultMaxShift
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Logger == nil {
		o.Logger = log.Silent()
	}
	return o
}

// Tail returns the time a note rings after its onset.
func (o Options) Tail() float64 {
	o = o.withDefaults()
	return o.NoteLength + o.Release
}

// Bank is a set of note samples at a single sample rate. It's safe for
// concurrent use once loaded.
type Bank struct {
	dir        string
	sampleRate int
	opts       Options

	ready   chan struct{}
	err     error
	samples map[note.Note]signal.Float64

	mu     sync.RWMutex
	voices map[note.Note]signal.Float64
}

// Load starts loading samples from dir in background. Use Ready or Wait to
// find out when the bank can be used.
func Load(ctx context.Context, dir string, sampleRate int, opts Options) *Bank {
	b := &Bank{
		dir:        dir,
		sampleRate: sampleRate,
		opts:       opts.withDefaults(),
		ready:      make(chan struct{}),
		voices:     make(map[note.Note]signal.Float64),
	}
	go func() {
		defer close(b.ready)
		start := time.Now()
		b.samples, b.err = b.load(ctx)
		if b.err != nil {
			b.opts.Logger.Info(fmt.Sprintf("sample bank %v failed: %v", dir, b.err))
			return
		}
		b.opts.Logger.Info(fmt.Sprintf("sample bank %v loaded %d samples (%s) in %v",
			dir, len(b.samples), humanize.Bytes(uint64(b.size())), time.Since(start).Round(time.Millisecond)))
	}()
	return b
}

// FromSamples creates a ready bank from decoded samples keyed by note name.
func FromSamples(sampleRate int, samples map[string]signal.Float64, opts Options) (*Bank, error) {
	b := &Bank{
		sampleRate: sampleRate,
		opts:       opts.withDefaults(),
		ready:      make(chan struct{}),
		voices:     make(map[note.Note]signal.Float64),
		samples:    make(map[note.Note]signal.Float64, len(samples)),
	}
	for name, s := range samples {
		n, err := note.Parse(name)
		if err != nil {
			return nil, err
		}
		b.samples[n] = s
	}
	if len(b.samples) == 0 {
		return nil, ErrNoSamples
	}
	close(b.ready)
	return b, nil
}

// load decodes all samples in the directory.
func (b *Bank) load(ctx context.Context) (map[note.Note]signal.Float64, error) {
	files, err := discover(b.dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %v", ErrNoSamples, b.dir)
	}

	var mu sync.Mutex
	samples := make(map[note.Note]signal.Float64, len(files))
	g, gctx := errgroup.WithContext(ctx)
	swg := sizedwaitgroup.New(b.opts.Concurrency)
	for n, path := range files {
		swg.Add()
		g.Go(func() error {
			defer swg.Done()
			s, err := decode(gctx, path, b.sampleRate)
			if err != nil {
				return err
			}
			mu.Lock()
			samples[n] = s
			mu.Unlock()
			b.opts.Logger.Debug(fmt.Sprintf("sample %v decoded from %v", n, filepath.Base(path)))
			return nil
		})
	}
	swg.Wait()
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return samples, nil
}

// discover finds sample files named after notes. When a note has more than
// one file, the first in lexical order is used.
func discover(dir string) (map[note.Note]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[note.Note]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".wav" && ext != ".mp3" {
			continue
		}
		n, err := note.Parse(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		if err != nil {
			continue
		}
		if _, ok := files[n]; !ok {
			files[n] = filepath.Join(dir, e.Name())
		}
	}
	return files, nil
}

// Ready returns a channel that is closed when loading is done.
func (b *Bank) Ready() <-chan struct{} {
	return b.ready
}

// Wait blocks until the bank is loaded. Returns loading error or ctx error.
func (b *Bank) Wait(ctx context.Context) error {
	select {
	case <-b.ready:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loaded reports if bank finished loading without errors.
func (b *Bank) Loaded() bool {
	select {
	case <-b.ready:
		return b.err == nil
	default:
		return false
	}
}

// SampleRate returns the rate of all samples.
func (b *Bank) SampleRate() int {
	return b.sampleRate
}

// Tail returns the time a note rings after its onset.
func (b *Bank) Tail() float64 {
	return b.opts.NoteLength + b.opts.Release
}

// Notes returns names of loaded samples ordered by pitch.
func (b *Bank) Notes() []string {
	if !b.Loaded() {
		return nil
	}
	notes := make([]note.Note, 0, len(b.samples))
	for n := range b.samples {
		notes = append(notes, n)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i] < notes[j] })
	names := make([]string, len(notes))
	for i := range notes {
		names[i] = notes[i].String()
	}
	return names
}

// Voice returns the shaped signal of a triggered note: the sample, repitched
// if needed, held for note length and faded out over release. Returned
// signal is shared and must not be modified.
func (b *Bank) Voice(name string) (signal.Float64, error) {
	if !b.Loaded() {
		return nil, ErrNotLoaded
	}
	n, err := note.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownNote, err)
	}

	b.mu.RLock()
	v, ok := b.voices[n]
	b.mu.RUnlock()
	if ok {
		return v, nil
	}

	source, shift, ok := b.nearest(n)
	if !ok {
		return nil, fmt.Errorf("%w: %v has no sample within %d semitones", ErrUnknownNote, name, b.opts.MaxShift)
	}
	v = b.shape(repitch(source, math.Pow(2, float64(shift)/12)))

	b.mu.Lock()
	b.voices[n] = v
	b.mu.Unlock()
	return v, nil
}

// nearest finds the closest sample to n. Lower samples win ties.
func (b *Bank) nearest(n note.Note) (signal.Float64, int, bool) {
	if s, ok := b.samples[n]; ok {
		return s, 0, true
	}
	for d := 1; d <= b.opts.MaxShift; d++ {
		if s, ok := b.samples[n-note.Note(d)]; ok {
			return s, d, true
		}
		if s, ok := b.samples[n+note.Note(d)]; ok {
			return s, -d, true
		}
	}
	return nil, 0, false
}

// shape applies the hold and release envelope and trims the voice.
func (b *Bank) shape(s signal.Float64) signal.Float64 {
	hold := signal.FramesOf(b.sampleRate, b.opts.NoteLength)
	release := signal.FramesOf(b.sampleRate, b.opts.Release)
	size := s.Size()
	if size > hold+release {
		size = hold + release
	}
	v := s.Slice(0, size)
	if v == nil {
		return signal.EmptyFloat64(s.NumChannels(), 0)
	}
	for c := range v {
		for i := hold; i < size; i++ {
			v[c][i] *= 1 - float64(i-hold)/float64(release)
		}
	}
	return v
}

// RenderInto mixes the voice of the note into dst starting at startFrame.
func (b *Bank) RenderInto(dst signal.Float64, name string, startFrame int) error {
	v, err := b.Voice(name)
	if err != nil {
		return err
	}
	dst.MixAt(v, startFrame)
	return nil
}

// size returns the total number of decoded samples in bytes.
func (b *Bank) size() int {
	var size int
	for _, s := range b.samples {
		size += s.Size() * s.NumChannels() * 8
	}
	return size
}
