package samplebank

import (
	"sync"
	"time"

	"github.com/pipelined/piano/signal"
)

// Live mixes triggered voices into consecutive output blocks. Notes
// triggered with Play start at the beginning of the next block. It's safe
// for concurrent use and shares voices with the bank.
type Live struct {
	bank        *Bank
	numChannels int

	mu      sync.Mutex
	playing []*playing
}

// playing is a voice being mixed.
type playing struct {
	voice signal.Float64
	pos   int
}

// NewLive creates a live mixer that outputs numChannels.
func NewLive(bank *Bank, numChannels int) *Live {
	return &Live{
		bank:        bank,
		numChannels: numChannels,
	}
}

// Play triggers the note at the current playhead. Returns ErrNotLoaded if
// the bank is still loading.
func (l *Live) Play(name string) error {
	v, err := l.bank.Voice(name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.playing = append(l.playing, &playing{voice: v})
	l.mu.Unlock()
	return nil
}

// Active returns the number of voices being mixed.
func (l *Live) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.playing)
}

// Process overwrites out with the next block of mixed voices.
func (l *Live) Process(out signal.Float64) {
	for c := range out {
		for i := range out[c] {
			out[c][i] = 0
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	active := l.playing[:0]
	for _, p := range l.playing {
		p.pos += out.MixAt(p.voice.Slice(p.pos, out.Size()), 0)
		if p.pos < p.voice.Size() {
			active = append(active, p)
		}
	}
	for i := len(active); i < len(l.playing); i++ {
		l.playing[i] = nil
	}
	l.playing = active
}

// Pump implements pipe.Pump. The returned closure never ends, pipe must be
// cancelled to stop it. Output sink is responsible for pacing.
func (l *Live) Pump(pipeID string, bufferSize int) (func() (signal.Float64, error), int, int, error) {
	return func() (signal.Float64, error) {
		out := signal.EmptyFloat64(l.numChannels, bufferSize)
		l.Process(out)
		return out, nil
	}, l.bank.SampleRate(), l.numChannels, nil
}

// Discard is an output sink that drops the signal, consuming blocks at
// real-time speed. It's used when no audio device is available.
type Discard struct {
	ticker *time.Ticker
}

// Sink implements pipe.Sink.
func (d *Discard) Sink(pipeID string, sampleRate, numChannels, bufferSize int) (func(signal.Float64) error, error) {
	d.ticker = time.NewTicker(signal.DurationOf(sampleRate, int64(bufferSize)))
	return func(signal.Float64) error {
		<-d.ticker.C
		return nil
	}, nil
}

// Flush stops the ticker.
func (d *Discard) Flush(string) error {
	d.ticker.Stop()
	return nil
}

// Interrupt stops the ticker.
func (d *Discard) Interrupt(string) error {
	d.ticker.Stop()
	return nil
}
