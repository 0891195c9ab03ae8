// Package piano is the controller of the virtual piano. It owns the
// recording session and the current timeline, and drives live playback,
// timed playback, melody generation and export.
package piano

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/pipelined/piano/capture"
	"github.com/pipelined/piano/clock"
	"github.com/pipelined/piano/melody"
	"github.com/pipelined/piano/midi"
	"github.com/pipelined/piano/mp3"
	"github.com/pipelined/piano/record"
	"github.com/pipelined/piano/render"
	"github.com/pipelined/piano/signal"
	"github.com/pipelined/piano/store"
	"github.com/pipelined/piano/timeline"
	"github.com/pipelined/piano/transport"
	"github.com/pipelined/piano/wav"
)

var (
	// ErrNoRecording is returned when an operation needs a recorded
	// timeline and there is none.
	ErrNoRecording = errors.New("no recording")
	// ErrNoTakes is returned when takes are not stored.
	ErrNoTakes = errors.New("takes are not stored")
	// ErrNoMelody is returned when melody service is not configured.
	ErrNoMelody = errors.New("melody service is not configured")
)

// Renderer renders timelines offline.
type Renderer interface {
	Render(ctx context.Context, tl timeline.Timeline, sampleRate, numChannels int) (*render.Audio, error)
}

// Melody generates notes.
type Melody interface {
	Generate(ctx context.Context, notes []string) ([]string, error)
	GenerateMusic(ctx context.Context) ([]melody.Note, error)
}

// Takes stores timelines.
type Takes interface {
	Save(ctx context.Context, tl timeline.Timeline) (store.Take, error)
	List(ctx context.Context) ([]store.Summary, error)
	Get(ctx context.Context, id string) (store.Take, error)
}

// Bank reports the live sample bank state.
type Bank interface {
	Loaded() bool
}

// State is a snapshot of the piano.
type State struct {
	Recording  bool                 `json:"recording"`
	SessionID  string               `json:"sessionId,omitempty"`
	Playing    bool                 `json:"playing"`
	Pending    int                  `json:"pending"`
	Exporting  bool                 `json:"exporting"`
	BankLoaded bool                 `json:"bankLoaded"`
	TakeID     string               `json:"takeId,omitempty"`
	Duration   float64              `json:"duration"`
	Events     []timeline.NoteEvent `json:"events"`
	// CanPlay is true when playback, generate and export are available.
	CanPlay bool `json:"canPlay"`
}

// Piano is the controller. It's safe for concurrent use.
type Piano struct {
	player     transport.Player
	bank       Bank
	clock      clock.Clock
	recorder   *record.Recorder
	scheduler  *transport.Scheduler
	renderer   Renderer
	capturer   *capture.Capturer
	midi       midi.Encoder
	melody     Melody
	takes      Takes
	sampleRate int
	channels   int
	spacing    float64
	log        logrus.FieldLogger

	mu       sync.Mutex
	timeline timeline.Timeline
	takeID   string
}

// Option configures the piano.
type Option func(*Piano)

// WithClock sets the time source of recording and playback.
func WithClock(c clock.Clock) Option {
	return func(p *Piano) {
		p.clock = c
	}
}

// WithBank sets the live sample bank.
func WithBank(b Bank) Option {
	return func(p *Piano) {
		p.bank = b
	}
}

// WithMelody sets the melody service.
func WithMelody(m Melody) Option {
	return func(p *Piano) {
		p.melody = m
	}
}

// WithTakes enables take storage.
func WithTakes(t Takes) Option {
	return func(p *Piano) {
		p.takes = t
	}
}

// WithCapturer replaces the default wav and mp3 capturer.
func WithCapturer(c *capture.Capturer) Option {
	return func(p *Piano) {
		p.capturer = c
	}
}

// WithFormat sets the format of rendered audio.
func WithFormat(sampleRate, channels int) Option {
	return func(p *Piano) {
		p.sampleRate = sampleRate
		p.channels = channels
	}
}

// WithSpacing sets the time between generated notes.
func WithSpacing(spacing float64) Option {
	return func(p *Piano) {
		p.spacing = spacing
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Piano) {
		p.log = l
	}
}

// New creates a piano that plays notes with the player and renders exports
// with the renderer.
func New(player transport.Player, renderer Renderer, options ...Option) *Piano {
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	p := &Piano{
		player:     player,
		renderer:   renderer,
		clock:      clock.Real{},
		sampleRate: 44100,
		channels:   2,
		spacing:    timeline.DefaultSpacing,
		log:        silent,
	}
	for _, option := range options {
		option(p)
	}
	if p.capturer == nil {
		p.capturer = capture.New(
			capture.WithEncoder(wav.Extension, wav.Encoder{BitDepth: signal.BitDepth16}),
			capture.WithEncoder(mp3.Extension, mp3.Encoder{}),
		)
	}
	p.recorder = record.New(p.clock)
	p.scheduler = transport.New(player, transport.WithClock(p.clock), transport.WithLogger(p.log))
	return p
}

// Play plays the note live and records it if recording is active. Notes
// that cannot be played are not recorded.
func (p *Piano) Play(name string) error {
	if err := p.player.Play(name); err != nil {
		return err
	}
	if p.recorder.Trigger(name) {
		p.log.WithField("note", name).Debug("note recorded")
	}
	return nil
}

// StartRecording starts a new session and discards the unfinished one.
// Returns the session id.
func (p *Piano) StartRecording() string {
	id := p.recorder.Start()
	p.log.WithField("session", id).Info("recording started")
	return id
}

// StopRecording ends the session. Its timeline becomes current and is
// stored as a take if it has events.
func (p *Piano) StopRecording(ctx context.Context) (timeline.Timeline, error) {
	session := p.recorder.Session()
	tl, err := p.recorder.Stop()
	if err != nil {
		return timeline.Timeline{}, err
	}
	p.mu.Lock()
	p.timeline = tl
	p.takeID = ""
	p.mu.Unlock()

	l := p.log.WithFields(logrus.Fields{"session": session.ID, "notes": tl.Len()})
	l.Infof("recording stopped after %v", durafmt.Parse(p.clock.Now().Sub(session.Start)).LimitFirstN(2))
	if tl.Empty() || p.takes == nil {
		return tl, nil
	}
	take, err := p.takes.Save(ctx, tl)
	if err != nil {
		l.WithError(err).Warn("take is not saved")
		return tl, nil
	}
	p.mu.Lock()
	p.takeID = take.ID
	p.mu.Unlock()
	return tl, nil
}

// Timeline returns the current timeline.
func (p *Piano) Timeline() timeline.Timeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timeline
}

func (p *Piano) current() (timeline.Timeline, error) {
	tl := p.Timeline()
	if tl.Empty() {
		return timeline.Timeline{}, ErrNoRecording
	}
	return tl, nil
}

// Playback plays the current timeline. Previous playback is stopped. The
// playback isn't bound to ctx cancellation.
func (p *Piano) Playback(ctx context.Context) error {
	tl, err := p.current()
	if err != nil {
		return err
	}
	if err := p.scheduler.Schedule(tl); err != nil {
		return err
	}
	return p.scheduler.Start(context.WithoutCancel(ctx))
}

// StopPlayback cancels notes that are not played yet.
func (p *Piano) StopPlayback() {
	p.scheduler.Stop()
}

// PlaybackDone returns a channel that is closed when playback is done.
func (p *Piano) PlaybackDone() <-chan struct{} {
	return p.scheduler.Done()
}

// Generate continues the current timeline with generated notes. The
// timeline is kept if generation fails.
func (p *Piano) Generate(ctx context.Context) (timeline.Timeline, error) {
	tl, err := p.current()
	if err != nil {
		return timeline.Timeline{}, err
	}
	if p.melody == nil {
		return timeline.Timeline{}, fmt.Errorf("%w: %w", melody.ErrGenerationFailed, ErrNoMelody)
	}
	generated, err := p.melody.Generate(ctx, tl.Notes())
	if err != nil {
		p.log.WithError(err).Warn("generation failed")
		return timeline.Timeline{}, err
	}
	composed := timeline.Compose(tl, generated, p.spacing)
	p.mu.Lock()
	p.timeline = composed
	p.takeID = ""
	p.mu.Unlock()
	p.log.WithField("generated", len(generated)).Info("melody composed")
	return composed, nil
}

// GenerateMusic replaces the current timeline with generated music.
func (p *Piano) GenerateMusic(ctx context.Context) (timeline.Timeline, error) {
	if p.melody == nil {
		return timeline.Timeline{}, fmt.Errorf("%w: %w", melody.ErrGenerationFailed, ErrNoMelody)
	}
	notes, err := p.melody.GenerateMusic(ctx)
	if err != nil {
		p.log.WithError(err).Warn("generation failed")
		return timeline.Timeline{}, err
	}
	tl := melody.Timeline(notes)
	if tl.Empty() {
		return timeline.Timeline{}, fmt.Errorf("%w: %w", melody.ErrGenerationFailed, timeline.ErrEmptyTimeline)
	}
	p.mu.Lock()
	p.timeline = tl
	p.takeID = ""
	p.mu.Unlock()
	p.log.WithField("generated", tl.Len()).Info("music generated")
	return tl, nil
}

// Export renders the current timeline and encodes it with the format. MIDI
// format skips rendering.
func (p *Piano) Export(ctx context.Context, format string) (*capture.File, error) {
	if format == midi.Extension {
		return p.ExportMIDI()
	}
	tl, err := p.current()
	if err != nil {
		return nil, err
	}
	if !p.capturer.Supports(format) {
		return nil, fmt.Errorf("%w: %q", capture.ErrUnknownFormat, format)
	}
	if p.capturer.InFlight() {
		return nil, capture.ErrCaptureInFlight
	}

	start := time.Now()
	audio, err := p.renderer.Render(ctx, tl, p.sampleRate, p.channels)
	if err != nil {
		return nil, err
	}
	job, err := p.capturer.BeginFormat(ctx, audio, format)
	if err != nil {
		return nil, err
	}
	f, err := job.Await()
	if err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{"capture": job.ID, "format": format}).Infof("exported %v of audio to %s in %v",
		durafmt.Parse(audio.Duration()).LimitFirstN(2), humanize.Bytes(uint64(len(f.Data))), time.Since(start).Round(time.Millisecond))
	return f, nil
}

// ExportMIDI encodes the current timeline as MIDI file.
func (p *Piano) ExportMIDI() (*capture.File, error) {
	tl, err := p.current()
	if err != nil {
		return nil, err
	}
	data, err := p.midi.Encode(tl)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", capture.ErrEncode, err)
	}
	return &capture.File{
		Name:        fmt.Sprintf("piano-%s.%s", xid.New().String(), p.midi.Extension()),
		ContentType: p.midi.ContentType(),
		Data:        data,
	}, nil
}

// Takes returns stored takes, newest first.
func (p *Piano) Takes(ctx context.Context) ([]store.Summary, error) {
	if p.takes == nil {
		return nil, ErrNoTakes
	}
	return p.takes.List(ctx)
}

// LoadTake makes the stored take current.
func (p *Piano) LoadTake(ctx context.Context, id string) (timeline.Timeline, error) {
	if p.takes == nil {
		return timeline.Timeline{}, ErrNoTakes
	}
	take, err := p.takes.Get(ctx, id)
	if err != nil {
		return timeline.Timeline{}, err
	}
	p.mu.Lock()
	p.timeline = take.Timeline
	p.takeID = take.ID
	p.mu.Unlock()
	p.log.WithField("take", id).Info("take loaded")
	return take.Timeline, nil
}

// State returns a snapshot of the piano.
func (p *Piano) State() State {
	session := p.recorder.Session()
	p.mu.Lock()
	tl, takeID := p.timeline, p.takeID
	p.mu.Unlock()

	s := State{
		Recording: session.Active,
		SessionID: session.ID,
		Playing:   p.scheduler.Running(),
		Pending:   p.scheduler.Pending(),
		Exporting: p.capturer.InFlight(),
		TakeID:    takeID,
		Events:    tl.Events(),
		CanPlay:   !tl.Empty(),
	}
	if !tl.Empty() {
		s.Duration = tl.End()
	}
	if p.bank != nil {
		s.BankLoaded = p.bank.Loaded()
	}
	if session.Active {
		s.Events = append([]timeline.NoteEvent{}, session.Events...)
	}
	return s
}
