package transport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/pipelined/piano/clock"
	"github.com/pipelined/piano/metric"
	"github.com/pipelined/piano/mock"
	"github.com/pipelined/piano/timeline"
	"github.com/pipelined/piano/transport"
)

const timeout = 2 * time.Second

var errTest = errors.New("test error")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScheduler(t *testing.T) {
	clk := mock.NewClock()
	player := &mock.Player{Clock: clk}
	s := transport.New(player, transport.WithClock(clk))

	tl := timeline.New(
		timeline.NoteEvent{Note: "C4", Time: 1.0},
		timeline.NoteEvent{Note: "D4", Time: 0},
		timeline.NoteEvent{Note: "E4", Time: 0.5},
		timeline.NoteEvent{Note: "F4", Time: 0.5},
	)
	assert.Nil(t, s.Schedule(tl))
	assert.Equal(t, 4, s.Pending())
	assert.Nil(t, s.Start(context.Background()))

	assert.True(t, player.WaitFor(1, timeout))
	clk.BlockUntil(1)
	clk.Advance(400 * time.Millisecond)
	// nothing fires early.
	clk.BlockUntil(1)
	assert.Equal(t, 1, len(player.Played()))

	clk.Advance(100 * time.Millisecond)
	assert.True(t, player.WaitFor(3, timeout))
	clk.BlockUntil(1)
	clk.Advance(500 * time.Millisecond)
	<-s.Done()

	assert.Equal(t, []string{"D4", "E4", "F4", "C4"}, player.Notes())
	assert.Equal(t, 0, s.Pending())
	assert.False(t, s.Running())
	for i, p := range player.Played() {
		at := p.At.Sub(mock.Epoch).Seconds()
		assert.True(t, at >= tl.Sorted()[i].Time, "note %v fired early", p.Note)
	}

	// every callback fires once.
	assert.Equal(t, transport.ErrNothingScheduled, s.Start(context.Background()))
}

func TestSchedulerReset(t *testing.T) {
	player := &mock.Player{}
	s := transport.New(player, transport.WithClock(mock.NewClock()))

	assert.Nil(t, s.Schedule(timeline.New(
		timeline.NoteEvent{Note: "A4", Time: 0},
		timeline.NoteEvent{Note: "B4", Time: 0},
		timeline.NoteEvent{Note: "C5", Time: 0},
	)))
	assert.Nil(t, s.Schedule(timeline.New(
		timeline.NoteEvent{Note: "E4", Time: 0},
		timeline.NoteEvent{Note: "G4", Time: 0},
	)))
	assert.Equal(t, 2, s.Pending())

	assert.Nil(t, s.Start(context.Background()))
	<-s.Done()
	assert.Equal(t, []string{"E4", "G4"}, player.Notes())
}

func TestSchedulerStop(t *testing.T) {
	clk := mock.NewClock()
	player := &mock.Player{}
	s := transport.New(player, transport.WithClock(clk))

	assert.Nil(t, s.Schedule(timeline.New(
		timeline.NoteEvent{Note: "C4", Time: 0},
		timeline.NoteEvent{Note: "D4", Time: 1},
		timeline.NoteEvent{Note: "E4", Time: 2},
	)))
	assert.Nil(t, s.Start(context.Background()))
	assert.Equal(t, transport.ErrRunning, s.Start(context.Background()))
	assert.True(t, player.WaitFor(1, timeout))
	clk.BlockUntil(1)
	assert.True(t, s.Running())

	s.Stop()
	<-s.Done()
	assert.Equal(t, 0, s.Pending())
	clk.Advance(5 * time.Second)
	assert.Equal(t, []string{"C4"}, player.Notes())
	assert.Equal(t, transport.ErrNothingScheduled, s.Start(context.Background()))
}

func TestSchedulerCancel(t *testing.T) {
	clk := mock.NewClock()
	player := &mock.Player{}
	s := transport.New(player, transport.WithClock(clk))

	assert.Nil(t, s.Schedule(timeline.New(
		timeline.NoteEvent{Note: "C4", Time: 0.5},
		timeline.NoteEvent{Note: "D4", Time: 1},
	)))
	ctx, cancel := context.WithCancel(context.Background())
	assert.Nil(t, s.Start(ctx))
	clk.BlockUntil(1)
	cancel()
	<-s.Done()
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, player.Notes())
}

func TestSchedulerErrors(t *testing.T) {
	s := transport.New(&mock.Player{})
	assert.Equal(t, transport.ErrNothingScheduled, s.Start(context.Background()))
	assert.Equal(t, timeline.ErrEmptyTimeline, s.Schedule(timeline.New()))
	// stop without run is a no-op.
	s.Stop()
	<-s.Done()
}

func TestPlayerError(t *testing.T) {
	player := &mock.Player{ErrorOn: map[string]error{"C4": errTest}}
	s := transport.New(player, transport.WithClock(mock.NewClock()))
	failed := metric.Counter(s, transport.FailedCounter).Value()
	played := metric.Counter(s, transport.PlayedCounter).Value()

	assert.Nil(t, s.Schedule(timeline.New(
		timeline.NoteEvent{Note: "C4", Time: 0},
		timeline.NoteEvent{Note: "D4", Time: 0},
	)))
	assert.Nil(t, s.Start(context.Background()))
	<-s.Done()

	// failed note doesn't stop the run.
	assert.Equal(t, []string{"C4", "D4"}, player.Notes())
	assert.Equal(t, failed+1, metric.Counter(s, transport.FailedCounter).Value())
	assert.Equal(t, played+1, metric.Counter(s, transport.PlayedCounter).Value())
}

func TestRealClock(t *testing.T) {
	player := &mock.Player{Clock: clock.Real{}}
	s := transport.New(player)
	assert.Nil(t, s.Schedule(timeline.New(
		timeline.NoteEvent{Note: "C4", Time: 0.02},
		timeline.NoteEvent{Note: "D4", Time: 0},
	)))
	start := time.Now()
	assert.Nil(t, s.Start(context.Background()))
	<-s.Done()
	played := player.Played()
	assert.Equal(t, []string{"D4", "C4"}, player.Notes())
	assert.True(t, played[1].At.Sub(start) >= 20*time.Millisecond)
}
