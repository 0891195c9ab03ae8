package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/piano/timeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Memory)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
	return s
}

func TestSaveGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	tl := timeline.New(
		timeline.NoteEvent{Note: "E4", Time: 0.5},
		timeline.NoteEvent{Note: "C4", Time: 0},
		timeline.NoteEvent{Note: "G4", Time: 1.25},
	)

	take, err := s.Save(ctx, tl)
	assert.Nil(t, err)
	assert.NotEmpty(t, take.ID)

	got, err := s.Get(ctx, take.ID)
	assert.Nil(t, err)
	assert.Equal(t, take.ID, got.ID)
	assert.Equal(t, take.CreatedAt, got.CreatedAt)
	// insertion order is kept.
	assert.Equal(t, tl.Events(), got.Timeline.Events())

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrTakeNotFound))

	_, err = s.Save(ctx, timeline.New())
	assert.Equal(t, timeline.ErrEmptyTimeline, err)
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	summaries, err := s.List(ctx)
	assert.Nil(t, err)
	assert.Empty(t, summaries)

	first, err := s.Save(ctx, timeline.New(timeline.NoteEvent{Note: "C4", Time: 2}))
	assert.Nil(t, err)
	second, err := s.Save(ctx, timeline.New(
		timeline.NoteEvent{Note: "C4", Time: 0},
		timeline.NoteEvent{Note: "D4", Time: 0.5},
	))
	assert.Nil(t, err)

	summaries, err = s.List(ctx)
	assert.Nil(t, err)
	assert.Equal(t, []Summary{
		{ID: second.ID, CreatedAt: second.CreatedAt, Notes: 2, Duration: 0.5},
		{ID: first.ID, CreatedAt: first.CreatedAt, Notes: 1, Duration: 2},
	}, summaries)

	assert.Nil(t, s.Delete(ctx, first.ID))
	assert.True(t, errors.Is(s.Delete(ctx, first.ID), ErrTakeNotFound))
	summaries, err = s.List(ctx)
	assert.Nil(t, err)
	assert.Equal(t, 1, len(summaries))
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "takes.sqlite")
	s, err := Open(path)
	assert.Nil(t, err)
	take, err := s.Save(context.Background(), timeline.New(timeline.NoteEvent{Note: "A4", Time: 1}))
	assert.Nil(t, err)
	assert.Nil(t, s.Close())

	s, err = Open(path)
	assert.Nil(t, err)
	defer s.Close()
	got, err := s.Get(context.Background(), take.ID)
	assert.Nil(t, err)
	assert.Equal(t, []string{"A4"}, got.Timeline.Notes())
}
