package mp3_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/piano/mock"
	"github.com/pipelined/piano/mp3"
	"github.com/pipelined/piano/pipe"
	"github.com/pipelined/piano/signal"
)

const (
	bufferSize = 1024
	sampleRate = 44100
)

func TestEncoder(t *testing.T) {
	e := mp3.Encoder{}
	assert.Equal(t, "mp3", e.Extension())
	assert.Equal(t, "audio/mpeg", e.ContentType())

	_, err := e.Encode(signal.EmptyFloat64(3, 10), sampleRate)
	assert.Equal(t, mp3.ErrUnsupportedChannels, err)
	_, err = e.Encode(nil, sampleRate)
	assert.Equal(t, mp3.ErrUnsupportedChannels, err)

	tone := mock.Tone("A4", sampleRate, 0.5, 0.5)
	data, err := e.Encode(tone, sampleRate)
	assert.Nil(t, err)
	assert.NotEmpty(t, data)
}

func TestMp3Pipe(t *testing.T) {
	tone := mock.Tone("A4", sampleRate, 1, 0.5)
	stereo := signal.Float64{tone[0], tone[0]}
	data, err := mp3.Encoder{BitRate: 128}.Encode(stereo, sampleRate)
	assert.Nil(t, err)

	path := filepath.Join(t.TempDir(), "A4.mp3")
	assert.Nil(t, os.WriteFile(path, data, 0o644))

	pump := mp3.NewPump(path)
	sink := &mock.Sink{}
	p, err := pipe.New(bufferSize, pipe.WithPump(pump), pipe.WithSinks(sink))
	assert.Nil(t, err)
	assert.Equal(t, sampleRate, p.SampleRate())
	assert.Equal(t, 2, p.NumChannels())
	assert.Nil(t, pipe.Wait(p.Run(context.Background())))

	// decoded stream carries encoder delay and padding.
	_, samples := sink.Count()
	assert.True(t, samples >= stereo.Size())
	assert.True(t, sink.Buffer().Peak() > 0.3)
}

func TestPumpMissingFile(t *testing.T) {
	_, err := pipe.New(bufferSize, pipe.WithPump(mp3.NewPump("missing.mp3")), pipe.WithSinks(&mock.Sink{}))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
