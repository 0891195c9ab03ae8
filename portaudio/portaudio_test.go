//go:build portaudio

package portaudio_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/piano/mock"
	"github.com/pipelined/piano/pipe"
	"github.com/pipelined/piano/portaudio"
	"github.com/pipelined/piano/signal"
	"github.com/pipelined/piano/wav"
)

const bufferSize = 512

func TestSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A4.wav")
	assert.Nil(t, wav.WriteFile(path, mock.Tone("A4", 44100, 0.5, 0.3), 44100, signal.BitDepth16))

	playback, err := pipe.New(
		bufferSize,
		pipe.WithPump(wav.NewPump(path)),
		pipe.WithSinks(&portaudio.Sink{}),
	)
	assert.Nil(t, err)

	err = pipe.Wait(playback.Run(context.Background()))
	assert.Nil(t, err)
}
