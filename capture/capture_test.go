package capture_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/pipelined/piano/capture"
	"github.com/pipelined/piano/mock"
	"github.com/pipelined/piano/mp3"
	"github.com/pipelined/piano/render"
	"github.com/pipelined/piano/signal"
	"github.com/pipelined/piano/wav"
)

const (
	bufferSize = 512
	sampleRate = 8000
)

var errTest = errors.New("test error")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// encoder records encoded signal. If wait is set, encoding blocks until
// it's closed.
type encoder struct {
	mu      sync.Mutex
	encoded signal.Float64
	wait    chan struct{}
	err     error
}

func (e *encoder) Encode(s signal.Float64, sampleRate int) ([]byte, error) {
	if e.wait != nil {
		<-e.wait
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.encoded = s
	if e.err != nil {
		return nil, e.err
	}
	return []byte("encoded"), nil
}

func (*encoder) Extension() string {
	return "test"
}

func (*encoder) ContentType() string {
	return "application/test"
}

func stereoTone(seconds float64) *render.Audio {
	return stereoToneAt(sampleRate, seconds)
}

func stereoToneAt(rate int, seconds float64) *render.Audio {
	tone := mock.Tone("A4", rate, seconds, 0.5)
	return &render.Audio{
		Signal:     signal.Float64{tone[0], append([]float64(nil), tone[0]...)},
		SampleRate: rate,
	}
}

func TestCapture(t *testing.T) {
	tests := []struct {
		frames int
	}{
		{frames: 10 * bufferSize},
		{frames: 10*bufferSize + 7},
		{frames: 1},
	}
	for _, test := range tests {
		enc := &encoder{}
		c := capture.New(capture.WithEncoder("test", enc), capture.WithBufferSize(bufferSize))
		audio := stereoTone(float64(test.frames) / sampleRate)
		assert.Equal(t, test.frames, audio.Frames())

		job, err := c.Begin(context.Background(), audio)
		assert.Nil(t, err)
		assert.Equal(t, "test", job.Format)
		f, err := job.Await()
		assert.Nil(t, err)
		assert.Equal(t, "piano-"+job.ID+".test", f.Name)
		assert.Equal(t, "application/test", f.ContentType)
		assert.Equal(t, []byte("encoded"), f.Data)
		// blocks arrive in order.
		assert.Equal(t, audio.Signal, enc.encoded)
		assert.False(t, c.InFlight())
	}
}

func TestCaptureInFlight(t *testing.T) {
	enc := &encoder{wait: make(chan struct{})}
	c := capture.New(capture.WithEncoder("test", enc))
	audio := stereoTone(0.5)

	job, err := c.Begin(context.Background(), audio)
	assert.Nil(t, err)
	assert.True(t, c.InFlight())
	_, err = c.Begin(context.Background(), audio)
	assert.Equal(t, capture.ErrCaptureInFlight, err)

	close(enc.wait)
	_, err = job.Await()
	assert.Nil(t, err)
	<-job.Done()

	// next capture is allowed once the previous is completed.
	f, err := c.Export(context.Background(), audio)
	assert.Nil(t, err)
	assert.NotNil(t, f)
}

func TestCaptureErrors(t *testing.T) {
	c := capture.New(capture.WithEncoder("test", &encoder{err: errTest}))
	f, err := c.Export(context.Background(), stereoTone(0.1))
	assert.Nil(t, f)
	assert.True(t, errors.Is(err, capture.ErrEncode))
	assert.True(t, errors.Is(err, errTest))
	assert.False(t, c.InFlight())

	_, err = c.ExportFormat(context.Background(), stereoTone(0.1), "flac")
	assert.True(t, errors.Is(err, capture.ErrUnknownFormat))

	_, err = c.Export(context.Background(), &render.Audio{SampleRate: sampleRate})
	assert.Equal(t, capture.ErrNoAudio, err)
	_, err = c.Export(context.Background(), nil)
	assert.Equal(t, capture.ErrNoAudio, err)
}

func TestCaptureCancel(t *testing.T) {
	enc := &encoder{}
	c := capture.New(capture.WithEncoder("test", enc))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f, err := c.Export(ctx, stereoTone(1))
	assert.Nil(t, f)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Nil(t, enc.encoded)
	assert.False(t, c.InFlight())
}

func TestCaptureFormats(t *testing.T) {
	c := capture.New(
		capture.WithEncoder(wav.Extension, wav.Encoder{BitDepth: signal.BitDepth16}),
		capture.WithEncoder(mp3.Extension, mp3.Encoder{}),
	)
	assert.True(t, c.Supports("wav"))
	assert.True(t, c.Supports("mp3"))
	assert.False(t, c.Supports("mid"))
	audio := stereoToneAt(44100, 0.5)

	f, err := c.Export(context.Background(), audio)
	assert.Nil(t, err)
	assert.True(t, strings.HasSuffix(f.Name, ".wav"))
	assert.Equal(t, wav.ContentType, f.ContentType)
	assert.Equal(t, 44+audio.Frames()*2*2, len(f.Data))

	f, err = c.ExportFormat(context.Background(), audio, mp3.Extension)
	assert.Nil(t, err)
	assert.True(t, strings.HasSuffix(f.Name, ".mp3"))
	assert.Equal(t, mp3.ContentType, f.ContentType)
	assert.NotEmpty(t, f.Data)
}
