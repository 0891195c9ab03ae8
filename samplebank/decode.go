package samplebank

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/pipelined/piano/mp3"
	"github.com/pipelined/piano/pipe"
	"github.com/pipelined/piano/signal"
	"github.com/pipelined/piano/wav"
)

// decodeBufferSize is the block size used to read sample files.
const decodeBufferSize = 4096

// collector accumulates all buffers of a pipe.
type collector struct {
	sampleRate int
	buffer     signal.Float64
}

// Sink implements pipe.Sink.
func (c *collector) Sink(pipeID string, sampleRate, numChannels, bufferSize int) (func(signal.Float64) error, error) {
	c.sampleRate = sampleRate
	c.buffer = signal.EmptyFloat64(numChannels, 0)
	return func(b signal.Float64) error {
		c.buffer = c.buffer.Append(b)
		return nil
	}, nil
}

// pumpFor returns the decoder for the file extension.
func pumpFor(path string) (pipe.Pump, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case "." + wav.Extension:
		return wav.NewPump(path), nil
	case "." + mp3.Extension:
		return mp3.NewPump(path), nil
	}
	return nil, fmt.Errorf("unsupported sample format: %v", path)
}

// decode reads the whole file and converts it to sampleRate.
func decode(ctx context.Context, path string, sampleRate int) (signal.Float64, error) {
	pump, err := pumpFor(path)
	if err != nil {
		return nil, err
	}
	c := &collector{}
	p, err := pipe.New(
		decodeBufferSize,
		pipe.WithName(filepath.Base(path)),
		pipe.WithPump(pump),
		pipe.WithSinks(c),
	)
	if err != nil {
		return nil, fmt.Errorf("decode %v: %w", path, err)
	}
	if err := pipe.Wait(p.Run(ctx)); err != nil {
		return nil, fmt.Errorf("decode %v: %w", path, err)
	}
	return resample(c.buffer, c.sampleRate, sampleRate), nil
}

// resample converts every channel from srcRate to dstRate with a
// windowed-sinc (Lanczos) filter.
func resample(s signal.Float64, srcRate, dstRate int) signal.Float64 {
	if srcRate == dstRate || s.Size() == 0 {
		return s
	}
	result := make(signal.Float64, s.NumChannels())
	for c := range s {
		result[c] = resampleSinc(s[c], srcRate, dstRate)
	}
	return result
}

func resampleSinc(src []float64, srcRate, dstRate int) []float64 {
	n := int(math.Round(float64(len(src)) * float64(dstRate) / float64(srcRate)))
	dst := make([]float64, n)
	ratio := float64(srcRate) / float64(dstRate)
	const a = 3 // filter width
	for i := 0; i < n; i++ {
		pos := float64(i) * ratio
		idx := int(math.Floor(pos))
		var sum, wsum float64
		for j := idx - a + 1; j <= idx+a; j++ {
			if j < 0 || j >= len(src) {
				continue
			}
			x := float64(j) - pos
			w := sinc(x) * sinc(x/float64(a))
			sum += src[j] * w
			wsum += w
		}
		if wsum != 0 {
			sum /= wsum
		}
		dst[i] = sum
	}
	return dst
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	x *= math.Pi
	return math.Sin(x) / x
}

// repitch plays the sample back at ratio speed with linear interpolation.
func repitch(s signal.Float64, ratio float64) signal.Float64 {
	if ratio == 1 || s.Size() == 0 {
		return s
	}
	n := int(float64(s.Size()) / ratio)
	result := signal.EmptyFloat64(s.NumChannels(), n)
	for c := range s {
		src := s[c]
		for i := range result[c] {
			pos := float64(i) * ratio
			j := int(pos)
			frac := pos - float64(j)
			v := src[j]
			if j+1 < len(src) {
				v += (src[j+1] - v) * frac
			}
			result[c][i] = v
		}
	}
	return result
}
