package signal_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/piano/signal"
)

func TestInterIntsAsFloat64(t *testing.T) {
	tests := []struct {
		ints        []int
		numChannels int
		bitDepth    signal.BitDepth
		expected    [][]float64
	}{
		{
			ints:        []int{1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2},
			numChannels: 2,
			expected: [][]float64{
				{1, 1, 1, 1, 1, 1, 1, 1},
				{2, 2, 2, 2, 2, 2, 2, 2},
			},
		},
		{
			ints:        []int{1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1, 2, 1},
			numChannels: 2,
			expected: [][]float64{
				{1, 1, 1, 1, 1, 1, 1, 1},
				{2, 2, 2, 2, 2, 2, 2, 0},
			},
		},
		{
			ints:        []int{math.MaxInt16, -math.MaxInt16},
			numChannels: 2,
			bitDepth:    signal.BitDepth16,
			expected: [][]float64{
				{1},
				{-1},
			},
		},
		{
			ints:     nil,
			expected: nil,
		},
		{
			ints:     []int{1, 2, 3},
			expected: nil,
		},
	}

	for _, test := range tests {
		ints := signal.InterInt{
			Data:        test.ints,
			NumChannels: test.numChannels,
			BitDepth:    test.bitDepth,
		}
		result := ints.AsFloat64()
		assert.Equal(t, len(test.expected), len(result))
		for i := range test.expected {
			for j, val := range test.expected[i] {
				assert.Equal(t, val, result[i][j])
			}
		}
	}
}

func TestFloat64AsInterInt(t *testing.T) {
	tests := []struct {
		floats   [][]float64
		bitDepth signal.BitDepth
		expected []int
	}{
		{
			floats: [][]float64{
				{1, 1, 1, 1},
				{-1, -1, -1, -1},
			},
			expected: []int{1, -1, 1, -1, 1, -1, 1, -1},
		},
		{
			floats: [][]float64{
				{0.5},
				{2},
			},
			bitDepth: signal.BitDepth16,
			expected: []int{int(0.5 * (math.MaxInt16 - 1)), math.MaxInt16 - 1},
		},
		{
			floats:   nil,
			expected: nil,
		},
		{
			floats:   [][]float64{{}, {}},
			expected: []int{},
		},
	}

	for _, test := range tests {
		floats := signal.Float64(test.floats)
		ints := floats.AsInterInt(test.bitDepth)
		assert.Equal(t, len(test.expected), len(ints))
		for i := range test.expected {
			assert.Equal(t, test.expected[i], ints[i])
		}
	}
}

func TestSlice(t *testing.T) {
	buf := signal.Float64{
		{0, 1, 2, 3, 4},
		{5, 6, 7, 8, 9},
	}
	tests := []struct {
		start    int
		len      int
		expected signal.Float64
	}{
		{start: 0, len: 2, expected: signal.Float64{{0, 1}, {5, 6}}},
		{start: 3, len: 5, expected: signal.Float64{{3, 4}, {8, 9}}},
		{start: 5, len: 1, expected: nil},
		{start: -1, len: 1, expected: nil},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, buf.Slice(test.start, test.len))
	}

	// slices are copies.
	s := buf.Slice(0, 1)
	s[0][0] = 100
	assert.Equal(t, float64(0), buf[0][0])
}

func TestAppend(t *testing.T) {
	var buf signal.Float64
	buf = buf.Append(signal.Float64{{1, 2}, {3, 4}})
	buf = buf.Append(signal.Float64{{5}, {6}})
	assert.Equal(t, signal.Float64{{1, 2, 5}, {3, 4, 6}}, buf)
	assert.Equal(t, 2, buf.NumChannels())
	assert.Equal(t, 3, buf.Size())
}

func TestMixAt(t *testing.T) {
	tests := []struct {
		source   signal.Float64
		pos      int
		mixed    int
		expected signal.Float64
	}{
		{
			source:   signal.Float64{{1, 1}},
			pos:      1,
			mixed:    2,
			expected: signal.Float64{{0, 1, 1, 0}, {0, 1, 1, 0}},
		},
		{
			source:   signal.Float64{{1, 2, 3}, {4, 5, 6}},
			pos:      2,
			mixed:    2,
			expected: signal.Float64{{0, 0, 1, 2}, {0, 0, 4, 5}},
		},
		{
			source:   signal.Float64{{1}},
			pos:      4,
			mixed:    0,
			expected: signal.Float64{{0, 0, 0, 0}, {0, 0, 0, 0}},
		},
	}
	for _, test := range tests {
		dst := signal.EmptyFloat64(2, 4)
		assert.Equal(t, test.mixed, dst.MixAt(test.source, test.pos))
		assert.Equal(t, test.expected, dst)
	}
}

func TestFramesOf(t *testing.T) {
	assert.Equal(t, 44100, signal.FramesOf(44100, 1))
	assert.Equal(t, 11025, signal.FramesOf(44100, 0.25))
	assert.Equal(t, 0, signal.FramesOf(44100, -1))
	assert.Equal(t, time.Second, signal.DurationOf(44100, 44100))
}

func TestPeak(t *testing.T) {
	assert.Equal(t, 0.75, signal.Float64{{0.1, -0.75}, {0.5, 0}}.Peak())
	assert.Equal(t, float64(0), signal.Float64(nil).Peak())
}
