package mp3

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/viert/lame"

	"github.com/pipelined/piano/signal"
)

const (
	// Extension is the file extension of mp3 files.
	Extension = "mp3"
	// ContentType is the MIME type of mp3 files.
	ContentType = "audio/mpeg"

	// DefaultBitRate is used when encoder bit rate is not set.
	DefaultBitRate = 192
	// DefaultQuality is used when encoder quality is not set.
	DefaultQuality = 2
)

// ErrUnsupportedChannels is returned when signal is neither mono nor stereo.
var ErrUnsupportedChannels = errors.New("mp3 supports only mono and stereo")

// Encoder encodes signals into mp3 data with lame.
type Encoder struct {
	BitRate int
	Quality int
}

// Encode returns mp3 file contents of the signal.
func (e Encoder) Encode(s signal.Float64, sampleRate int) ([]byte, error) {
	numChannels := s.NumChannels()
	if numChannels != 1 && numChannels != 2 {
		return nil, ErrUnsupportedChannels
	}
	bitRate, quality := e.BitRate, e.Quality
	if bitRate == 0 {
		bitRate = DefaultBitRate
	}
	if quality == 0 {
		quality = DefaultQuality
	}

	out := new(bytes.Buffer)
	wr := lame.NewWriter(out)
	wr.Encoder.SetBitrate(bitRate)
	wr.Encoder.SetQuality(quality)
	wr.Encoder.SetNumChannels(numChannels)
	wr.Encoder.SetInSamplerate(sampleRate)
	if numChannels == 1 {
		wr.Encoder.SetMode(lame.MONO)
	} else {
		wr.Encoder.SetMode(lame.JOINT_STEREO)
	}
	wr.Encoder.SetVBR(lame.VBR_RH)
	wr.Encoder.InitParams()

	ints := s.AsInterInt(signal.BitDepth16)
	pcm := make([]int16, len(ints))
	for i := range ints {
		pcm[i] = int16(ints[i])
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, err
	}
	if _, err := wr.Write(buf.Bytes()); err != nil {
		return nil, err
	}
	if err := wr.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Extension returns mp3 extension.
func (Encoder) Extension() string {
	return Extension
}

// ContentType returns mp3 MIME type.
func (Encoder) ContentType() string {
	return ContentType
}
