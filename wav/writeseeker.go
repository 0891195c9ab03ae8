package wav

import (
	"errors"
	"io"
)

// WriteSeeker is an in-memory io.WriteSeeker. Wav encoder needs to seek
// back to patch chunk sizes when it's closed.
type WriteSeeker struct {
	buf []byte
	pos int
}

// Write writes p at the current position, growing the buffer if needed.
func (w *WriteSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

// Seek sets the position for the next write.
func (w *WriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(abs)
	return abs, nil
}

// Bytes returns written data.
func (w *WriteSeeker) Bytes() []byte {
	return w.buf
}
