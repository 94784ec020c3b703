package rbn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

const (
	// DefaultMaxLineLength caps a single feed line (terminator excluded).
	DefaultMaxLineLength = 100

	previewBytes  = 64
	readChunkSize = 4096
	maxEmptyReads = 100
)

// ErrStreamEnded reports that the feed closed or went idle past the read
// deadline. Both are treated as a clean end of the connection.
var ErrStreamEnded = errors.New("stream ended")

// ErrLineTooLong carries a preview and length (bytes before the LF) when a
// line exceeds the cap. The whole line has already been discarded when this
// is returned.
type ErrLineTooLong struct {
	Length  int
	Preview string
}

func (e *ErrLineTooLong) Error() string {
	return fmt.Sprintf("line too long (%d bytes)", e.Length)
}

// LineFramer turns a byte stream into newline-terminated lines. It never
// reads ahead of the line being returned: buffered bytes are framed first
// and the source is read only when they run out.
type LineFramer struct {
	r        io.Reader
	maxLine  int
	buf      []byte // current partial line
	readBuf  []byte
	pending  []byte // read but not yet framed
	dropping bool
	dropped  int
	preview  []byte
	err      error
}

// NewLineFramer wraps r. A non-positive maxLine selects DefaultMaxLineLength.
func NewLineFramer(r io.Reader, maxLine int) *LineFramer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &LineFramer{
		r:       r,
		maxLine: maxLine,
		buf:     make([]byte, 0, maxLine),
		readBuf: make([]byte, readChunkSize),
	}
}

// Next returns the next complete line without its LF (and CR, if present).
//
// Errors:
//   - *ErrLineTooLong: one overlong line was discarded; call Next again.
//   - ErrStreamEnded (wrapped): EOF or read timeout. A partial trailing line
//     is dropped. Sticky.
//   - anything else: transport failure. Sticky.
func (f *LineFramer) Next() (string, error) {
	empty := 0
	for {
		if line, ready, err := f.frame(); ready {
			return line, err
		}
		if f.err != nil {
			return "", f.err
		}
		n, err := f.r.Read(f.readBuf)
		f.pending = f.readBuf[:n]
		if err != nil {
			f.err = classifyReadError(err)
			continue
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				f.err = io.ErrNoProgress
			}
			continue
		}
		empty = 0
	}
}

// frame consumes pending bytes until a line, an overflow report, or the end
// of pending data.
func (f *LineFramer) frame() (string, bool, error) {
	if len(f.pending) == 0 {
		return "", false, nil
	}
	idx := bytes.IndexByte(f.pending, '\n')
	if idx < 0 {
		f.accumulate(f.pending)
		f.pending = nil
		return "", false, nil
	}
	chunk := f.pending[:idx]
	f.pending = f.pending[idx+1:]

	if f.dropping {
		f.dropped += len(chunk)
		return "", true, f.finishDrop()
	}
	f.buf = append(f.buf, chunk...)
	line := trimCR(f.buf)
	if len(line) > f.maxLine {
		f.startDrop()
		return "", true, f.finishDrop()
	}
	out := string(line)
	f.buf = f.buf[:0]
	return out, true, nil
}

// accumulate appends partial-line bytes, switching to drop mode once the
// line can no longer fit.
func (f *LineFramer) accumulate(b []byte) {
	if f.dropping {
		f.dropped += len(b)
		return
	}
	f.buf = append(f.buf, b...)
	// One trailing CR may still belong to the terminator.
	if len(trimCR(f.buf)) > f.maxLine {
		f.startDrop()
	}
}

func (f *LineFramer) startDrop() {
	f.dropping = true
	f.dropped = len(f.buf)
	n := len(f.buf)
	if n > previewBytes {
		n = previewBytes
	}
	f.preview = append(f.preview[:0], f.buf[:n]...)
	f.buf = f.buf[:0]
}

func (f *LineFramer) finishDrop() error {
	err := &ErrLineTooLong{Length: f.dropped, Preview: string(f.preview)}
	f.dropping = false
	f.dropped = 0
	f.preview = f.preview[:0]
	return err
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}

func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: closed by peer", ErrStreamEnded)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: idle timeout", ErrStreamEnded)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: idle timeout", ErrStreamEnded)
	}
	return fmt.Errorf("read feed: %w", err)
}
