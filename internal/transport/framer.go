package transport

import (
	"bytes"
	"strings"
)

// Framer splits an arbitrarily chunked byte stream into lines.  Bytes after
// the last '\n' stay buffered until a later Feed completes the line.
type Framer struct {
	buf     []byte
	maxLine int
}

// NewFramer returns a Framer.  maxLine <= 0 selects DefaultMaxLine.
func NewFramer(maxLine int) *Framer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &Framer{maxLine: maxLine}
}

// Feed appends p and returns every line it completed, without terminators.
// ErrLineTooLong is returned once the unterminated tail exceeds the limit;
// the buffered tail is discarded in that case.
func (f *Framer) Feed(p []byte) ([]string, error) {
	f.buf = append(f.buf, p...)

	var lines []string
	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(f.buf[:i]), "\r")
		lines = append(lines, line)
		f.buf = f.buf[i+1:]
	}
	if len(f.buf) > f.maxLine {
		f.buf = nil
		return lines, ErrLineTooLong
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines, nil
}

// Pending reports how many bytes of an incomplete line are buffered.
func (f *Framer) Pending() int { return len(f.buf) }
