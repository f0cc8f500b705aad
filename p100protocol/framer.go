package p100protocol

import (
	"bytes"
	"strings"
)

// lineFramer splits a byte stream into terminator-delimited lines.
type lineFramer struct {
	buf []byte
	max int
}

func newLineFramer(max int) *lineFramer {
	return &lineFramer{max: max}
}

// push appends data and returns every complete, non-empty line. When the
// unterminated remainder grows past max it is discarded and its length
// returned as dropped.
func (f *lineFramer) push(data []byte) (lines []string, dropped int) {
	f.buf = append(f.buf, data...)
	for {
		i := bytes.IndexByte(f.buf, Terminator[0])
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(f.buf[:i]))
		f.buf = f.buf[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}
	if f.max > 0 && len(f.buf) > f.max {
		dropped = len(f.buf)
		f.buf = nil
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return lines, dropped
}

// pending returns the number of buffered bytes awaiting a terminator.
func (f *lineFramer) pending() int {
	return len(f.buf)
}
