package irc

import (
	"bufio"
	"io"
	"strings"
)

// LineReader splits an inbound byte stream into lines.
type LineReader struct {
	br  *bufio.Reader
	eof bool
}

// NewLineReader returns a LineReader that buffers r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{br: bufio.NewReader(r)}
}

// ReadLine returns the next line with its "\n" or "\r\n" terminator
// removed.  Other whitespace is left alone.  A final line that ends
// without a terminator is still returned, minus a trailing "\r"; the
// call after it returns
// [io.EOF].  Any other read error is returned as is and the partial
// line is discarded.
func (lr *LineReader) ReadLine() (string, error) {
	if lr.eof {
		return "", io.EOF
	}

	s, err := lr.br.ReadString('\n')
	switch {
	case err == nil:
		s = strings.TrimSuffix(s, "\n")
		return strings.TrimSuffix(s, "\r"), nil
	case err == io.EOF:
		lr.eof = true
		if s == "" {
			return "", io.EOF
		}
		return strings.TrimSuffix(s, "\r"), nil
	default:
		return "", err
	}
}
