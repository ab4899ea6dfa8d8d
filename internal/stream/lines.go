package stream

import (
	"bytes"
	"strings"
)

// EventStreamPrefix is the framing prefix used by event-stream style
// endpoints in front of every JSON payload.
const EventStreamPrefix = "data: "

// LineAssembler splits chunked input into complete lines. Bytes after the
// last newline of a chunk are held back and joined with the next chunk,
// so a delimiter may fall anywhere relative to chunk boundaries. It works
// on raw bytes, which keeps multi-byte UTF-8 sequences intact when they
// straddle two chunks.
//
// The zero value is ready to use.
type LineAssembler struct {
	buf []byte
}

// Feed consumes one chunk and returns the complete, non-blank lines it
// terminates, in order. Lines are trimmed of surrounding whitespace
// (including a trailing carriage return).
func (a *LineAssembler) Feed(data []byte) []string {
	var lines []string
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			a.buf = append(a.buf, data...)
			break
		}

		raw := data[:i]
		if len(a.buf) > 0 {
			a.buf = append(a.buf, raw...)
			raw = a.buf
		}
		if line, ok := cleanLine(raw); ok {
			lines = append(lines, line)
		}
		a.buf = a.buf[:0]
		data = data[i+1:]
	}
	return lines
}

// Flush returns the leftover partial line, if it is non-blank, and
// resets the buffer. Call it once the final chunk has been fed.
func (a *LineAssembler) Flush() (string, bool) {
	line, ok := cleanLine(a.buf)
	a.buf = nil
	return line, ok
}

// Buffered reports the number of bytes waiting for a delimiter.
func (a *LineAssembler) Buffered() int { return len(a.buf) }

func cleanLine(raw []byte) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

// Transformer rewrites a line before it is decoded. Transformers must
// not fail; a line they do not recognise is returned unchanged.
type Transformer func(line string) string

// Identity returns line unchanged.
func Identity(line string) string { return line }

// TrimPrefix returns a Transformer that removes the literal prefix from
// lines that start with it.
func TrimPrefix(prefix string) Transformer {
	return func(line string) string {
		return strings.TrimPrefix(line, prefix)
	}
}

// EventStream strips [EventStreamPrefix].
var EventStream = TrimPrefix(EventStreamPrefix)
