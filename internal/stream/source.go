package stream

import (
	"context"
	"errors"
	"io"
)

// DefaultChunkSize is the read buffer used by [ReaderSource] when no size
// is given. It matches the scanner buffer the HTTP clients have
// historically used for line-oriented responses.
const DefaultChunkSize = 64 * 1024

// Chunk is one piece of a response body. Final marks the last chunk; a
// final chunk may carry data or be empty.
type Chunk struct {
	Data  []byte
	Final bool
}

// ChunkSource supplies the chunks of one response body in send order.
// Next blocks until a chunk is available. Implementations that hold a
// connection should also implement [io.Closer]; the driver closes the
// source when the session reaches a terminal state.
type ChunkSource interface {
	Next(ctx context.Context) (Chunk, error)
}

// ReaderSource adapts an [io.Reader] (typically an HTTP response body)
// into a ChunkSource. Each Read becomes one chunk, and reaching EOF
// produces a final chunk. Chunk data is only valid until the next call
// to Next.
type ReaderSource struct {
	r    io.Reader
	buf  []byte
	done bool
}

// NewReaderSource wraps r. A size of zero or less selects
// [DefaultChunkSize].
func NewReaderSource(r io.Reader, size int) *ReaderSource {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &ReaderSource{r: r, buf: make([]byte, size)}
}

// Next reads the next chunk. Cancellation is checked before every read;
// blocking readers that honor ctx on their own (HTTP bodies bound to a
// request context) are interrupted by the transport.
func (s *ReaderSource) Next(ctx context.Context) (Chunk, error) {
	if s.done {
		return Chunk{Final: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}

	n, err := s.r.Read(s.buf)
	if errors.Is(err, io.EOF) {
		s.done = true
		return Chunk{Data: s.buf[:n], Final: true}, nil
	}
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Data: s.buf[:n]}, nil
}

// Close closes the underlying reader when it is an [io.Closer].
func (s *ReaderSource) Close() error {
	s.done = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SliceSource replays a fixed list of chunks. When the list runs out
// without a final-marked chunk, an empty final chunk is reported.
type SliceSource struct {
	chunks []Chunk
	pulled int
	closed bool
}

// NewSliceSource returns a source over chunks.
func NewSliceSource(chunks ...Chunk) *SliceSource {
	return &SliceSource{chunks: chunks}
}

// Next returns the next scripted chunk.
func (s *SliceSource) Next(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	if s.pulled >= len(s.chunks) {
		return Chunk{Final: true}, nil
	}
	c := s.chunks[s.pulled]
	s.pulled++
	return c, nil
}

// Pulled reports how many scripted chunks have been handed out.
func (s *SliceSource) Pulled() int { return s.pulled }

// Closed reports whether Close has been called.
func (s *SliceSource) Closed() bool { return s.closed }

// Close marks the source closed.
func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}
