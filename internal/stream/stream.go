// Package stream decodes HTTP response bodies into lazily produced
// sequences of typed records.
//
// A body is either a single JSON value or a sequence of newline
// delimited records delivered in arbitrary chunks. The [Stream] driver
// pulls chunks only when the caller asks for the next record, carries
// partial lines across chunk boundaries, skips lines that fail to decode,
// and ends early when a caller supplied stop predicate fires. Normal
// termination is reported through [Outcome]; only transport failures
// surface as errors.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
)

// levelTrace matches the wire-level log level used across the module.
const levelTrace = slog.Level(-8)

// DefaultDrainLimit bounds how much of a non-success body is read for
// diagnostic logging.
const DefaultDrainLimit = 64 * 1024

// maxLoggedLine bounds the line excerpt attached to decode failures.
const maxLoggedLine = 512

// ErrClosed is returned by Next after the caller closed the stream
// before it reached a terminal state.
var ErrClosed = errors.New("stream: closed")

// Outcome is the terminal state of one decode session.
type Outcome int

const (
	// Pending means the session has not reached a terminal state yet.
	Pending Outcome = iota
	// Completed means the final chunk was consumed and the stop
	// predicate never fired.
	Completed
	// StoppedEarly means the stop predicate fired, or the consumer
	// closed the stream before the end.
	StoppedEarly
	// Failed means the transport failed or the context was cancelled.
	Failed
	// Empty means a non-success status code or a body with no bytes.
	Empty
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case StoppedEarly:
		return "stopped_early"
	case Failed:
		return "failed"
	case Empty:
		return "empty"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Stats counts what one session consumed and produced.
type Stats struct {
	Chunks  int
	Bytes   int64
	Lines   int
	Records int
	Skipped int
}

// Response is the slice of an HTTP response the driver needs. When
// Chunked is false the whole body is in Body and decodes as exactly one
// record; otherwise Chunks supplies the body.
type Response struct {
	StatusCode int
	Chunked    bool
	Body       string
	Chunks     ChunkSource
}

// Options configure one session. Only Decode-related fields are
// record-type specific; every field is optional.
type Options[T any] struct {
	// Transform rewrites each line before decoding. Defaults to Identity.
	Transform Transformer

	// Decode parses a transformed line. Defaults to JSON[T].
	Decode DecodeFunc[T]

	// Stop is evaluated after each decoded record. Returning true ends
	// the sequence after that record without pulling further chunks.
	Stop func(T) bool

	// EndMarker, when non-empty, is a transformed line that signals the
	// protocol-level end of the stream (for example "[DONE]"). Seeing it
	// completes the session.
	EndMarker string

	// Logger receives diagnostic output. Defaults to a discarding logger.
	Logger *slog.Logger

	// DrainLimit bounds the bytes of a non-success body read for
	// logging. Defaults to DefaultDrainLimit.
	DrainLimit int64

	// OnFinish is called once when the session reaches a terminal state.
	OnFinish func(Outcome, Stats, error)
}

type state int

const (
	stateIdle state = iota
	stateStreaming
	stateDraining
	stateDone
)

// Stream is a single decode session over one response body. It is not
// safe for concurrent use; one goroutine pulls records with Next or
// ranges over All.
type Stream[T any] struct {
	ctx  context.Context
	resp Response
	opts Options[T]
	log  *slog.Logger

	asm     LineAssembler
	pending []string

	state   state
	outcome Outcome
	err     error
	stats   Stats
	closed  bool
}

// New creates a session over resp. No I/O happens until the first call
// to Next. ctx bounds every chunk pull.
func New[T any](ctx context.Context, resp Response, opts Options[T]) *Stream[T] {
	if opts.Transform == nil {
		opts.Transform = Identity
	}
	if opts.Decode == nil {
		opts.Decode = JSON[T]
	}
	if opts.DrainLimit <= 0 {
		opts.DrainLimit = DefaultDrainLimit
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Stream[T]{
		ctx:  ctx,
		resp: resp,
		opts: opts,
		log:  log,
	}
}

// Next returns the next record. It returns io.EOF once the session ends
// normally (Completed, StoppedEarly or Empty), the transport error when
// it Failed, and ErrClosed after an early Close.
func (s *Stream[T]) Next() (T, error) {
	var zero T
	for {
		switch s.state {
		case stateIdle:
			s.begin()

		case stateStreaming, stateDraining:
			if len(s.pending) > 0 {
				line := s.pending[0]
				s.pending = s.pending[1:]

				rec, ok, end := s.decode(line)
				if end {
					s.finish(Completed, nil)
					continue
				}
				if !ok {
					continue
				}
				s.stats.Records++
				if s.opts.Stop != nil && s.opts.Stop(rec) {
					s.finish(StoppedEarly, nil)
				}
				return rec, nil
			}
			if s.state == stateDraining {
				if s.stats.Bytes == 0 {
					s.finish(Empty, nil)
				} else {
					s.finish(Completed, nil)
				}
				continue
			}
			s.pull()

		case stateDone:
			if s.closed {
				return zero, ErrClosed
			}
			if s.err != nil {
				return zero, s.err
			}
			return zero, io.EOF
		}
	}
}

// begin inspects the status code and prepares the body.
func (s *Stream[T]) begin() {
	if s.resp.StatusCode < 200 || s.resp.StatusCode > 299 {
		body := s.drain()
		s.log.Warn("non-success response",
			"status", s.resp.StatusCode,
			"bytes", len(body),
		)
		s.log.Log(s.ctx, levelTrace, "non-success response body", "body", body)
		s.finish(Empty, nil)
		return
	}

	if !s.resp.Chunked {
		body := strings.TrimSpace(s.resp.Body)
		if body == "" {
			s.log.Debug("empty response body")
			s.finish(Empty, nil)
			return
		}
		s.stats.Chunks = 1
		s.stats.Bytes = int64(len(s.resp.Body))
		s.stats.Lines = 1
		s.pending = []string{body}
		s.state = stateDraining
		return
	}

	if s.resp.Chunks == nil {
		s.finish(Empty, nil)
		return
	}
	s.log.Debug("reading chunked response")
	s.state = stateStreaming
}

// pull fetches one chunk and queues the lines it completes.
func (s *Stream[T]) pull() {
	if err := s.ctx.Err(); err != nil {
		s.finish(Failed, fmt.Errorf("read stream: %w", err))
		return
	}

	chunk, err := s.resp.Chunks.Next(s.ctx)
	eof := errors.Is(err, io.EOF)
	if err != nil && !eof {
		s.finish(Failed, fmt.Errorf("read stream: %w", err))
		return
	}

	s.stats.Chunks++
	s.stats.Bytes += int64(len(chunk.Data))
	s.log.Log(s.ctx, levelTrace, "chunk received",
		"bytes", len(chunk.Data),
		"final", chunk.Final,
	)

	lines := s.asm.Feed(chunk.Data)
	if chunk.Final || eof {
		if line, ok := s.asm.Flush(); ok {
			lines = append(lines, line)
		}
		s.state = stateDraining
	}
	s.stats.Lines += len(lines)
	s.pending = lines
}

// decode runs the transformer and decoder over one line. end reports
// that the line was the configured end marker.
func (s *Stream[T]) decode(line string) (rec T, ok bool, end bool) {
	line = s.opts.Transform(line)
	if s.opts.EndMarker != "" && strings.TrimSpace(line) == s.opts.EndMarker {
		return rec, false, true
	}

	v, err := s.opts.Decode(line)
	if err != nil {
		s.stats.Skipped++
		s.log.Debug("failed to parse line", "line", excerpt(line), "error", err)
		return rec, false, false
	}
	if v == nil {
		s.stats.Skipped++
		return rec, false, false
	}
	s.log.Log(s.ctx, levelTrace, "parsed streaming result", "line", line)
	return *v, true, false
}

// drain reads a bounded amount of the body for diagnostics.
func (s *Stream[T]) drain() string {
	if !s.resp.Chunked {
		return s.resp.Body
	}
	if s.resp.Chunks == nil {
		return ""
	}

	var b strings.Builder
	for int64(b.Len()) < s.opts.DrainLimit {
		chunk, err := s.resp.Chunks.Next(s.ctx)
		if err != nil {
			break
		}
		room := s.opts.DrainLimit - int64(b.Len())
		data := chunk.Data
		if int64(len(data)) > room {
			data = data[:room]
		}
		b.Write(data)
		if chunk.Final {
			break
		}
	}
	return b.String()
}

// finish moves the session to its terminal state exactly once and
// releases the source.
func (s *Stream[T]) finish(o Outcome, err error) {
	if s.state == stateDone {
		return
	}
	s.state = stateDone
	s.outcome = o
	s.err = err
	s.pending = nil

	if c, ok := s.resp.Chunks.(io.Closer); ok {
		_ = c.Close()
	}

	if err != nil {
		s.log.Warn("stream failed", "error", err, "records", s.stats.Records)
	} else {
		s.log.Debug("stream finished",
			"outcome", o.String(),
			"records", s.stats.Records,
			"skipped", s.stats.Skipped,
			"chunks", s.stats.Chunks,
		)
	}

	if s.opts.OnFinish != nil {
		s.opts.OnFinish(o, s.stats, err)
	}
}

// Close ends the session and releases the source. Closing a stream that
// has not reached a terminal state records it as StoppedEarly. Close is
// idempotent.
func (s *Stream[T]) Close() error {
	if s.state != stateDone {
		s.closed = true
		s.finish(StoppedEarly, nil)
	}
	return nil
}

// Outcome reports the terminal state, or Pending while the session is live.
func (s *Stream[T]) Outcome() Outcome { return s.outcome }

// Err reports the transport error of a Failed session.
func (s *Stream[T]) Err() error { return s.err }

// Stats reports the counters accumulated so far.
func (s *Stream[T]) Stats() Stats { return s.stats }

// All returns the remaining records as a single-use sequence. Breaking
// out of the loop closes the stream. A transport failure is yielded once
// as the final element.
func (s *Stream[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer s.Close()
		for {
			rec, err := s.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Collect drains s and returns every record. The stream is closed on
// return.
func Collect[T any](s *Stream[T]) ([]T, error) {
	var out []T
	for rec, err := range s.All() {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Opener starts a fresh session, typically by issuing the HTTP request
// again. Sessions cannot be resumed mid-stream, but an Opener can be
// ranged over any number of times, each time from the start.
type Opener[T any] func(ctx context.Context) (*Stream[T], error)

// All opens a new session and yields its records.
func (o Opener[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		s, err := o(ctx)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for rec, err := range s.All() {
			if !yield(rec, err) {
				return
			}
		}
	}
}

func excerpt(line string) string {
	if len(line) <= maxLoggedLine {
		return line
	}
	return line[:maxLoggedLine] + "..."
}
