package sdk

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sharpai/sharpai-go/internal/events"
	"github.com/sharpai/sharpai-go/internal/httpkit"
	"github.com/sharpai/sharpai-go/internal/stream"
)

// StreamOptions shape the decode session opened by PostStream. The
// logger and drain limit come from the client.
type StreamOptions[T any] struct {
	Transform stream.Transformer
	Decode    stream.DecodeFunc[T]
	Stop      func(T) bool
	EndMarker string

	// OnFinish runs after the client has logged and published the end
	// of the session.
	OnFinish func(stream.Outcome, stream.Stats, error)
}

// PostStream sends body as JSON to path and returns a lazy stream over
// the response. Only failures to send the request are returned as
// errors; a non-2xx status yields an empty stream.
func PostStream[T any](ctx context.Context, c *Client, path string, body any, opts StreamOptions[T]) (*stream.Stream[T], error) {
	cl := c.newCall(http.MethodPost, path)
	resp, err := c.send(ctx, c.streaming, cl, body)
	if err != nil {
		return nil, err
	}

	sr := stream.Response{StatusCode: resp.StatusCode}
	if httpkit.IsChunked(resp) {
		sr.Chunked = true
		sr.Chunks = stream.NewReaderSource(resp.Body, stream.DefaultChunkSize)
	} else {
		data, err := ReadResponse(resp)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
		}
		sr.Body = data
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		cl.log.Debug("success", "status", resp.StatusCode, "chunked", sr.Chunked)
	}
	c.bus.Emit(cl.source, events.KindStreamStart, map[string]any{
		"session_id": cl.id,
		"method":     cl.method,
		"path":       cl.path,
		"status":     resp.StatusCode,
		"chunked":    sr.Chunked,
	})

	return stream.New(ctx, sr, stream.Options[T]{
		Transform: opts.Transform,
		Decode:    opts.Decode,
		Stop:      opts.Stop,
		EndMarker: opts.EndMarker,
		Logger:    cl.log,
		OnFinish: func(o stream.Outcome, st stream.Stats, err error) {
			c.finishStream(cl, resp.StatusCode, o, st, err)
			if opts.OnFinish != nil {
				opts.OnFinish(o, st, err)
			}
		},
	}), nil
}

func (c *Client) finishStream(cl *call, status int, o stream.Outcome, st stream.Stats, err error) {
	elapsed := time.Since(cl.start)
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	c.bus.Emit(cl.source, events.KindStreamEnd, map[string]any{
		"session_id": cl.id,
		"method":     cl.method,
		"path":       cl.path,
		"status":     status,
		"outcome":    o.String(),
		"chunks":     st.Chunks,
		"bytes":      st.Bytes,
		"lines":      st.Lines,
		"records":    st.Records,
		"skipped":    st.Skipped,
		"elapsed_ms": elapsed.Milliseconds(),
		"error":      errText,
	})
}

// OpenStream returns an Opener that re-sends the request each time it
// is ranged over.
func OpenStream[T any](c *Client, path string, body any, opts StreamOptions[T]) stream.Opener[T] {
	return func(ctx context.Context) (*stream.Stream[T], error) {
		return PostStream(ctx, c, path, body, opts)
	}
}
