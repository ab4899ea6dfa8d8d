package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/sharpai/sharpai-go/internal/events"
)

// Recorder persists the stream_end events published on a bus.
type Recorder struct {
	store  *Store
	bus    *events.Bus
	ch     <-chan events.Event
	logger *slog.Logger
}

// NewRecorder subscribes to bus and returns a recorder writing to
// store. Events published from this point on are buffered until Run
// consumes them. A nil logger discards output.
func NewRecorder(store *Store, bus *events.Bus, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		store:  store,
		bus:    bus,
		ch:     bus.Subscribe(64),
		logger: logger,
	}
}

// Run records events until ctx is done, then records whatever is
// still buffered and unsubscribes.
func (r *Recorder) Run(ctx context.Context) {
	defer r.bus.Unsubscribe(r.ch)

	for {
		select {
		case <-ctx.Done():
			r.drain(r.ch)
			return
		case e := <-r.ch:
			r.handle(e)
		}
	}
}

// drain records events already buffered when the context ended.
func (r *Recorder) drain(ch <-chan events.Event) {
	for {
		select {
		case e := <-ch:
			r.handle(e)
		default:
			return
		}
	}
}

func (r *Recorder) handle(e events.Event) {
	if e.Kind != events.KindStreamEnd {
		return
	}
	sess := SessionFromEvent(e)
	// The journal outlives the caller's context.
	if err := r.store.Record(context.Background(), sess); err != nil {
		r.logger.Warn("failed to record stream session", "session_id", sess.SessionID, "error", err)
		return
	}
	r.logger.Debug("recorded stream session",
		"session_id", sess.SessionID,
		"path", sess.Path,
		"outcome", sess.Outcome,
	)
}

// SessionFromEvent converts a stream_end event into a Session.
func SessionFromEvent(e events.Event) Session {
	return Session{
		Timestamp: e.Timestamp,
		SessionID: e.String("session_id"),
		Source:    e.Source,
		Method:    e.String("method"),
		Path:      e.String("path"),
		Status:    int(e.Int("status")),
		Outcome:   e.String("outcome"),
		Chunks:    e.Int("chunks"),
		Bytes:     e.Int("bytes"),
		Lines:     e.Int("lines"),
		Records:   e.Int("records"),
		Skipped:   e.Int("skipped"),
		Elapsed:   time.Duration(e.Int("elapsed_ms")) * time.Millisecond,
		Error:     e.String("error"),
	}
}
