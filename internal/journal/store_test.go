package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "journal_test.db")
	s, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store, now time.Time) {
	t.Helper()
	sessions := []Session{
		{Timestamp: now, SessionID: "s1", Source: "ollama", Method: "POST", Path: "/api/pull",
			Status: 200, Outcome: "stopped_early", Chunks: 4, Bytes: 400, Lines: 5, Records: 5, Elapsed: 2 * time.Second},
		{Timestamp: now, SessionID: "s2", Source: "ollama", Method: "POST", Path: "/api/generate",
			Status: 200, Outcome: "completed", Chunks: 3, Bytes: 120, Lines: 4, Records: 3, Skipped: 1, Elapsed: time.Second},
		{Timestamp: now, SessionID: "s3", Source: "openai", Method: "POST", Path: "/v1/chat/completions",
			Status: 200, Outcome: "failed", Chunks: 1, Bytes: 30, Lines: 1, Records: 1, Error: "read stream: context canceled"},
		{Timestamp: now, SessionID: "s4", Source: "ollama", Method: "POST", Path: "/api/generate",
			Status: 404, Outcome: "empty"},
	}
	for _, sess := range sessions {
		if err := s.Record(context.Background(), sess); err != nil {
			t.Fatalf("Record(%s): %v", sess.SessionID, err)
		}
	}
}

func TestRecord_And_Summary(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC()
	seed(t, s, now)

	sum, err := s.Summary(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Sessions != 4 {
		t.Errorf("Sessions = %d, want 4", sum.Sessions)
	}
	if sum.Records != 9 {
		t.Errorf("Records = %d, want 9", sum.Records)
	}
	if sum.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", sum.Skipped)
	}
	if sum.Bytes != 550 {
		t.Errorf("Bytes = %d, want 550", sum.Bytes)
	}
	if sum.Failed != 1 {
		t.Errorf("Failed = %d, want 1", sum.Failed)
	}
	if sum.Elapsed != 3*time.Second {
		t.Errorf("Elapsed = %v, want 3s", sum.Elapsed)
	}
}

func TestSummary_TimeRange(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC()
	seed(t, s, now.Add(-48*time.Hour))

	sum, err := s.Summary(now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Sessions != 0 {
		t.Errorf("Sessions = %d, want 0 for an empty range", sum.Sessions)
	}
}

func TestSummaryByOutcome(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC()
	seed(t, s, now)

	by, err := s.SummaryByOutcome(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("SummaryByOutcome: %v", err)
	}
	for _, outcome := range []string{"completed", "stopped_early", "failed", "empty"} {
		if by[outcome] == nil || by[outcome].Sessions != 1 {
			t.Errorf("outcome %q = %+v, want 1 session", outcome, by[outcome])
		}
	}
}

func TestSummaryByPath(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC()
	seed(t, s, now)

	by, err := s.SummaryByPath(now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("SummaryByPath: %v", err)
	}
	gen := by["/api/generate"]
	if gen == nil || gen.Sessions != 2 || gen.Records != 3 {
		t.Errorf("/api/generate = %+v, want 2 sessions with 3 records", gen)
	}
	if len(by) != 3 {
		t.Errorf("paths = %d, want 3", len(by))
	}
}

func TestRecent(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC()
	old := Session{Timestamp: now.Add(-time.Hour), SessionID: "old", Source: "sdk", Method: "POST", Path: "/a", Outcome: "completed"}
	fresh := Session{Timestamp: now, SessionID: "new", Source: "sdk", Method: "POST", Path: "/b", Outcome: "failed",
		Error: "boom", Elapsed: 1500 * time.Millisecond}
	for _, sess := range []Session{old, fresh} {
		if err := s.Record(context.Background(), sess); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != "new" || got[1].SessionID != "old" {
		t.Fatalf("Recent = %+v, want newest first", got)
	}
	if got[0].ID == "" {
		t.Error("Record did not assign an ID")
	}
	if got[0].Error != "boom" || got[0].Elapsed != 1500*time.Millisecond {
		t.Errorf("round trip lost fields: %+v", got[0])
	}
	if !got[0].Timestamp.Equal(now.Truncate(time.Microsecond)) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, now.Truncate(time.Microsecond))
	}

	limited, _ := s.Recent(context.Background(), 1)
	if len(limited) != 1 {
		t.Errorf("Recent(1) returned %d sessions", len(limited))
	}
}

func TestRecord_DefaultTimestamp(t *testing.T) {
	s := testStore(t)
	before := time.Now().Add(-time.Second)
	if err := s.Record(context.Background(), Session{SessionID: "x", Source: "sdk", Method: "GET", Path: "/", Outcome: "empty"}); err != nil {
		t.Fatal(err)
	}
	sum, err := s.Summary(before, time.Now().Add(time.Second))
	if err != nil || sum.Sessions != 1 {
		t.Errorf("Summary = %+v, %v; want the defaulted timestamp inside the range", sum, err)
	}
}
