package stream

import (
	"context"
	"testing"
)

func TestLineAssemblerFeed(t *testing.T) {
	tests := []struct {
		name      string
		chunks    []string
		wantLines []string
		wantFlush string
	}{
		{
			name:      "single complete line",
			chunks:    []string{"abc\n"},
			wantLines: []string{"abc"},
		},
		{
			name:      "line split across chunks",
			chunks:    []string{"ab", "c\nde", "f\n"},
			wantLines: []string{"abc", "def"},
		},
		{
			name:      "blank and whitespace lines dropped",
			chunks:    []string{"\n\n  \t\nx\n\r\n"},
			wantLines: []string{"x"},
		},
		{
			name:      "carriage return trimmed",
			chunks:    []string{"one\r\ntwo\r", "\n"},
			wantLines: []string{"one", "two"},
		},
		{
			name:      "leftover flushed",
			chunks:    []string{"first\nsec", "ond"},
			wantLines: []string{"first"},
			wantFlush: "second",
		},
		{
			name:      "delimiter alone in a chunk",
			chunks:    []string{"abc", "\n", "def"},
			wantLines: []string{"abc"},
			wantFlush: "def",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a LineAssembler
			var got []string
			for _, c := range tt.chunks {
				got = append(got, a.Feed([]byte(c))...)
			}
			if !equalStrings(got, tt.wantLines) {
				t.Errorf("lines = %q, want %q", got, tt.wantLines)
			}
			flushed, ok := a.Flush()
			if ok != (tt.wantFlush != "") || flushed != tt.wantFlush {
				t.Errorf("Flush() = %q, %v; want %q", flushed, ok, tt.wantFlush)
			}
			if a.Buffered() != 0 {
				t.Errorf("Buffered() after Flush = %d, want 0", a.Buffered())
			}
		})
	}
}

func TestLineAssemblerSplitRune(t *testing.T) {
	word := "héllo"
	raw := []byte(word + "\n")
	// Split inside the two-byte é.
	var a LineAssembler
	if lines := a.Feed(raw[:2]); len(lines) != 0 {
		t.Fatalf("unexpected lines from partial chunk: %q", lines)
	}
	lines := a.Feed(raw[2:])
	if len(lines) != 1 || lines[0] != word {
		t.Errorf("lines = %q, want [%q]", lines, word)
	}
}

func TestLineAssemblerDoesNotAliasInput(t *testing.T) {
	var a LineAssembler
	buf := []byte("par")
	a.Feed(buf)
	copy(buf, "XXX")
	lines := a.Feed([]byte("tial\n"))
	if len(lines) != 1 || lines[0] != "partial" {
		t.Errorf("lines = %q, want [\"partial\"]", lines)
	}
}

func TestTransformers(t *testing.T) {
	tests := []struct {
		name string
		fn   Transformer
		in   string
		want string
	}{
		{"identity", Identity, "data: x", "data: x"},
		{"event stream strips prefix", EventStream, `data: {"a":1}`, `{"a":1}`},
		{"event stream leaves other lines", EventStream, `event: ping`, `event: ping`},
		{"event stream needs exact prefix", EventStream, `data:{"a":1}`, `data:{"a":1}`},
		{"event stream empty", EventStream, "", ""},
		{"custom prefix", TrimPrefix(">> "), ">> hi", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJSONDecode(t *testing.T) {
	rec, err := JSON[pullRecord](`{"STATUS":"success"}`)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if rec == nil || rec.Status != "success" {
		t.Errorf("record = %+v, want case-insensitive match on status", rec)
	}

	rec, err = JSON[pullRecord]("null")
	if err != nil || rec != nil {
		t.Errorf("JSON(null) = %+v, %v; want nil, nil", rec, err)
	}

	if _, err := JSON[pullRecord](`{"status":`); err == nil {
		t.Error("JSON on truncated input should fail")
	}
}

func TestCustomDecoder(t *testing.T) {
	upper := func(line string) (*string, error) {
		s := "<" + line + ">"
		return &s, nil
	}
	src := NewSliceSource(Chunk{Data: []byte("a\nb\n"), Final: true})
	recs, err := Collect(New(context.Background(), chunked(src), Options[string]{Decode: upper}))
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if want := []string{"<a>", "<b>"}; !equalStrings(recs, want) {
		t.Errorf("records = %q, want %q", recs, want)
	}
}
