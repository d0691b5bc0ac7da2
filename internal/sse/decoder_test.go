package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

// chunkedReader yields a payload in fixed-size pieces so tests can force
// reads that split lines and fields at arbitrary byte boundaries.
type chunkedReader struct {
	data []byte
	size int
	pos  int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}

func collect(t *testing.T, d *Decoder) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := d.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		events = append(events, ev)
	}
}

func TestDecoder_SingleEvent(t *testing.T) {
	d := NewDecoder(strings.NewReader("event: message\ndata: hello\n\n"))
	events := collect(t, d)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Name != "message" {
		t.Errorf("Name = %q, want %q", events[0].Name, "message")
	}
	if events[0].Data != "hello" {
		t.Errorf("Data = %q, want %q", events[0].Data, "hello")
	}
}

func TestDecoder_MultipleDataLinesJoin(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: first\ndata: second\n\n"))
	events := collect(t, d)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "first\nsecond" {
		t.Errorf("Data = %q, want %q", events[0].Data, "first\nsecond")
	}
}

func TestDecoder_SplitIndependence(t *testing.T) {
	payload := "event: message\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n" +
		"id: 42\n" +
		"\n" +
		": keepalive\n" +
		"data: part one\n" +
		"data: part two\n" +
		"\n" +
		"event: done\ndata: [DONE]\n\n"

	whole := collect(t, NewDecoder(strings.NewReader(payload)))

	// Every chunk size, including 1 byte at a time, must yield the same
	// event sequence as decoding the payload whole.
	for size := 1; size <= len(payload); size++ {
		split := collect(t, NewDecoder(&chunkedReader{data: []byte(payload), size: size}))
		if len(split) != len(whole) {
			t.Fatalf("chunk size %d: got %d events, want %d", size, len(split), len(whole))
		}
		for i := range whole {
			if split[i] != whole[i] {
				t.Fatalf("chunk size %d: event %d = %+v, want %+v", size, i, split[i], whole[i])
			}
		}
	}
}

func TestDecoder_CommentIgnored(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: before\n: ping\ndata: after\n\n"))
	events := collect(t, d)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	// The comment must not disturb the in-progress accumulation.
	if events[0].Data != "before\nafter" {
		t.Errorf("Data = %q, want %q", events[0].Data, "before\nafter")
	}
}

func TestDecoder_CommentAloneEmitsNothing(t *testing.T) {
	d := NewDecoder(strings.NewReader(": ping\n\n"))
	if events := collect(t, d); len(events) != 0 {
		t.Fatalf("got %d events, want 0", len(events))
	}
}

func TestDecoder_MalformedLineIgnored(t *testing.T) {
	d := NewDecoder(strings.NewReader("garbage without colon\ndata: ok\n\n"))
	events := collect(t, d)

	if len(events) != 1 || events[0].Data != "ok" {
		t.Fatalf("events = %+v, want single event with data %q", events, "ok")
	}
}

func TestDecoder_BlankLinesWithoutDataAreNoOps(t *testing.T) {
	d := NewDecoder(strings.NewReader("\n\n\ndata: x\n\n\n\n"))
	events := collect(t, d)

	if len(events) != 1 || events[0].Data != "x" {
		t.Fatalf("events = %+v, want single event with data %q", events, "x")
	}
}

func TestDecoder_UnterminatedFinalEventFlushed(t *testing.T) {
	// No trailing blank line before the stream ends.
	d := NewDecoder(strings.NewReader("data: tail"))
	events := collect(t, d)

	if len(events) != 1 || events[0].Data != "tail" {
		t.Fatalf("events = %+v, want single flushed event with data %q", events, "tail")
	}
}

func TestDecoder_CRLFStripped(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: windows\r\n\r\n"))
	events := collect(t, d)

	if len(events) != 1 || events[0].Data != "windows" {
		t.Fatalf("events = %+v, want single event with data %q", events, "windows")
	}
}

func TestDecoder_ValueWithoutSpace(t *testing.T) {
	d := NewDecoder(strings.NewReader("data:nospace\n\n"))
	events := collect(t, d)

	if len(events) != 1 || events[0].Data != "nospace" {
		t.Fatalf("events = %+v, want single event with data %q", events, "nospace")
	}
}

func TestDecoder_OnlyOneLeadingSpaceTrimmed(t *testing.T) {
	d := NewDecoder(strings.NewReader("data:  two spaces\n\n"))
	events := collect(t, d)

	if len(events) != 1 || events[0].Data != " two spaces" {
		t.Fatalf("events = %+v, want data %q", events, " two spaces")
	}
}

func TestDecoder_RetryHintNotSurfacedPerEvent(t *testing.T) {
	d := NewDecoder(strings.NewReader("retry: 1500\ndata: x\n\n"))
	events := collect(t, d)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if d.RetryHint() != 1500*time.Millisecond {
		t.Errorf("RetryHint = %v, want %v", d.RetryHint(), 1500*time.Millisecond)
	}
}

func TestDecoder_IDCarriedAndReset(t *testing.T) {
	d := NewDecoder(strings.NewReader("id: abc\ndata: one\n\ndata: two\n\n"))
	events := collect(t, d)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != "abc" {
		t.Errorf("first ID = %q, want %q", events[0].ID, "abc")
	}
	if events[1].ID != "" {
		t.Errorf("second ID = %q, want empty", events[1].ID)
	}
}

// errAfterReader returns its payload, then a non-EOF error.
type errAfterReader struct {
	data []byte
	err  error
	done bool
}

func (r *errAfterReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(p, r.data), nil
	}
	return 0, r.err
}

func TestDecoder_ReadFailurePropagated(t *testing.T) {
	readErr := errors.New("connection reset")
	d := NewDecoder(&errAfterReader{data: []byte("data: partial\n\n"), err: readErr})

	ev, err := d.Next()
	if err != nil {
		t.Fatalf("first event failed: %v", err)
	}
	if ev.Data != "partial" {
		t.Errorf("Data = %q, want %q", ev.Data, "partial")
	}

	if _, err := d.Next(); !errors.Is(err, readErr) {
		t.Fatalf("err = %v, want %v", err, readErr)
	}
}

func TestDecoder_ReadFailureDiscardsPartialAccumulation(t *testing.T) {
	readErr := errors.New("connection reset")
	// The trailing data line was never terminated when the read failed;
	// the truncated frame must not be emitted ahead of the error.
	d := NewDecoder(&errAfterReader{data: []byte("data: complete\n\ndata: trunca"), err: readErr})

	ev, err := d.Next()
	if err != nil {
		t.Fatalf("first event failed: %v", err)
	}
	if ev.Data != "complete" {
		t.Errorf("Data = %q, want %q", ev.Data, "complete")
	}

	if ev, err := d.Next(); !errors.Is(err, readErr) {
		t.Fatalf("got event %+v, err %v; want %v", ev, err, readErr)
	}
}

func TestDecoder_ZeroLengthChunksTolerated(t *testing.T) {
	d := NewDecoder(io.MultiReader(
		strings.NewReader(""),
		strings.NewReader("data: ok\n\n"),
		strings.NewReader(""),
	))
	events := collect(t, d)

	if len(events) != 1 || events[0].Data != "ok" {
		t.Fatalf("events = %+v, want single event with data %q", events, "ok")
	}
}
