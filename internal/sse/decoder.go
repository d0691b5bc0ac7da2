// Package sse decodes Server-Sent-Events from a byte stream. The decoder
// is lenient in the manner of the SSE specification: comment lines and
// malformed lines are ignored rather than rejected, and an unterminated
// final event is flushed when the stream ends.
package sse

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

// Event is one decoded SSE event. Data joins all data lines seen before
// the terminating blank line with "\n".
type Event struct {
	Name string
	Data string
	ID   string
}

// Decoder converts a raw byte stream arriving at arbitrary chunk
// boundaries into discrete events. It owns all parse state for one
// stream; it is not restartable across streams and not safe for
// concurrent use.
type Decoder struct {
	r   io.Reader
	buf []byte

	// in-progress accumulation, reset after each emitted event
	eventName string
	dataLines []string
	id        string

	retryHint time.Duration
	readErr   error
	eof       bool
}

const readChunkSize = 4096

// NewDecoder returns a Decoder reading from r. The decoder does not own
// r; closing the underlying stream remains the caller's responsibility.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next event. It returns io.EOF once the stream is
// exhausted, flushing a pending unterminated event first when the end
// was clean. Any other error is a read failure from the underlying
// stream; pending partial accumulation is discarded rather than emitted
// ahead of it, and the decoder is dead after returning one.
func (d *Decoder) Next() (Event, error) {
	for {
		// Drain complete lines already buffered before reading more.
		for {
			line, ok := d.nextLine()
			if !ok {
				break
			}
			if ev, emitted := d.consumeLine(line); emitted {
				return ev, nil
			}
		}

		if d.eof {
			// A read failure wins over any pending accumulation: a
			// half-delivered frame must never be emitted ahead of it.
			if d.readErr != nil && d.readErr != io.EOF {
				return Event{}, d.readErr
			}
			// Unterminated trailing event: no blank line arrived before
			// the stream ended cleanly.
			if len(d.dataLines) > 0 {
				ev := d.emit()
				return ev, nil
			}
			return Event{}, io.EOF
		}

		chunk := make([]byte, readChunkSize)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
		}
		if err != nil {
			d.eof = true
			d.readErr = err
		}
	}
}

// RetryHint returns the most recent reconnection delay advertised by the
// service via a retry field, or zero. It is stream-level state, not part
// of any event.
func (d *Decoder) RetryHint() time.Duration {
	return d.retryHint
}

// nextLine extracts one complete line from the front of the buffer.
// Lines are delimited by \n with a trailing \r stripped; a partial line
// stays buffered until more bytes arrive.
func (d *Decoder) nextLine() (string, bool) {
	i := bytes.IndexByte(d.buf, '\n')
	if i < 0 {
		// At stream end, a dangling line without its \n still counts.
		if d.eof && len(d.buf) > 0 {
			line := string(d.buf)
			d.buf = nil
			return strings.TrimSuffix(line, "\r"), true
		}
		return "", false
	}
	line := string(d.buf[:i])
	d.buf = d.buf[i+1:]
	return strings.TrimSuffix(line, "\r"), true
}

// consumeLine applies one line to the accumulation state, returning an
// event when the line completed one.
func (d *Decoder) consumeLine(line string) (Event, bool) {
	switch {
	case line == "":
		// Event boundary. Blank lines with nothing pending are no-ops.
		if len(d.dataLines) == 0 {
			return Event{}, false
		}
		return d.emit(), true

	case strings.HasPrefix(line, ":"):
		// Comment, e.g. keepalive ": ping". Does not disturb accumulation.
		return Event{}, false
	}

	field, value, found := strings.Cut(line, ":")
	if !found {
		// No colon at all: malformed, ignored.
		return Event{}, false
	}
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "event":
		d.eventName = value
	case "data":
		d.dataLines = append(d.dataLines, value)
	case "id":
		d.id = value
	case "retry":
		// Reconnection hint, not event data.
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			d.retryHint = time.Duration(ms) * time.Millisecond
		}
	}
	// Unknown fields are ignored.
	return Event{}, false
}

// emit builds the pending event and resets accumulation state.
func (d *Decoder) emit() Event {
	ev := Event{
		Name: d.eventName,
		Data: strings.Join(d.dataLines, "\n"),
		ID:   d.id,
	}
	d.eventName = ""
	d.dataLines = nil
	d.id = ""
	return ev
}
