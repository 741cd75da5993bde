package gemini

import (
	"bufio"
	"io"
	"strings"
)

const (
	sseInitialBuffer = 64 * 1024
	sseMaxLine       = 16 * 1024 * 1024 // inline image chunks can be large
)

// sseEvent is one dispatched server-sent event.
type sseEvent struct {
	Event string
	Data  string
	ID    string
}

// sseReader splits a text/event-stream body into events.
//
// Field lines are "name: value" (one optional space after the colon).
// Multiple data lines are joined with "\n". Lines starting with ':' are
// comments. A blank line dispatches the pending event; a pending event at
// EOF is dispatched too.
type sseReader struct {
	scanner *bufio.Scanner
}

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, sseInitialBuffer), sseMaxLine)
	return &sseReader{scanner: scanner}
}

// Next returns the next event, or io.EOF once the stream is exhausted.
func (r *sseReader) Next() (sseEvent, error) {
	var (
		ev      sseEvent
		data    []string
		pending bool
	)
	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		if line == "" {
			if pending {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			ev.Event = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		case "id":
			ev.ID = value
			pending = true
		}
	}
	if err := r.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	if pending {
		ev.Data = strings.Join(data, "\n")
		return ev, nil
	}
	return sseEvent{}, io.EOF
}
