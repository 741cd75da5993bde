package gemini

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAllEvents(t *testing.T, r *sseReader) []sseEvent {
	t.Helper()
	var events []sseEvent
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestSSEReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []sseEvent
	}{
		{
			name:  "single data line",
			input: "data: {\"a\":1}\n\n",
			want:  []sseEvent{{Data: `{"a":1}`}},
		},
		{
			name:  "no space after colon",
			input: "event:message\ndata:{}\n\n",
			want:  []sseEvent{{Event: "message", Data: "{}"}},
		},
		{
			name:  "multi-line data is joined",
			input: "data: line1\ndata: line2\n\n",
			want:  []sseEvent{{Data: "line1\nline2"}},
		},
		{
			name:  "comments and blank lines ignored",
			input: ": keep-alive\n\n\ndata: x\n\n",
			want:  []sseEvent{{Data: "x"}},
		},
		{
			name:  "crlf line endings",
			input: "data: x\r\n\r\ndata: y\r\n\r\n",
			want:  []sseEvent{{Data: "x"}, {Data: "y"}},
		},
		{
			name:  "pending event flushed at EOF",
			input: "id: 7\ndata: tail",
			want:  []sseEvent{{ID: "7", Data: "tail"}},
		},
		{
			name:  "only one leading space trimmed",
			input: "data:  indented\n\n",
			want:  []sseEvent{{Data: " indented"}},
		},
		{
			name:  "unknown fields ignored",
			input: "retry: 100\ndata: a\n\n",
			want:  []sseEvent{{Data: "a"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAllEvents(t, newSSEReader(strings.NewReader(tt.input)))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSSEReader_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := newSSEReader(io.MultiReader(strings.NewReader("data: a\n\n"), iotest.ErrReader(boom)))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Data)

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestSSEReader_LargeEvent(t *testing.T) {
	payload := strings.Repeat("x", 2*1024*1024)
	r := newSSEReader(strings.NewReader("data: " + payload + "\n\n"))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Len(t, ev.Data, len(payload))
}
