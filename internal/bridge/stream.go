package bridge

import (
	"bytes"
	"io"

	"github.com/r3labs/sse/v2"
)

// maxEventSize bounds a single SSE event, matching the r3labs client default.
const maxEventSize = 1 << 16

var (
	headerID    = []byte("id:")
	headerData  = []byte("data:")
	headerEvent = []byte("event:")
)

// eventScanner reads typed events from a single server-sent event stream.
// Framing is delegated to the r3labs reader; field decoding follows the SSE
// wire format (one "field: value" per line, data lines joined by newlines).
type eventScanner struct {
	r *sse.EventStreamReader
}

func newEventScanner(stream io.Reader) *eventScanner {
	return &eventScanner{r: sse.NewEventStreamReader(stream, maxEventSize)}
}

// Next returns the next event carrying content. It returns io.EOF once the
// stream ends.
func (s *eventScanner) Next() (*sse.Event, error) {
	for {
		raw, err := s.r.ReadEvent()
		if err != nil {
			return nil, err
		}
		ev := decodeEvent(raw)
		if len(ev.Event) > 0 || len(ev.Data) > 0 || len(ev.ID) > 0 {
			return ev, nil
		}
		// comment-only or empty block; keep reading
	}
}

func decodeEvent(raw []byte) *sse.Event {
	var ev sse.Event
	for _, line := range bytes.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '\r' }) {
		switch {
		case bytes.HasPrefix(line, headerID):
			ev.ID = append(ev.ID, fieldValue(line, headerID)...)
		case bytes.HasPrefix(line, headerData):
			if len(ev.Data) > 0 {
				ev.Data = append(ev.Data, '\n')
			}
			ev.Data = append(ev.Data, fieldValue(line, headerData)...)
		case bytes.HasPrefix(line, headerEvent):
			ev.Event = append(ev.Event[:0], fieldValue(line, headerEvent)...)
		}
	}
	return &ev
}

func fieldValue(line, header []byte) []byte {
	return bytes.TrimPrefix(bytes.TrimPrefix(line, header), []byte(" "))
}
