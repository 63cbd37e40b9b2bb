package bridge

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestEventScannerDecodesTypedEvents(t *testing.T) {
	stream := "event: endpoint\ndata: /messages/?session_id=abc\n\n" +
		": keep-alive comment\n\n" +
		"event: message\nid: 42\ndata: {\"id\": 1,\ndata:  \"result\": true}\n\n"
	sc := newEventScanner(strings.NewReader(stream))

	ev, err := sc.Next()
	if err != nil {
		t.Fatalf("first event: %v", err)
	}
	if string(ev.Event) != "endpoint" || string(ev.Data) != "/messages/?session_id=abc" {
		t.Fatalf("first event: %q %q", ev.Event, ev.Data)
	}

	// The comment-only block is skipped entirely.
	ev, err = sc.Next()
	if err != nil {
		t.Fatalf("second event: %v", err)
	}
	if string(ev.Event) != "message" || string(ev.ID) != "42" {
		t.Fatalf("second event: %q %q", ev.Event, ev.ID)
	}
	if string(ev.Data) != "{\"id\": 1,\n \"result\": true}" {
		t.Fatalf("joined data: %q", ev.Data)
	}

	if _, err := sc.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestEventScannerHandlesCRLF(t *testing.T) {
	stream := "event: endpoint\r\ndata: /messages/\r\n\r\n"
	sc := newEventScanner(strings.NewReader(stream))
	ev, err := sc.Next()
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if string(ev.Event) != "endpoint" || string(ev.Data) != "/messages/" {
		t.Fatalf("event: %q %q", ev.Event, ev.Data)
	}
}

func TestEventScannerEmptyStream(t *testing.T) {
	sc := newEventScanner(strings.NewReader(""))
	if _, err := sc.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}
