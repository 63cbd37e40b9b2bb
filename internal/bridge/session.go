package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openwetmap/mcp-bridge/internal/logx"
)

// Protocol violations surfaced by the session handshake.
var (
	ErrNoEndpoint = errors.New("no session endpoint received")
	ErrNoResponse = errors.New("no response received")
)

const (
	eventEndpoint = "endpoint"
	eventMessage  = "message"
)

// notificationAck is the reply for notifications, whose submission was
// accepted but which carry no correlated response.
var notificationAck = json.RawMessage(`{"status":"accepted"}`)

// SessionForwarder runs the SSE session handshake against the backend:
// open the event stream, wait for the session endpoint event, submit the
// message to that endpoint on a separate connection, and for requests
// correlate the response event back to the caller.
//
// Each Forward call opens its own stream; sessions are never pooled or
// shared between calls, and both connections are released on every exit
// path.
type SessionForwarder struct {
	base   string
	stream *http.Client
	post   *http.Client
}

// NewSessionForwarder creates a forwarder for the given backend base URL.
// The stream client reads the long-lived event source and must not enforce a
// whole-request timeout; the post client submits messages.
func NewSessionForwarder(baseURL string, stream, post *http.Client) *SessionForwarder {
	if stream == nil {
		stream = http.DefaultClient
	}
	if post == nil {
		post = http.DefaultClient
	}
	return &SessionForwarder{base: baseURL, stream: stream, post: post}
}

// Forward runs the handshake for one message and returns the JSON payload to
// relay to the caller. Cancelling ctx tears down both the event stream and
// the submission request.
func (f *SessionForwarder) Forward(ctx context.Context, msg Message) (json.RawMessage, error) {
	log := logx.Log.With().Str("call_id", uuid.NewString()).Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+"/sse", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := f.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("open event stream: status %d", resp.StatusCode)
	}

	sc := newEventScanner(resp.Body)
	submitURL, err := awaitEndpoint(sc, f.base)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("endpoint", submitURL).Msg("session endpoint received")

	if msg.IsNotification() {
		// The stream is abandoned without reading further; the deferred
		// close releases the session.
		if err := f.submit(ctx, submitURL, msg.Raw); err != nil {
			return nil, err
		}
		log.Debug().Msg("notification accepted")
		return notificationAck, nil
	}

	// Submission and event reading progress independently; neither may
	// block the other.
	submitErr := make(chan error, 1)
	go func() { submitErr <- f.submit(ctx, submitURL, msg.Raw) }()

	result, readErr := awaitResponse(sc, msg, log)

	// Submission failure takes priority even when a response event was
	// already captured.
	if err := <-submitErr; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	log.Debug().Msg("response correlated")
	return result, nil
}

// awaitEndpoint reads events until the first endpoint event and returns the
// absolute submission URL.
func awaitEndpoint(sc *eventScanner, base string) (string, error) {
	for {
		ev, err := sc.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrNoEndpoint
			}
			return "", fmt.Errorf("read event stream: %w", err)
		}
		if string(ev.Event) == eventEndpoint {
			return resolveEndpoint(base, string(bytes.TrimSpace(ev.Data))), nil
		}
	}
}

// resolveEndpoint joins the backend base with the advertised submission
// address. Backends normally send a relative path, but some advertise the
// absolute URL.
func resolveEndpoint(base, data string) string {
	if strings.HasPrefix(data, "http://") || strings.HasPrefix(data, "https://") {
		return data
	}
	return base + data
}

// awaitResponse reads events until a message event answers msg. When the
// request id is comparable, message events with a different id are skipped
// and reading continues; otherwise the first message event wins.
func awaitResponse(sc *eventScanner, msg Message, log zerolog.Logger) (json.RawMessage, error) {
	for {
		ev, err := sc.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrNoResponse
			}
			return nil, fmt.Errorf("read event stream: %w", err)
		}
		if string(ev.Event) != eventMessage {
			continue
		}
		var env struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(ev.Data, &env); err != nil {
			return nil, fmt.Errorf("malformed response event: %w", err)
		}
		if msg.hasComparableID() && !sameID(msg.ID, env.ID) {
			log.Warn().RawJSON("want_id", msg.ID).Msg("skipping response event with mismatched id")
			continue
		}
		result := make(json.RawMessage, len(ev.Data))
		copy(result, ev.Data)
		return result, nil
	}
}

// submit posts the message to the session endpoint. Any non-2xx status is an
// error; a success status with a body is drained and discarded, since the
// correlated result arrives on the event stream.
func (f *SessionForwarder) submit(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.post.Do(req)
	if err != nil {
		return fmt.Errorf("submit message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("submit message: status %d", resp.StatusCode)
	}
	return nil
}
