package bridge

import (
	"net/http"
	"time"
)

// Transport mode names, matching the configuration surface.
const (
	TransportSSE    = "sse"
	TransportStream = "stream"
)

// Options configures a Bridge. The backend address and transport mode are
// fixed at construction; there is no per-message override.
type Options struct {
	// BaseURL is the MCP backend base address, without trailing slash.
	BaseURL string
	// Transport selects the forwarding strategy, TransportSSE or
	// TransportStream.
	Transport string
	// PostTimeout bounds a single submission POST. Zero uses a default of
	// 30 seconds.
	PostTimeout time.Duration
}

// Bridge routes inbound messages to one of the two forwarding strategies.
type Bridge struct {
	transport string
	direct    *DirectForwarder
	session   *SessionForwarder
}

// New constructs a Bridge from opts.
func New(opts Options) *Bridge {
	postTimeout := opts.PostTimeout
	if postTimeout == 0 {
		postTimeout = 30 * time.Second
	}
	// The stream client carries no whole-request timeout: the event source
	// stays open for the duration of the call and is bounded by the call
	// context instead.
	streamClient := &http.Client{}
	postClient := &http.Client{Timeout: postTimeout}
	return &Bridge{
		transport: opts.Transport,
		direct:    NewDirectForwarder(opts.BaseURL, postClient),
		session:   NewSessionForwarder(opts.BaseURL, streamClient, postClient),
	}
}

// Transport returns the configured transport mode.
func (b *Bridge) Transport() string { return b.transport }

// Direct returns the direct-forward strategy.
func (b *Bridge) Direct() *DirectForwarder { return b.direct }

// Session returns the session-handshake strategy.
func (b *Bridge) Session() *SessionForwarder { return b.session }
