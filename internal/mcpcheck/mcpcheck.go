package mcpcheck

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Transport represents an MCP transport type.
type Transport string

const (
	TransportHTTP Transport = "http"
	TransportSSE  Transport = "sse"
)

// Result captures the outcome of a check.
type Result struct {
	Healthy          bool      `json:"healthy"`
	WorkingTransport Transport `json:"working_transport,omitempty"`
	ToolsCount       int       `json:"tools_count"`
	ProtocolVersion  string    `json:"protocol_version,omitempty"`
	LastError        string    `json:"last_error,omitempty"`
	CheckedAt        time.Time `json:"checked_at"`
}

// Checker probes an MCP backend for health over the streamable HTTP and SSE
// transports. Failures back off exponentially; state lives in memory only.
type Checker struct {
	baseURL string

	mu               sync.Mutex
	lastOKTransport  Transport
	consecutiveFails int
	nextAttempt      time.Time
	last             Result
	hasResult        bool
}

// New creates a Checker for the given backend base URL.
func New(baseURL string) *Checker {
	return &Checker{baseURL: baseURL}
}

// Check runs the health check, preferring the transport that last worked.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if c.consecutiveFails > 0 && time.Now().Before(c.nextAttempt) {
		res := c.last
		c.mu.Unlock()
		return res, errors.New("backoff active")
	}
	preferred := c.lastOKTransport
	c.mu.Unlock()

	var transports []Transport
	if preferred != "" {
		transports = append(transports, preferred)
	}
	for _, t := range []Transport{TransportHTTP, TransportSSE} {
		if t != preferred {
			transports = append(transports, t)
		}
	}

	var lastErr error
	for _, t := range transports {
		res, err := c.tryTransport(ctx, t)
		if err == nil {
			res.Healthy = true
			res.WorkingTransport = t
			res.CheckedAt = time.Now()
			c.mu.Lock()
			c.lastOKTransport = t
			c.consecutiveFails = 0
			c.nextAttempt = time.Time{}
			c.last = res
			c.hasResult = true
			c.mu.Unlock()
			return res, nil
		}
		lastErr = err
	}

	res := Result{LastError: lastErr.Error(), CheckedAt: time.Now()}
	c.mu.Lock()
	c.consecutiveFails++
	c.nextAttempt = time.Now().Add(computeBackoff(c.consecutiveFails))
	c.last = res
	c.hasResult = true
	c.mu.Unlock()
	return res, lastErr
}

// LastResult returns the most recent check outcome, if any.
func (c *Checker) LastResult() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasResult
}

func (c *Checker) tryTransport(ctx context.Context, t Transport) (Result, error) {
	var (
		cl  *client.Client
		err error
	)
	switch t {
	case TransportHTTP:
		cl, err = client.NewStreamableHttpClient(c.baseURL + "/mcp")
	case TransportSSE:
		cl, err = client.NewSSEMCPClient(c.baseURL + "/sse")
	default:
		err = fmt.Errorf("unknown transport %q", t)
	}
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = cl.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := cl.Start(ctx); err != nil {
		return Result{}, fmt.Errorf("start: %w", err)
	}
	initRes, err := cl.Initialize(ctx, mcp.InitializeRequest{})
	if err != nil {
		return Result{}, fmt.Errorf("initialize: %w", err)
	}
	tools, err := cl.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return Result{}, fmt.Errorf("tools/list: %w", err)
	}
	return Result{ToolsCount: len(tools.Tools), ProtocolVersion: initRes.ProtocolVersion}, nil
}

func computeBackoff(fails int) time.Duration {
	base := 30 * time.Second
	max := 5 * time.Minute
	d := base * time.Duration(int(math.Pow(2, float64(fails-1))))
	if d > max {
		d = max
	}
	jitter := rand.Float64()*0.4 - 0.2
	return time.Duration(float64(d) * (1 + jitter))
}
