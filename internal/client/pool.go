package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tfgate/tfgate/internal/toolerr"
)

// Options configures a Pool.
type Options struct {
	Endpoint    string
	PoolSize    int
	CallTimeout time.Duration
	MaxAttempts int
	Log         zerolog.Logger
}

// Pool holds up to PoolSize connections to one endpoint. Calls go to the
// connection with the fewest outstanding requests; failed connections are
// evicted and replaced on demand.
type Pool struct {
	opts Options

	mu    sync.Mutex
	conns []*conn
}

// newBackOff builds the retry schedule for one call. Var so tests can
// shrink the intervals.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// Tools that never change infrastructure. Only these are safe to retry
// after a transport failure, since the first attempt may have reached the
// server.
var readOnlyTools = map[string]struct{}{
	"plan_infrastructure":    {},
	"validate_configuration": {},
	"show_state":             {},
	"list_infrastructure":    {},
	"estimate_cost":          {},
}

func NewPool(opts Options) *Pool {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Pool{opts: opts}
}

// Connect establishes the first connection, blocking until the handshake
// completes. Remaining pool slots fill lazily under load.
func (p *Pool) Connect(ctx context.Context) error {
	c, err := dialEndpoint(ctx, p.opts.Endpoint)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.conns = append(p.conns, c)
	p.mu.Unlock()

	p.opts.Log.Info().Str("endpoint", p.opts.Endpoint).Msg("connected")
	return nil
}

// Close shuts down every connection.
func (p *Pool) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()

	for _, c := range conns {
		_ = c.close()
	}
}

// DiscoverTools fetches the server's tool catalog.
func (p *Pool) DiscoverTools(ctx context.Context) ([]ToolInfo, error) {
	c, err := p.checkout(ctx)
	if err != nil {
		return nil, err
	}
	defer p.checkin(c)

	tools, err := c.listTools(ctx)
	if err != nil {
		p.evict(c)
		return nil, toolerr.New(toolerr.KindConnectionClosed, "listing tools: %v", err)
	}

	infos := make([]ToolInfo, len(tools))
	for i, t := range tools {
		schema, _ := json.Marshal(t.InputSchema)
		infos[i] = ToolInfo{Name: t.Name, Description: t.Description, InputSchema: schema}
	}
	return infos, nil
}

// Invoke calls a tool and returns its payload. Transport failures on
// read-only tools are retried with exponential backoff; mutating tools
// and tool-level errors are never retried.
func (p *Pool) Invoke(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	var payload json.RawMessage

	op := func() error {
		data, err := p.attempt(ctx, tool, args)
		if err != nil {
			if p.shouldRetry(tool, err) {
				p.opts.Log.Warn().Str("tool", tool).Err(err).Msg("retrying after transport failure")
				return err
			}
			return backoff.Permanent(err)
		}
		payload = data
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), uint64(p.opts.MaxAttempts-1)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *Pool) shouldRetry(tool string, err error) bool {
	kind, ok := toolerr.KindOf(err)
	if !ok || !toolerr.Retryable(kind) {
		return false
	}
	_, readOnly := readOnlyTools[tool]
	return readOnly
}

func (p *Pool) attempt(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	c, err := p.checkout(ctx)
	if err != nil {
		return nil, err
	}
	defer p.checkin(c)

	callCtx := ctx
	if p.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.opts.CallTimeout)
		defer cancel()
	}

	res, err := c.callTool(callCtx, tool, args)
	if err != nil {
		// The per-call deadline firing is a slow server, not a broken
		// connection; the outer context belongs to the caller.
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, toolerr.New(toolerr.KindCallTimeout, "call to %s exceeded %s", tool, p.opts.CallTimeout)
		}
		if isToolMissing(err) {
			return nil, toolerr.New(toolerr.KindToolNotFound, "tool %q is not registered on the server", tool)
		}
		p.evict(c)
		return nil, toolerr.New(toolerr.KindConnectionClosed, "calling %s: %v", tool, err)
	}
	return decodeResult(res)
}

func isToolMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tool not found") || strings.Contains(msg, "unknown tool")
}

// checkout returns the live connection with the fewest outstanding calls,
// dialing a new one while the pool is below capacity and every existing
// connection is busy. The lock is held across the dial so concurrent
// checkouts cannot overshoot the pool size.
func (p *Pool) checkout(ctx context.Context) (*conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *conn
	for _, c := range p.conns {
		if c.broken {
			continue
		}
		if best == nil || c.outstanding < best.outstanding {
			best = c
		}
	}
	if best != nil && (best.outstanding == 0 || p.liveCountLocked() >= p.opts.PoolSize) {
		best.outstanding++
		return best, nil
	}

	c, err := dialEndpoint(ctx, p.opts.Endpoint)
	if err != nil {
		return nil, err
	}
	p.conns = append(p.conns, c)
	c.outstanding++
	return c, nil
}

func (p *Pool) liveCountLocked() int {
	n := 0
	for _, c := range p.conns {
		if !c.broken {
			n++
		}
	}
	return n
}

func (p *Pool) checkin(c *conn) {
	p.mu.Lock()
	c.outstanding--
	p.mu.Unlock()
}

// evict drops a connection from rotation and closes it. The slot is
// refilled by the next checkout that needs it.
func (p *Pool) evict(c *conn) {
	p.mu.Lock()
	if c.broken {
		p.mu.Unlock()
		return
	}
	c.broken = true
	for i, cur := range p.conns {
		if cur == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	_ = c.close()
	p.opts.Log.Warn().Str("endpoint", p.opts.Endpoint).Msg("connection evicted")
}
