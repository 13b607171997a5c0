// Package proxy implements the Proxy Gateway: two loopback TCP listeners
// (HTTP CONNECT + plain HTTP, and SOCKS5) that enforce per-host network
// permissions for sandboxed shell commands (spec §4.5). It is process-wide,
// started on demand the first time a sandboxed command needs network
// access, and torn down at process exit.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/kestrelcode/kestrel/internal/log"
)

// Decision is the result of a permission check for one host.
type Decision struct {
	Allow   bool
	Message string
}

// PermissionFunc asks the user (or a policy) whether host may be reached.
// Calls for the same host are coalesced by the Gateway; all calls are
// additionally serialized one-at-a-time to avoid overlapping UI prompts.
type PermissionFunc func(ctx context.Context, host string) (Decision, error)

// Policy is the static allow/deny rule set merged from settings. Deny wins
// over allow; both use the "*.foo.bar matches any host ending in .foo.bar"
// rule, case-insensitive, otherwise exact match.
type Policy struct {
	Allow []string
	Deny  []string
}

// classify returns (allowed, matched) if a static rule resolves host,
// matched=false if neither list names it and the permission callback must
// be consulted.
func (p Policy) classify(host string) (allowed bool, matched bool) {
	for _, pat := range p.Deny {
		if matchHost(host, pat) {
			return false, true
		}
	}
	for _, pat := range p.Allow {
		if matchHost(host, pat) {
			return true, true
		}
	}
	return false, false
}

func matchHost(host, pattern string) bool {
	host = lower(host)
	pattern = lower(pattern)
	if len(pattern) > 2 && pattern[0] == '*' && pattern[1] == '.' {
		suffix := pattern[2:]
		return len(host) > len(suffix) && host[len(host)-len(suffix)-1:] == "."+suffix
	}
	return host == pattern
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Gateway is one process-wide instance of the Proxy Gateway.
type Gateway struct {
	Policy     Policy
	AskUser    PermissionFunc
	AllowLocal bool // spec's allowLocalBinding / network.allowLocalBinding

	mu        sync.Mutex
	cache     map[string]Decision
	inflight  map[string]chan Decision
	promptSem chan struct{} // size 1: serializes permission prompts

	httpListener  net.Listener
	socksListener net.Listener
	httpPort      int
	socksPort     int

	cancel context.CancelFunc
}

// New creates a Gateway bound to no ports yet; call Start to bind.
func New(policy Policy, ask PermissionFunc, allowLocal bool) *Gateway {
	return &Gateway{
		Policy:     policy,
		AskUser:    ask,
		AllowLocal: allowLocal,
		cache:      make(map[string]Decision),
		inflight:   make(map[string]chan Decision),
		promptSem:  make(chan struct{}, 1),
	}
}

// Start binds both listeners to 127.0.0.1 on ephemeral ports and begins
// serving. Safe to call once per Gateway.
func (g *Gateway) Start(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("proxy: bind http listener: %w", err)
	}
	socksLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("proxy: bind socks listener: %w", err)
	}

	g.httpListener = httpLn
	g.socksListener = socksLn
	g.httpPort = httpLn.Addr().(*net.TCPAddr).Port
	g.socksPort = socksLn.Addr().(*net.TCPAddr).Port

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	go g.serveHTTP(runCtx)
	go g.serveSOCKS(runCtx)

	log.Logger().Sugar().Infof("proxy gateway started http=%d socks=%d", g.httpPort, g.socksPort)
	return nil
}

// Stop closes both listeners and cancels any in-flight connections.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	if g.httpListener != nil {
		g.httpListener.Close()
	}
	if g.socksListener != nil {
		g.socksListener.Close()
	}
}

// HTTPPort returns the bound HTTP/CONNECT listener's port.
func (g *Gateway) HTTPPort() int { return g.httpPort }

// SOCKSPort returns the bound SOCKS5 listener's port.
func (g *Gateway) SOCKSPort() int { return g.socksPort }

// checkHost resolves the allow/deny decision for host: static rules first
// (deny wins), falling back to the coalesced, serialized permission
// callback, with the result cached for the rest of the session.
func (g *Gateway) checkHost(ctx context.Context, host string) (Decision, error) {
	g.mu.Lock()
	if d, ok := g.cache[host]; ok {
		g.mu.Unlock()
		return d, nil
	}
	if allowed, matched := g.Policy.classify(host); matched {
		d := Decision{Allow: allowed}
		g.cache[host] = d
		g.mu.Unlock()
		return d, nil
	}
	if ch, ok := g.inflight[host]; ok {
		g.mu.Unlock()
		d := <-ch
		return d, nil
	}

	ch := make(chan Decision, 1)
	g.inflight[host] = ch
	g.mu.Unlock()

	d, err := g.askSerialized(ctx, host)
	if err != nil {
		d = Decision{Allow: false, Message: err.Error()}
	}

	g.mu.Lock()
	g.cache[host] = d
	delete(g.inflight, host)
	g.mu.Unlock()

	ch <- d
	return d, nil
}

func (g *Gateway) askSerialized(ctx context.Context, host string) (Decision, error) {
	if g.AskUser == nil {
		return Decision{Allow: false, Message: "no network permission callback configured"}, nil
	}

	select {
	case g.promptSem <- struct{}{}:
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
	defer func() { <-g.promptSem }()

	return g.AskUser(ctx, host)
}
