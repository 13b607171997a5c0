package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelcode/kestrel/internal/log"
)

func (g *Gateway) serveHTTP(ctx context.Context) {
	for {
		conn, err := g.httpListener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Logger().Sugar().Warnf("proxy: http accept: %v", err)
			continue
		}
		go g.handleHTTPConn(ctx, conn)
	}
}

func (g *Gateway) handleHTTPConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		writeStatusLine(conn, 400, "Bad Request")
		return
	}
	conn.SetReadDeadline(time.Time{})

	if req.Method == http.MethodConnect {
		g.handleConnect(ctx, conn, req)
		return
	}
	g.handlePlainHTTP(ctx, conn, reader, req)
}

func (g *Gateway) handleConnect(ctx context.Context, conn net.Conn, req *http.Request) {
	host, _, err := net.SplitHostPort(req.Host)
	if err != nil {
		host = req.Host
	}

	decision, err := g.checkHost(ctx, host)
	if err != nil || !decision.Allow {
		writeStatusLine(conn, 403, "Forbidden")
		return
	}

	upstream, err := net.DialTimeout("tcp", req.Host, 10*time.Second)
	if err != nil {
		writeStatusLine(conn, 502, "Bad Gateway")
		return
	}
	defer upstream.Close()

	fmt.Fprintf(conn, "HTTP/1.1 200 Connection Established\r\n\r\n")
	pipe(conn, upstream)
}

// handlePlainHTTP rewrites the request line to origin-form and proxies a
// single plain HTTP/1.1 request, per spec §4.5.
func (g *Gateway) handlePlainHTTP(ctx context.Context, conn net.Conn, reader *bufio.Reader, req *http.Request) {
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	if host == "" {
		writeStatusLine(conn, 400, "Bad Request")
		return
	}
	hostOnly, _, err := net.SplitHostPort(host)
	if err != nil {
		hostOnly = host
	}

	decision, err := g.checkHost(ctx, hostOnly)
	if err != nil || !decision.Allow {
		writeStatusLine(conn, 403, "Forbidden")
		return
	}

	addr := host
	if !strings.Contains(addr, ":") {
		addr = addr + ":80"
	}
	upstream, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		writeStatusLine(conn, 502, "Bad Gateway")
		return
	}
	defer upstream.Close()

	req.URL.Scheme = ""
	req.URL.Host = ""
	req.Host = hostOnly
	req.Close = true
	req.Header.Set("Connection", "close")

	if err := req.Write(upstream); err != nil {
		writeStatusLine(conn, 502, "Bad Gateway")
		return
	}
	io.Copy(conn, upstream)
}

func writeStatusLine(conn net.Conn, code int, text string) {
	fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\n\r\n", code, text)
}

func pipe(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() { io.Copy(a, b); done <- struct{}{} }()
	go func() { io.Copy(b, a); done <- struct{}{} }()
	<-done
}
