package proxy

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/kestrelcode/kestrel/internal/log"
)

const (
	socksVersion5   = 0x05
	socksCmdConnect = 0x01

	addrIPv4   = 0x01
	addrDomain = 0x03
	addrIPv6   = 0x04

	replySuccess     = 0x00
	replyNotAllowed  = 0x02
	replyGeneralFail = 0x05
)

func (g *Gateway) serveSOCKS(ctx context.Context) {
	for {
		conn, err := g.socksListener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Logger().Sugar().Warnf("proxy: socks accept: %v", err)
			continue
		}
		go g.handleSOCKSConn(ctx, conn)
	}
}

func (g *Gateway) handleSOCKSConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	if !socksGreet(conn) {
		return
	}

	host, port, err := socksReadRequest(conn)
	if err != nil {
		socksReply(conn, replyGeneralFail)
		return
	}

	decision, err := g.checkHost(ctx, host)
	if err != nil || !decision.Allow {
		socksReply(conn, replyNotAllowed)
		return
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	upstream, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		socksReply(conn, replyGeneralFail)
		return
	}
	defer upstream.Close()

	if !socksReply(conn, replySuccess) {
		return
	}
	conn.SetDeadline(time.Time{})
	pipe(conn, upstream)
}

// socksGreet consumes the no-auth client greeting and replies "no
// authentication required", returning false if the client offered no
// acceptable method.
func socksGreet(conn net.Conn) bool {
	head := make([]byte, 2)
	if _, err := io.ReadFull(conn, head); err != nil || head[0] != socksVersion5 {
		return false
	}
	n := int(head[1])
	methods := make([]byte, n)
	if _, err := io.ReadFull(conn, methods); err != nil {
		return false
	}
	conn.Write([]byte{socksVersion5, 0x00})
	return true
}

// socksReadRequest parses a CONNECT request (the only command this gateway
// implements) and returns the requested host and port.
func socksReadRequest(conn net.Conn) (string, int, error) {
	head := make([]byte, 4)
	if _, err := io.ReadFull(conn, head); err != nil {
		return "", 0, err
	}
	if head[0] != socksVersion5 || head[1] != socksCmdConnect {
		return "", 0, fmt.Errorf("socks5: unsupported command %d", head[1])
	}

	var host string
	switch head[3] {
	case addrIPv4:
		b := make([]byte, 4)
		if _, err := io.ReadFull(conn, b); err != nil {
			return "", 0, err
		}
		host = net.IP(b).String()
	case addrIPv6:
		b := make([]byte, 16)
		if _, err := io.ReadFull(conn, b); err != nil {
			return "", 0, err
		}
		host = net.IP(b).String()
	case addrDomain:
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenByte); err != nil {
			return "", 0, err
		}
		b := make([]byte, lenByte[0])
		if _, err := io.ReadFull(conn, b); err != nil {
			return "", 0, err
		}
		host = string(b)
	default:
		return "", 0, fmt.Errorf("socks5: unsupported address type %d", head[3])
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return "", 0, err
	}
	port := binary.BigEndian.Uint16(portBuf)
	return host, int(port), nil
}

// socksReply writes a CONNECT reply with an all-zero bound address, which
// is sufficient since this gateway never lets the client learn the real
// upstream address.
func socksReply(conn net.Conn, code byte) bool {
	reply := []byte{socksVersion5, code, 0x00, addrIPv4, 0, 0, 0, 0, 0, 0}
	_, err := conn.Write(reply)
	return err == nil && code == replySuccess
}
