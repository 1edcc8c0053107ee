// Package git implements the persistent-stream "git://" dialer: a plain
// TCP connection (optionally via a SOCKS5 proxy) carrying the
// git-daemon request line followed by the pkt-line conversation.
package git

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"github.com/pktwire/pktwire/pktline"
	"github.com/pktwire/pktwire/transport"
)

// Dialer opens git:// connections, optionally through a SOCKS5 proxy
// (§6 "proxy settings from the transport layer").
type Dialer struct {
	// ProxyURL, when set, is a socks5://host:port address the dial goes
	// through instead of a direct net.Dial.
	ProxyURL string
	Timeout  time.Duration
}

func (d *Dialer) Stateless() bool { return false }

func (d *Dialer) Dial(ctx context.Context, ep *transport.Endpoint, service transport.Service, auth transport.AuthMethod) (transport.FrameStream, error) {
	addr := fmt.Sprintf("%s:%d", ep.Host, port(ep))

	var conn net.Conn
	var err error

	if d.ProxyURL != "" {
		dialer, derr := proxy.SOCKS5("tcp", strings.TrimPrefix(d.ProxyURL, "socks5://"), nil, proxy.Direct)
		if derr != nil {
			return nil, fmt.Errorf("git: socks5 dialer: %w", derr)
		}
		conn, err = dialer.Dial("tcp", addr)
	} else {
		netDialer := &net.Dialer{Timeout: d.Timeout}
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("git: dial %s: %w", addr, err)
	}

	requestLine := fmt.Sprintf("%s %s\x00host=%s\x00", service, ep.Path, ep.Host)
	if err := pktline.EncodeString(conn, requestLine[:len(requestLine)-1]+"\x00"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("git: sending request line: %w", err)
	}

	return &stream{Conn: conn}, nil
}

func port(ep *transport.Endpoint) int {
	if ep.Port > 0 {
		return ep.Port
	}
	return 9418
}

// stream wraps a net.Conn to satisfy transport.FrameStream; CloseWrite
// calls the connection's half-close where supported.
type stream struct {
	net.Conn
}

func (s *stream) CloseWrite() error {
	if cw, ok := s.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
