package git

import (
	"context"
	"net"
	"testing"
	"time"

	socks5 "github.com/armon/go-socks5"
	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/transport"
)

// startEchoServer runs a TCP listener that echoes back whatever it reads,
// standing in for a git-daemon endpoint for the purposes of proving the
// dialer reaches it.
func startEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
	}()

	return ln.Addr().String()
}

func TestDialDirect(t *testing.T) {
	addr := startEchoServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	d := &Dialer{Timeout: 2 * time.Second}
	ep := &transport.Endpoint{Host: host, Port: mustAtoi(t, portStr), Path: "/repo.git"}

	stream, err := d.Dial(context.Background(), ep, transport.UploadPackService, nil)
	require.NoError(t, err)
	defer stream.Close()
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := net.LookupPort("tcp", s)
	if err == nil {
		return n
	}
	var v int
	for _, c := range s {
		v = v*10 + int(c-'0')
	}
	return v
}

func TestDialThroughSocks5Proxy(t *testing.T) {
	target := startEchoServer(t)

	proxyLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer proxyLn.Close()

	srv, err := socks5.New(&socks5.Config{})
	require.NoError(t, err)
	go srv.Serve(proxyLn)

	host, targetPort, err := net.SplitHostPort(target)
	require.NoError(t, err)

	d := &Dialer{ProxyURL: proxyLn.Addr().String(), Timeout: 2 * time.Second}
	ep := &transport.Endpoint{Host: host, Port: mustAtoi(t, targetPort), Path: "/repo.git"}

	stream, err := d.Dial(context.Background(), ep, transport.UploadPackService, nil)
	require.NoError(t, err)
	defer stream.Close()
}
