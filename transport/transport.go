// Package transport defines the adapter that maps one logical protocol
// conversation onto either a persistent bidirectional byte stream or a
// sequence of stateless HTTP request/response exchanges (§4.8). The core
// engine (negotiate, packp, packfile) reads and writes plain byte streams
// that a Connection supplies; dialing actual sockets is left to the
// git/http/ssh subpackages.
package transport

import (
	"context"
	"fmt"
	"io"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/packp"
)

// Endpoint identifies a remote repository location, independent of which
// concrete transport reaches it.
type Endpoint struct {
	Protocol string // "git", "http", "https", "ssh"
	Host     string
	Port     int
	Path     string
	User     string
	Password string
}

func (e *Endpoint) String() string {
	if e.Port > 0 {
		return fmt.Sprintf("%s://%s:%d%s", e.Protocol, e.Host, e.Port, e.Path)
	}
	return fmt.Sprintf("%s://%s%s", e.Protocol, e.Host, e.Path)
}

// AuthMethod is a transport-specific credential (basic auth, SSH key,
// token...); concrete transports accept their own implementations.
type AuthMethod interface {
	Name() string
	String() string
}

// Service names the git service being invoked, carried in the smart-HTTP
// URL path and the SSH command line.
type Service string

const (
	UploadPackService  Service = "git-upload-pack"
	ReceivePackService Service = "git-receive-pack"
)

// FrameStream is the bidirectional byte-stream abstraction the engine
// reads/writes pkt-lines against, regardless of whether the underlying
// transport is a long-lived socket or a one-shot HTTP POST body.
type FrameStream interface {
	io.Reader
	io.Writer
	// CloseWrite signals that no further data will be written (the
	// stateless-HTTP equivalent of half-closing a socket: POSTs the
	// buffered body and makes the response available to Read).
	CloseWrite() error
	io.Closer
}

// Connection is a single, already-advertised session with a remote,
// following go-git's shape: Capabilities describes what the
// handshake observed, StatelessRPC distinguishes the two transport
// variants the engine must branch on (§4.8), and Fetch/Push run one full
// operation end to end.
type Connection interface {
	io.Closer

	Capabilities() *capability.List
	StatelessRPC() bool

	GetRemoteRefs(ctx context.Context) (*packp.Advertisement, error)

	Fetch(ctx context.Context, req *FetchRequest) error
	Push(ctx context.Context, req *PushRequest) error
}

// FetchRequest carries everything Connection.Fetch needs from the
// negotiation engine down to the transport.
type FetchRequest struct {
	Wants       []byte // encoded upload-request + haves; transport-opaque
	PackWriter  io.Writer
	Progress    io.Writer
	Negotiation func(w io.Writer, r io.Reader) error
}

// PushRequest carries a pre-built update-requests block and packfile.
type PushRequest struct {
	UpdateRequests *packp.UpdateRequests
	Packfile       io.Reader
	ReportStatus   *packp.ReportStatus
}

// Dialer opens a FrameStream for one service against an endpoint. Each of
// transport/git, transport/http and transport/ssh provides one.
type Dialer interface {
	Dial(ctx context.Context, ep *Endpoint, service Service, auth AuthMethod) (FrameStream, error)
	// Stateless reports whether this dialer's streams must be treated as
	// stateless-HTTP (full want/have re-send per round, §4.8).
	Stateless() bool
}
