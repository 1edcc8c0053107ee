// Package http implements the stateless smart-HTTP dialer: the
// advertisement is fetched with a GET, and each subsequent phase is one
// POST whose body is the accumulated pkt-line request and whose response
// body is the pkt-line reply (§4.8 stateless-http).
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pktwire/pktwire/transport"
)

// Dialer issues smart-HTTP requests through an *http.Client, which may
// itself be configured with an HTTP/HTTPS proxy (§6, mirroring go-git's
// custom_http_client pattern).
type Dialer struct {
	Client *http.Client
}

func (d *Dialer) Stateless() bool { return true }

func (d *Dialer) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

// Dial returns a stream whose first Read fetches the ref advertisement via
// GET info/refs?service=<service>; writes buffer the next phase's request
// body until CloseWrite triggers the POST.
func (d *Dialer) Dial(ctx context.Context, ep *transport.Endpoint, service transport.Service, auth transport.AuthMethod) (transport.FrameStream, error) {
	base := ep.String()
	return &stream{
		ctx:     ctx,
		client:  d.client(),
		baseURL: base,
		service: service,
		auth:    auth,
	}, nil
}

type stream struct {
	ctx     context.Context
	client  *http.Client
	baseURL string
	service transport.Service
	auth    transport.AuthMethod

	out     bytes.Buffer
	in      io.Reader
	started bool
}

// contentType returns the content type for the phase that follows the
// advertisement (upload-pack-request / receive-pack-request).
func (s *stream) contentType() string {
	switch s.service {
	case transport.UploadPackService:
		return "application/x-git-upload-pack-request"
	default:
		return "application/x-git-receive-pack-request"
	}
}

func (s *stream) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *stream) Read(p []byte) (int, error) {
	if s.in == nil {
		if err := s.fetchAdvertisement(); err != nil {
			return 0, err
		}
	}
	return s.in.Read(p)
}

func (s *stream) fetchAdvertisement() error {
	u := fmt.Sprintf("%s/info/refs?service=%s", s.baseURL, url.QueryEscape(string(s.service)))
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http: GET %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http: GET %s: status %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	s.in = bytes.NewReader(body)
	return nil
}

// CloseWrite POSTs the buffered request body and makes the response
// available to subsequent Read calls.
func (s *stream) CloseWrite() error {
	u := fmt.Sprintf("%s/%s", s.baseURL, s.service)
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, u, bytes.NewReader(s.out.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", s.contentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http: POST %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http: POST %s: status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	s.in = bytes.NewReader(body)
	s.out.Reset()
	return nil
}

func (s *stream) Close() error { return nil }
