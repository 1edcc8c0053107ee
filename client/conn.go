package client

import (
	"context"
	"io"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/errs"
	"github.com/pktwire/pktwire/packp"
	"github.com/pktwire/pktwire/pktline"
	"github.com/pktwire/pktwire/sideband"
	"github.com/pktwire/pktwire/transport"
)

// Dial opens a FrameStream through d and fetches the advertisement eagerly,
// returning a transport.Connection that the high-level operations drive.
// This is the adapter mentioned but not implemented by the transport
// package itself: transport/git, transport/http and transport/ssh each
// produce a FrameStream, and Dial is what turns one into a Connection.
func Dial(ctx context.Context, d transport.Dialer, ep *transport.Endpoint, service transport.Service, auth transport.AuthMethod) (transport.Connection, error) {
	fs, err := d.Dial(ctx, ep, service, auth)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransport, err)
	}

	rs := newRoundAdapter(fs, d.Stateless())
	c := &conn{dialer: d, stream: fs, rs: rs, pr: pktline.NewReader(rs)}
	if _, err := c.GetRemoteRefs(ctx); err != nil {
		fs.Close()
		return nil, err
	}
	return c, nil
}

// conn keeps exactly one buffered pktline.Reader for the whole life of the
// connection: the advertisement, the negotiation rounds and the packfile
// (or report-status) that follows it all read through it, so a bufio fill
// on one step never strands bytes belonging to the next in a reader that
// gets thrown away (§4.3, §4.6, §4.9 — the conversation is one stream).
type conn struct {
	dialer transport.Dialer
	stream transport.FrameStream
	rs     io.ReadWriter
	pr     *pktline.Reader
	ad     *packp.Advertisement
}

func (c *conn) Close() error { return c.stream.Close() }

func (c *conn) Capabilities() *capability.List {
	if c.ad == nil {
		return capability.NewList()
	}
	return c.ad.Capabilities
}

func (c *conn) StatelessRPC() bool { return c.dialer.Stateless() }

func (c *conn) GetRemoteRefs(ctx context.Context) (*packp.Advertisement, error) {
	if c.ad != nil {
		return c.ad, nil
	}
	ad, err := packp.DecodeAdvertisement(c.pr)
	if err != nil {
		return nil, errs.Wrap(errs.ErrMalformedAdvertisement, err)
	}
	c.ad = ad
	return ad, nil
}

// Fetch runs req.Negotiation (expected to drive negotiate.Run) over the
// connection's round-aware stream, then copies the resulting packfile
// bytes — demuxed through side-band if the advertisement carries it — into
// req.PackWriter. Both halves read through c.pr, the same buffered reader
// the advertisement was decoded from, so nothing it already buffered past
// the ACK/NAK line is lost before the pack is read.
func (c *conn) Fetch(ctx context.Context, req *transport.FetchRequest) error {
	if req.Negotiation != nil {
		if err := req.Negotiation(c.rs, c.pr); err != nil {
			return err
		}
	}

	if c.dialer.Stateless() {
		if r, ok := c.rs.(*roundStream); ok && r.wrote {
			if err := c.stream.CloseWrite(); err != nil {
				return errs.Wrap(errs.ErrTransport, err)
			}
		}
	}

	var src io.Reader = c.pr
	if t, ok := sidebandType(c.Capabilities()); ok {
		dm := sideband.NewDemuxer(t, c.pr)
		dm.SetProgress(req.Progress)
		src = dm
	}

	if _, err := io.Copy(req.PackWriter, src); err != nil {
		return errs.Wrap(errs.ErrTransport, err)
	}
	return nil
}

// Push writes the update-requests block followed by the packfile, then
// decodes a report-status reply if report-status was asserted. When
// side-band is also asserted the whole reply is multiplexed on channel 1,
// same as a fetch's pack bytes, so it is demuxed the same way.
func (c *conn) Push(ctx context.Context, req *transport.PushRequest) error {
	if err := req.UpdateRequests.Encode(c.rs); err != nil {
		return errs.Wrap(errs.ErrTransport, err)
	}

	if req.Packfile != nil {
		if _, err := io.Copy(c.rs, req.Packfile); err != nil {
			return errs.Wrap(errs.ErrTransport, err)
		}
	}

	if c.dialer.Stateless() {
		if err := c.stream.CloseWrite(); err != nil {
			return errs.Wrap(errs.ErrTransport, err)
		}
	}

	if req.ReportStatus != nil && req.UpdateRequests.Capabilities.Supports(capability.ReportStatus) {
		var src io.Reader = c.pr
		if t, ok := sidebandType(c.Capabilities()); ok {
			src = sideband.NewDemuxer(t, c.pr)
		}
		if err := req.ReportStatus.Decode(src); err != nil {
			return errs.Wrapf(errs.ErrMalformedFrame, "decoding report-status: %v", err)
		}
	}

	return nil
}

// roundStream adapts a stateless-HTTP FrameStream so negotiate.Run's
// write-then-read round structure works unmodified: the first Read after a
// Write flushes the buffered round (one POST) before reading the response.
// Persistent transports pass through unwrapped, since calling CloseWrite on
// them would half-close the underlying socket for good.
type roundStream struct {
	transport.FrameStream
	wrote bool
}

func newRoundAdapter(fs transport.FrameStream, stateless bool) io.ReadWriter {
	if !stateless {
		return fs
	}
	return &roundStream{FrameStream: fs}
}

func (s *roundStream) Write(p []byte) (int, error) {
	s.wrote = true
	return s.FrameStream.Write(p)
}

func (s *roundStream) Read(p []byte) (int, error) {
	if s.wrote {
		s.wrote = false
		if err := s.FrameStream.CloseWrite(); err != nil {
			return 0, err
		}
	}
	return s.FrameStream.Read(p)
}

func sidebandType(caps *capability.List) (sideband.Type, bool) {
	name, ok := capability.SideBandChoice(caps)
	if !ok {
		return 0, false
	}
	if name == capability.SideBand64k {
		return sideband.Sideband64k, true
	}
	return sideband.Sideband, true
}
