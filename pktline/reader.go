package pktline

import (
	"bufio"
	"io"
)

// Reader adapts an io.Reader into a stream of Frames, buffering internally
// so callers can interleave PeekKind with ReadFrame.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader that decodes frames from r. If r is already a
// Reader or a *bufio.Reader, it is reused rather than wrapped again, so
// passing the same Reader through successive Decode calls (advertisement,
// negotiation, pack receive, ...) never drops bytes an earlier call's
// bufio buffered but didn't consume.
func NewReader(r io.Reader) *Reader {
	if pr, ok := r.(*Reader); ok {
		return pr
	}
	if br, ok := r.(*bufio.Reader); ok {
		return &Reader{br: br}
	}
	return &Reader{br: bufio.NewReaderSize(r, MaxPayloadSize64k+lenSize)}
}

// Read implements io.Reader over the buffered stream, letting a Reader
// stand in wherever a plain byte stream is expected (packfile receive,
// side-band demuxing) without losing whatever it has already buffered.
func (r *Reader) Read(p []byte) (int, error) {
	return r.br.Read(p)
}

// ReadFrame decodes and consumes the next frame.
func (r *Reader) ReadFrame() (Frame, error) {
	return Decode(r.br)
}

// PeekKind reports the Kind of the next frame without consuming it, for
// callers that need to look ahead one frame.
func (r *Reader) PeekKind() (Kind, error) {
	hdr, err := r.br.Peek(lenSize)
	if err != nil {
		return 0, err
	}

	length, err := decodeLen(hdr)
	if err != nil {
		return 0, err
	}

	switch length {
	case 0:
		return KindFlush, nil
	case 1:
		return KindDelim, nil
	case 2:
		return KindResponseEnd, nil
	default:
		return KindData, nil
	}
}

// ReadUntilFlush reads data frames until a flush-pkt, delim-pkt or
// response-end-pkt is seen (and consumed), returning the payloads of
// the data frames in order. It is the common shape of every "section of
// lines terminated by flush" construct in the protocol (advertisement,
// want/have block, shallow list, ...).
func (r *Reader) ReadUntilFlush() ([][]byte, error) {
	var lines [][]byte
	for {
		f, err := r.ReadFrame()
		if err != nil {
			return lines, err
		}

		switch f.Kind {
		case KindFlush:
			return lines, nil
		case KindData:
			lines = append(lines, f.Payload)
		default:
			return lines, nil
		}
	}
}
