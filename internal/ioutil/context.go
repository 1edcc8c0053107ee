package ioutil

import (
	"context"
	"io"

	ctxio "github.com/jbenet/go-context/io"
)

// NewContextReader wraps r so that a blocking Read returns early with
// ctx.Err() once ctx is done. As with the underlying ctxio package, this
// does not cancel the wrapped Read itself — it abandons the result on the
// caller's side, so the caller must still arrange for the real I/O
// (typically a net.Conn) to unblock on its own, e.g. by closing it.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return ctxio.NewReader(ctx, r)
}

// NewContextWriter wraps w the same way NewContextReader wraps a Reader.
func NewContextWriter(ctx context.Context, w io.Writer) io.Writer {
	return ctxio.NewWriter(ctx, w)
}

// NewContextReadCloser wraps r with cancellation and pairs it with closer,
// so a single Close both releases the context-aware wrapper's resources
// (none, in the ctxio implementation) and the underlying stream.
func NewContextReadCloser(ctx context.Context, r io.Reader, closer io.Closer) io.ReadCloser {
	return NewReadCloser(NewContextReader(ctx, r), closer)
}

// NewContextWriteCloser wraps w with cancellation and pairs it with closer.
func NewContextWriteCloser(ctx context.Context, w io.Writer, closer io.Closer) io.WriteCloser {
	return NewWriteCloser(NewContextWriter(ctx, w), closer)
}
