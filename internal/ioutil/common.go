// Package ioutil implements small I/O utility types shared across the
// transport and negotiation layers: closer adapters and context-cancellable
// wrappers around blocking readers/writers.
package ioutil

import (
	"errors"
	"io"
)

type (
	CloserFunc func() error
	WriterFunc func([]byte) (int, error)
	ReaderFunc func([]byte) (int, error)
)

func (f CloserFunc) Close() error                { return f() }
func (f WriterFunc) Write(p []byte) (int, error) { return f(p) }
func (f ReaderFunc) Read(p []byte) (int, error)  { return f(p) }

var (
	_ io.Closer = CloserFunc(nil)
	_ io.Writer = WriterFunc(nil)
	_ io.Reader = ReaderFunc(nil)
)

type multiCloser struct{ closers []io.Closer }

func (mc *multiCloser) Close() error {
	var errs []error
	for _, c := range mc.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiCloser returns a closer that sequentially closes the given closers,
// merging any errors via errors.Join. Used to close a FrameStream's
// underlying connection alongside any buffering it wraps.
func MultiCloser(closers ...io.Closer) io.Closer {
	return &multiCloser{closers: closers}
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error { return r.closer.Close() }

// NewReadCloser pairs a Reader with a Closer that has no Close method of
// its own, such as the context-wrapped readers in this package.
func NewReadCloser(r io.Reader, c io.Closer) io.ReadCloser {
	return &readCloser{Reader: r, closer: c}
}

type writeCloser struct {
	io.Writer
	closer io.Closer
}

func (w *writeCloser) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// NewWriteCloser pairs a Writer with a Closer that has no Close method of
// its own.
func NewWriteCloser(w io.Writer, c io.Closer) io.WriteCloser {
	return &writeCloser{Writer: w, closer: c}
}

type writeNopCloser struct{ io.Writer }

func (writeNopCloser) Close() error { return nil }

// WriteNopCloser returns a WriteCloser with a no-op Close wrapping w.
func WriteNopCloser(w io.Writer) io.WriteCloser {
	return writeNopCloser{w}
}

// CheckClose calls Close on c and, if *err is nil, assigns the error
// returned by Close to it. Intended for use with defer so a deferred Close
// failure is not silently dropped when the function otherwise succeeded.
func CheckClose(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
