package main

import (
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

func isStderrTTY() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}

func info(format string, args ...interface{}) { color.New(color.FgBlue).Fprintf(os.Stderr, format+"\n", args...) }
func warn(format string, args ...interface{}) { color.New(color.FgCyan).Fprintf(os.Stderr, format+"\n", args...) }
func fail(format string, args ...interface{}) { color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...) }
func ok(format string, args ...interface{})   { color.New(color.FgGreen).Fprintf(os.Stderr, format+"\n", args...) }

// sidebandProgress returns an io.Writer suitable for client.Client.Progress:
// the remote's band-2 progress text is written straight to stderr. When the
// command doesn't want progress the text is discarded entirely, since the
// side-band progress channel is advisory, never required for correctness.
func sidebandProgress(c *cmd) io.Writer {
	if !c.wantsProgress() {
		return io.Discard
	}
	return os.Stderr
}

// withSpinner runs fn while showing an indeterminate bar labelled label,
// covering the dial-negotiate-receive span that client.Client doesn't
// otherwise report incremental progress for.
func withSpinner(c *cmd, label string, fn func() error) error {
	if !c.wantsProgress() {
		return fn()
	}

	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithRefreshRate(150 * time.Millisecond))
	bar := p.New(0,
		mpb.SpinnerStyle().PositionLeft(),
		mpb.PrependDecorators(decor.Name(label)),
		mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
	)

	errc := make(chan error, 1)
	go func() { errc <- fn() }()

	for {
		select {
		case err := <-errc:
			bar.Abort(true)
			p.Wait()
			return err
		case <-time.After(150 * time.Millisecond):
			bar.Increment()
		}
	}
}
