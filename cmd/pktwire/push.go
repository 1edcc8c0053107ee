package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pktwire/pktwire/client"
	"github.com/pktwire/pktwire/config"
	"github.com/pktwire/pktwire/errs"
	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/packp"
	"github.com/pktwire/pktwire/store"
)

// CmdPush implements "pktwire push <uri> <pack> <ref>=<hash>...". The
// packfile is built elsewhere — this module stops at the wire, never at
// the object store — so push takes an already-built pack and the desired
// hash for each ref, diffed against what the remote currently advertises.
type CmdPush struct {
	cmd

	Args struct {
		URI      string   `positional-arg-name:"uri" required:"true"`
		Pack     string   `positional-arg-name:"pack" required:"true"`
		RefSpecs []string `positional-arg-name:"ref=hash" required:"true"`
	} `positional-args:"yes"`
}

func (CmdPush) Usage() string { return "<uri> <pack> <ref>=<hash>..." }

func (c *CmdPush) Execute(args []string) error {
	desired, err := parseRefSpecs(c.Args.RefSpecs)
	if err != nil {
		return usageError{err}
	}

	pack, err := os.Open(c.Args.Pack)
	if err != nil {
		return usageError{err}
	}
	defer pack.Close()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	ep, err := parseEndpoint(c.Args.URI)
	if err != nil {
		return err
	}
	dialer, err := dialerFor(ep, cfg, &c.cmd)
	if err != nil {
		return err
	}

	cl := &client.Client{
		Dialer:   dialer,
		Endpoint: ep,
		Store:    store.NewMemory(),
		Progress: sidebandProgress(&c.cmd),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	ad, err := cl.Ls(ctx)
	if err != nil {
		return err
	}

	commands := buildPushCommands(ad, desired)

	var res client.PushResult
	err = withSpinner(&c.cmd, "pushing", func() error {
		var perr error
		res, perr = cl.Push(ctx, client.PushOptions{Commands: commands, Packfile: pack})
		return perr
	})
	if err != nil {
		return err
	}

	return reportPush(&c.cmd, res)
}

func parseRefSpecs(specs []string) (map[packp.RefName]hash.Hash, error) {
	desired := map[packp.RefName]hash.Hash{}
	for _, s := range specs {
		name, hex, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("pktwire: ref spec %q is not of the form ref=hash", s)
		}
		h, err := hash.FromHex(hex)
		if err != nil {
			return nil, fmt.Errorf("pktwire: ref spec %q: %w", s, err)
		}
		desired[packp.RefName(name)] = h
	}
	return desired, nil
}

func buildPushCommands(ad *packp.Advertisement, desired map[packp.RefName]hash.Hash) []*packp.Command {
	var commands []*packp.Command
	for name, want := range desired {
		old, known := ad.ByName(name)
		switch {
		case !known:
			commands = append(commands, packp.NewCreateCommand(name, want))
		case old != want:
			commands = append(commands, packp.NewUpdateCommand(name, old, want))
		}
	}
	return commands
}

func reportPush(c *cmd, res client.PushResult) error {
	if res.UnpackError != nil {
		fail("unpack failed: %v", res.UnpackError)
	}
	var rejected error
	for _, s := range res.Statuses {
		if err := s.Error(); err != nil {
			if !c.Quiet {
				fail("  ! %s: %v", s.ReferenceName, err)
			}
			rejected = errs.NewCommandRejected(s.ReferenceName.String(), s.Status)
			continue
		}
		if !c.Quiet {
			ok("  %s", s.ReferenceName)
		}
	}
	if rejected != nil {
		return rejected
	}
	if res.UnpackError != nil {
		return errs.Wrap(errs.ErrRemote, res.UnpackError)
	}
	return nil
}
