package main

import (
	"context"
	"time"

	"github.com/pktwire/pktwire/client"
	"github.com/pktwire/pktwire/config"
	"github.com/pktwire/pktwire/packp"
	"github.com/pktwire/pktwire/store"
)

// CmdClone implements "pktwire clone <uri>": fetch-all followed by HEAD
// resolution, matching go-git's CLI clone command in spirit (§4.9 clone),
// except the destination is a report, not a checked-out worktree — the
// object store this module talks to is out of scope here.
type CmdClone struct {
	cmd

	Args struct {
		URI string `positional-arg-name:"uri" required:"true"`
	} `positional-args:"yes"`
}

func (CmdClone) Usage() string { return "<uri>" }

func (c *CmdClone) Execute(args []string) error {
	return withFetchClient(&c.cmd, c.Args.URI, func(cl *client.Client) error {
		var res client.FetchSomeResult
		err := withSpinner(&c.cmd, "cloning", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			res = cl.Clone(ctx)
			return res.Err
		})
		reportFetchSome(&c.cmd, res)
		return err
	})
}

// CmdFetchOne implements "pktwire fetch-one <uri> <ref>".
type CmdFetchOne struct {
	cmd

	Args struct {
		URI string        `positional-arg-name:"uri" required:"true"`
		Ref packp.RefName `positional-arg-name:"ref" required:"true"`
	} `positional-args:"yes"`
}

func (CmdFetchOne) Usage() string { return "<uri> <ref>" }

func (c *CmdFetchOne) Execute(args []string) error {
	return withFetchClient(&c.cmd, c.Args.URI, func(cl *client.Client) error {
		var res client.FetchSomeResult
		err := withSpinner(&c.cmd, "fetching "+c.Args.Ref.String(), func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			res = cl.FetchOne(ctx, c.Args.Ref)
			return res.Err
		})
		reportFetchSome(&c.cmd, res)
		return err
	})
}

// CmdFetchAll implements "pktwire fetch-all <uri>".
type CmdFetchAll struct {
	cmd

	Args struct {
		URI string `positional-arg-name:"uri" required:"true"`
	} `positional-args:"yes"`
}

func (CmdFetchAll) Usage() string { return "<uri>" }

func (c *CmdFetchAll) Execute(args []string) error {
	return withFetchClient(&c.cmd, c.Args.URI, func(cl *client.Client) error {
		var res client.FetchSomeResult
		err := withSpinner(&c.cmd, "fetching all refs", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			res = cl.FetchAll(ctx)
			return res.Err
		})
		reportFetchSome(&c.cmd, res)
		return err
	})
}

func withFetchClient(c *cmd, uri string, fn func(*client.Client) error) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	ep, err := parseEndpoint(uri)
	if err != nil {
		return err
	}
	dialer, err := dialerFor(ep, cfg, c)
	if err != nil {
		return err
	}

	cl := &client.Client{
		Dialer:   dialer,
		Endpoint: ep,
		Store:    store.NewMemory(),
		Progress: sidebandProgress(c),
	}
	return fn(cl)
}

func reportFetchSome(c *cmd, res client.FetchSomeResult) {
	if c.Quiet {
		return
	}
	for _, u := range res.Updated {
		ok("  %s -> %s", u.Hash.String(), u.Name.String())
	}
	if res.Err != nil {
		fail("fetch failed: %v", res.Err)
		for _, p := range res.Pending {
			warn("  pending: %s", p.String())
		}
		return
	}
	if res.Shallow != nil {
		for _, h := range res.Shallow.Shallow {
			info("  shallow %s", h.String())
		}
	}
}
