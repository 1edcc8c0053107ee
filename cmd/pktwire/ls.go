package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pktwire/pktwire/client"
	"github.com/pktwire/pktwire/config"
	"github.com/pktwire/pktwire/store"
)

// CmdLs implements "pktwire ls <uri>": advertisement only, no negotiation.
type CmdLs struct {
	cmd

	Args struct {
		URI string `positional-arg-name:"uri" required:"true"`
	} `positional-args:"yes"`
}

func (CmdLs) Usage() string { return "<uri>" }

func (c *CmdLs) Execute(args []string) error {
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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ad, err := cl.Ls(ctx)
	if err != nil {
		return err
	}

	for _, r := range ad.Refs {
		suffix := ""
		if r.Peeled {
			suffix = "^{}"
		}
		fmt.Println(r.Hash.String() + "\t" + r.Name.String() + suffix)
	}
	return nil
}
