// Package client implements the high-level operations (§4.9): ls, fetch and
// its derived conveniences (fetch_one, fetch_some, fetch_all, clone), push,
// and update_and_create — built on top of negotiate, packp, packfile,
// sideband and transport.
package client

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/errs"
	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/negotiate"
	"github.com/pktwire/pktwire/packfile"
	"github.com/pktwire/pktwire/packp"
	"github.com/pktwire/pktwire/store"
	"github.com/pktwire/pktwire/transport"
)

// Client bundles everything one conversation with a single remote needs: a
// Dialer for the chosen transport, the remote's Endpoint, a Store to read
// and write objects/refs against, and a spool filesystem for incoming
// packfiles (defaulting to an in-memory one, per §5's "pack spool... must
// be garbage-collected").
type Client struct {
	Dialer   transport.Dialer
	Endpoint *transport.Endpoint
	Auth     transport.AuthMethod
	Store    store.Store
	Progress io.Writer
	Spool    billy.Filesystem
}

func (c *Client) spool() billy.Filesystem {
	if c.Spool != nil {
		return c.Spool
	}
	return memfs.New()
}

// Ls performs the advertisement phase only (§4.9 ls).
func (c *Client) Ls(ctx context.Context) (*packp.Advertisement, error) {
	conn, err := Dial(ctx, c.Dialer, c.Endpoint, transport.UploadPackService, c.Auth)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.GetRemoteRefs(ctx)
}

// FetchOptions configures Fetch. Want is invoked with the server's
// advertisement and returns the wants for this conversation; an empty
// result ends the fetch with no negotiation and no pack (§4.9: "if it
// returns [] return Ok([], 0)").
type FetchOptions struct {
	Want       func(*packp.Advertisement) []hash.Hash
	Haves      []hash.Hash
	Shallows   []hash.Hash
	Deepen     packp.DeepenSpec
	Filter     string
	Negotiator negotiate.Negotiator
	Notify     func(negotiate.ShallowNotification)
}

// FetchResult is what Fetch learned and stored. ObjectCount is 0 and
// PackFollows-equivalent information is absent when the want callback
// declined to fetch anything.
type FetchResult struct {
	Advertisement *packp.Advertisement
	ObjectCount   int
	CommonHaves   []hash.Hash
	Shallow       *negotiate.ShallowNotification
}

// Fetch runs advertisement, negotiation and pack reception, writing every
// resolved object into c.Store. It never touches refs — fetch_one,
// fetch_some, fetch_all and clone do that on top of Fetch (§4.9).
func (c *Client) Fetch(ctx context.Context, opts FetchOptions) (FetchResult, error) {
	conn, err := Dial(ctx, c.Dialer, c.Endpoint, transport.UploadPackService, c.Auth)
	if err != nil {
		return FetchResult{}, err
	}
	defer conn.Close()

	ad, err := conn.GetRemoteRefs(ctx)
	if err != nil {
		return FetchResult{}, err
	}

	wants := opts.Want(ad)
	if len(wants) == 0 {
		return FetchResult{Advertisement: ad}, nil
	}

	negotiator := opts.Negotiator
	if negotiator == nil {
		negotiator = &negotiate.HaveAllRefsOnce{Haves: opts.Haves}
	}

	var shallowResult *negotiate.ShallowNotification
	params := negotiate.Params{
		Wants:        wants,
		Shallows:     opts.Shallows,
		Deepen:       opts.Deepen,
		Filter:       opts.Filter,
		Capabilities: negotiationCapabilities(ad.Capabilities),
		Negotiator:   negotiator,
		Stateless:    conn.StatelessRPC(),
		Notify: func(n negotiate.ShallowNotification) {
			shallowResult = &n
			if opts.Notify != nil {
				opts.Notify(n)
			}
		},
	}

	var outcome negotiate.Outcome
	negotiation := func(w io.Writer, r io.Reader) error {
		o, err := negotiate.Run(w, r, params)
		outcome = o
		return err
	}

	spoolFS := c.spool()
	spoolFile, err := spoolFS.Create(spoolName())
	if err != nil {
		return FetchResult{}, errs.Wrap(errs.ErrStore, err)
	}
	defer func() {
		spoolFile.Close()
		spoolFS.Remove(spoolFile.Name())
	}()

	req := &transport.FetchRequest{
		PackWriter:  spoolFile,
		Progress:    c.Progress,
		Negotiation: negotiation,
	}
	if err := conn.Fetch(ctx, req); err != nil {
		return FetchResult{}, err
	}

	if !outcome.PackFollows {
		return FetchResult{Advertisement: ad, Shallow: shallowResult}, nil
	}

	if _, err := spoolFile.Seek(0, io.SeekStart); err != nil {
		return FetchResult{}, errs.Wrap(errs.ErrStore, err)
	}

	decoded, err := packfile.Decode(spoolFile, packfile.WithExternalBaseResolver(c.externalBase))
	if err != nil {
		return FetchResult{}, err
	}

	for _, obj := range decoded.Objects {
		if _, err := c.Store.WriteObject(obj.Type, obj.Data); err != nil {
			return FetchResult{}, errs.Wrap(errs.ErrStore, err)
		}
	}

	return FetchResult{
		Advertisement: ad,
		ObjectCount:   len(decoded.Objects),
		CommonHaves:   outcome.CommonHaves,
		Shallow:       shallowResult,
	}, nil
}

func (c *Client) externalBase(h hash.Hash) ([]byte, bool) {
	_, data, err := c.Store.ReadObject(h)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Client) localHaves() []hash.Hash {
	refs, err := c.Store.ListRefs()
	if err != nil {
		return nil
	}
	haves := make([]hash.Hash, 0, len(refs))
	for _, h := range refs {
		haves = append(haves, h)
	}
	return haves
}

// RefUpdate is one ref whose value changed as a result of a fetch.
type RefUpdate struct {
	Name packp.RefName
	Hash hash.Hash
}

// FetchSomeResult tightens §9's informal "caller is told which set was
// updated and which remained" (SPEC_FULL §8 Open Question 2): refs whose
// write_ref succeeded before any failure are in Updated; everything not yet
// attempted, including the one that failed, is in Pending.
type FetchSomeResult struct {
	Advertisement *packp.Advertisement
	Updated       []RefUpdate
	Pending       []packp.RefName
	Shallow       *negotiate.ShallowNotification
	Err           error
}

// FetchOne fetches a single named ref and writes it into the store if the
// remote advertises it.
func (c *Client) FetchOne(ctx context.Context, ref packp.RefName) FetchSomeResult {
	return c.fetchMatching(ctx, func(name packp.RefName) bool { return name == ref })
}

// FetchSome fetches every advertised ref matching any of the given glob
// patterns (e.g. "refs/heads/*"), using gobwas/glob.
func (c *Client) FetchSome(ctx context.Context, patterns []string) FetchSomeResult {
	globs := compileGlobs(patterns)
	return c.fetchMatching(ctx, func(name packp.RefName) bool {
		return matchesAny(globs, name.String())
	})
}

// FetchAll fetches every ref the remote advertises.
func (c *Client) FetchAll(ctx context.Context) FetchSomeResult {
	return c.fetchMatching(ctx, func(packp.RefName) bool { return true })
}

// Clone is FetchAll followed by resolving the remote's advertised HEAD
// symref, if any, into a local HEAD ref (§4.9: "clone: thin layer... then
// update refs via the store capability").
func (c *Client) Clone(ctx context.Context) FetchSomeResult {
	res := c.FetchAll(ctx)
	if res.Err != nil || res.Advertisement == nil {
		return res
	}

	head := res.Advertisement.HeadSymref
	if head == "" {
		return res
	}
	target, ok := res.Advertisement.ByName(head)
	if !ok {
		return res
	}
	if err := c.Store.WriteRef(packp.HEAD.String(), target); err != nil {
		res.Err = errs.Wrap(errs.ErrStore, err)
		return res
	}
	res.Updated = append(res.Updated, RefUpdate{Name: packp.HEAD, Hash: target})
	return res
}

func (c *Client) fetchMatching(ctx context.Context, match func(packp.RefName) bool) FetchSomeResult {
	targets := map[packp.RefName]hash.Hash{}

	fetchRes, err := c.Fetch(ctx, FetchOptions{
		Want: func(ad *packp.Advertisement) []hash.Hash {
			var wants []hash.Hash
			for _, r := range ad.Refs {
				if r.Peeled || !match(r.Name) {
					continue
				}
				targets[r.Name] = r.Hash
				wants = append(wants, r.Hash)
			}
			return wants
		},
		Haves:      c.localHaves(),
		Negotiator: &negotiate.HaveAllRefsOnce{Haves: c.localHaves()},
	})

	names := sortedRefNames(targets)

	if err != nil {
		return FetchSomeResult{Advertisement: fetchRes.Advertisement, Pending: names, Shallow: fetchRes.Shallow, Err: err}
	}

	var updated []RefUpdate
	for i, name := range names {
		h := targets[name]
		if err := c.Store.WriteRef(name.String(), h); err != nil {
			return FetchSomeResult{
				Advertisement: fetchRes.Advertisement,
				Updated:       updated,
				Pending:       names[i:],
				Shallow:       fetchRes.Shallow,
				Err:           errs.Wrap(errs.ErrStore, err),
			}
		}
		updated = append(updated, RefUpdate{Name: name, Hash: h})
	}

	return FetchSomeResult{Advertisement: fetchRes.Advertisement, Updated: updated, Shallow: fetchRes.Shallow}
}

// UpdateAndCreate builds the push commands for the given desired ref
// states, applying the §3 invariant: an Update(old, new, ref) is emitted
// only when old is known locally; refs the store has never seen are always
// Create(new, ref), never an Update whose old the client could get wrong.
func (c *Client) UpdateAndCreate(desired map[packp.RefName]hash.Hash) ([]*packp.Command, error) {
	var cmds []*packp.Command
	for _, name := range sortedRefNames(desired) {
		want := desired[name]
		old, err := c.Store.ReadRef(name.String())
		switch {
		case errors.Is(err, store.ErrNotFound):
			cmds = append(cmds, packp.NewCreateCommand(name, want))
		case err != nil:
			return nil, errs.Wrap(errs.ErrStore, err)
		case old == want:
			continue
		default:
			cmds = append(cmds, packp.NewUpdateCommand(name, old, want))
		}
	}
	return cmds, nil
}

// PushOptions configures Push.
type PushOptions struct {
	Commands []*packp.Command
	Packfile io.Reader
	PushCert *packp.PushCert
}

// PushResult is the per-command outcome of a push (§7: rejections are
// returned as data, never a top-level failure).
type PushResult struct {
	UnpackError error
	Statuses    []*packp.CommandStatus
}

// Push performs advertisement, then sends the command list and packfile,
// then reads back a report-status reply (§4.9 push).
func (c *Client) Push(ctx context.Context, opts PushOptions) (PushResult, error) {
	conn, err := Dial(ctx, c.Dialer, c.Endpoint, transport.ReceivePackService, c.Auth)
	if err != nil {
		return PushResult{}, err
	}
	defer conn.Close()

	ad, err := conn.GetRemoteRefs(ctx)
	if err != nil {
		return PushResult{}, err
	}

	for _, cmd := range opts.Commands {
		if cmd.RequiresDeleteRefs() && !ad.Capabilities.Supports(capability.DeleteRefs) {
			return PushResult{}, errs.Wrapf(errs.ErrUnknownCapabilityAsserted, "delete of %s requires delete-refs", cmd.Name)
		}
	}

	upreq := packp.NewUpdateRequests()
	upreq.Commands = opts.Commands
	upreq.Capabilities = negotiationCapabilities(ad.Capabilities)
	upreq.PushCert = opts.PushCert

	var rs packp.ReportStatus
	req := &transport.PushRequest{
		UpdateRequests: upreq,
		Packfile:       opts.Packfile,
		ReportStatus:   &rs,
	}
	if err := conn.Push(ctx, req); err != nil {
		return PushResult{}, err
	}

	if !ad.Capabilities.Supports(capability.ReportStatus) {
		return PushResult{}, nil
	}

	return PushResult{UnpackError: rs.UnpackError(), Statuses: rs.CommandStatuses}, nil
}

func negotiationCapabilities(advertised *capability.List) *capability.List {
	caps := capability.NewList()
	assert := func(name string) {
		if advertised.Supports(name) {
			caps.Add(name)
		}
	}

	if advertised.Supports(capability.MultiACKDetailed) {
		assert(capability.MultiACKDetailed)
	} else {
		assert(capability.MultiACK)
	}
	assert(capability.NoDone)
	assert(capability.ThinPack)
	assert(capability.OFSDelta)
	assert(capability.IncludeTag)
	assert(capability.ReportStatus)
	assert(capability.AllowTipSHA1InWant)
	assert(capability.AllowReachableSHA1InWant)

	if name, ok := capability.SideBandChoice(advertised); ok {
		caps.Add(name)
	}

	caps.Add(capability.Agent, strings.TrimPrefix(capability.DefaultAgent(), "agent="))
	return caps
}

func compileGlobs(patterns []string) []glob.Glob {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		globs = append(globs, g)
	}
	return globs
}

func matchesAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func sortedRefNames[V any](m map[packp.RefName]V) []packp.RefName {
	names := make([]packp.RefName, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func spoolName() string {
	return "pktwire-fetch-" + uuid.NewString() + ".pack"
}
