// Package negotiate drives the want/have negotiation loop (§4.6): a
// pluggable Negotiator decides, round by round, which haves to offer next,
// and the Engine turns those decisions into pkt-line traffic and
// interprets the server's ACK/NAK/shallow responses.
package negotiate

import (
	"io"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/errs"
	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/packp"
)

// MaxRounds bounds the have-sending phase (§4.6 safeguard).
const MaxRounds = 256

// Decision is the outcome a Negotiator returns for one round.
type Decision int

const (
	// Again asks the engine to send the accompanying hash set as "have"
	// lines and continue negotiating.
	Again Decision = iota
	// Ready tells the engine the negotiator has nothing more useful to
	// offer; equivalent to the common "no-done ready" fast path.
	Ready
	// Done tells the engine to send "done" immediately after this round's
	// haves (or with no haves at all, if this is round 0).
	Done
)

// Result is what a Negotiator returns for a round: the decision plus,
// for Again, the set of hashes to offer as haves.
type Result struct {
	Decision Decision
	Haves    []hash.Hash
}

// Negotiator is the pluggable strategy (§4.6): given the ACKs observed so
// far and an opaque state value, decide what to do next. State threads
// through rounds and is discarded at the end of the fetch.
type Negotiator interface {
	Next(acks []packp.Ack, state interface{}) (Result, interface{})
	InitialState() interface{}
}

// ShallowNotification is delivered once, after round 0, if the server sent
// shallow/unshallow lines.
type ShallowNotification struct {
	Shallow   []hash.Hash
	Unshallow []hash.Hash
}

// Outcome is the accumulated result of a negotiation. Every outcome that
// Run returns without an error has PackFollows set: an empty server
// response (no packfile after the final ACK/NAK) is not detected here.
type Outcome struct {
	PackFollows bool
	Shallow     *ShallowNotification
	CommonHaves []hash.Hash
}

// Params configures one negotiation.
type Params struct {
	Wants        []hash.Hash
	Shallows     []hash.Hash
	Deepen       packp.DeepenSpec
	Filter       string
	Capabilities *capability.List
	Negotiator   Negotiator
	// Stateless, when true, re-sends the full accumulated want/have set
	// every round (§4.8: "the client must re-send its entire want/have
	// state each round").
	Stateless bool
	Notify    func(ShallowNotification)
}

// Run drives the full negotiation over w/r, returning once the
// negotiation has terminated; the returned Outcome always reports that a
// packfile follows on r, so a server that sends nothing after its final
// ACK/NAK is not told apart from one that sends a pack (§4.6).
func Run(w io.Writer, r io.Reader, p Params) (Outcome, error) {
	noDone := p.Capabilities.Supports(capability.NoDone)
	multiACKDetailed := p.Capabilities.Supports(capability.MultiACKDetailed)
	multiACK := p.Capabilities.Supports(capability.MultiACK)

	upreq := packp.NewUploadRequest()
	upreq.Wants = p.Wants
	upreq.Shallows = p.Shallows
	upreq.Deepen = p.Deepen
	upreq.Filter = p.Filter
	upreq.Capabilities = p.Capabilities

	if err := upreq.Encode(w); err != nil {
		return Outcome{}, errs.Wrap(errs.ErrTransport, err)
	}

	var shallowNotified bool
	readShallowUpdate := func() error {
		if shallowNotified {
			return nil
		}
		if len(p.Shallows) == 0 && p.Deepen.Depth == 0 && p.Deepen.Since.IsZero() && len(p.Deepen.NotRefs) == 0 {
			return nil
		}
		var su packp.ShallowUpdate
		if err := su.Decode(r); err != nil {
			return errs.Wrapf(errs.ErrMalformedFrame, "decoding shallow-update: %v", err)
		}
		shallowNotified = true
		if p.Notify != nil {
			p.Notify(ShallowNotification{Shallow: su.Shallow, Unshallow: su.Unshallow})
		}
		return nil
	}

	state := p.Negotiator.InitialState()
	var acks []packp.Ack
	var allCommon []hash.Hash

	readFinalResponse := func() error {
		var resp packp.ServerResponse
		if err := resp.Decode(r); err != nil {
			return errs.Wrapf(errs.ErrMalformedFrame, "decoding server-response: %v", err)
		}
		for _, a := range resp.Acks {
			if a.Status == packp.AckCommon {
				allCommon = append(allCommon, a.Hash)
			}
		}
		return nil
	}

	accumulatedHaves := map[hash.Hash]bool{}

	for round := 0; ; round++ {
		if round >= MaxRounds {
			return Outcome{}, errs.Wrapf(errs.ErrNegotiationStalled, "exceeded %d rounds", MaxRounds)
		}

		// Each stateless request stands alone, so the want block is
		// repeated ahead of every round's haves.
		if p.Stateless && round > 0 {
			if err := upreq.Encode(w); err != nil {
				return Outcome{}, errs.Wrap(errs.ErrTransport, err)
			}
		}

		result, nextState := p.Negotiator.Next(acks, state)
		state = nextState

		var haves packp.UploadHaves

		switch result.Decision {
		case Done:
			for _, h := range result.Haves {
				accumulatedHaves[h] = true
			}
			haves.Haves = haveSlice(accumulatedHaves, p.Stateless, result.Haves)
			haves.Done = true
			if err := haves.Encode(w); err != nil {
				return Outcome{}, errs.Wrap(errs.ErrTransport, err)
			}
			if err := readShallowUpdate(); err != nil {
				return Outcome{}, err
			}
			if err := readFinalResponse(); err != nil {
				return Outcome{}, err
			}
			return finish(r, allCommon)

		case Ready:
			for _, h := range result.Haves {
				accumulatedHaves[h] = true
			}
			haves.Haves = haveSlice(accumulatedHaves, p.Stateless, result.Haves)
			// A negotiator that has nothing left to offer always
			// terminates the have-sending phase: under no-done it does so
			// with a flush (the server already signaled "ready"), and
			// otherwise by sending "done" outright (§4.6 termination).
			haves.Done = !noDone
			if err := haves.Encode(w); err != nil {
				return Outcome{}, errs.Wrap(errs.ErrTransport, err)
			}
			if err := readShallowUpdate(); err != nil {
				return Outcome{}, err
			}
			// A "done" sent here still gets exactly one more ACK/NAK before
			// the packfile, same as the Done case. Under no-done, the
			// server's earlier "ACK ... ready" already served that purpose
			// (handled in the Again branch below) and nothing more precedes
			// the pack.
			if haves.Done {
				if err := readFinalResponse(); err != nil {
					return Outcome{}, err
				}
			}
			return finish(r, allCommon)

		case Again:
			for _, h := range result.Haves {
				accumulatedHaves[h] = true
			}
			haves.Haves = haveSlice(accumulatedHaves, p.Stateless, result.Haves)
			haves.Done = false
			if err := haves.Encode(w); err != nil {
				return Outcome{}, errs.Wrap(errs.ErrTransport, err)
			}
		}

		if err := readShallowUpdate(); err != nil {
			return Outcome{}, err
		}

		if len(haves.Haves) == 0 && round > 0 {
			// Nothing left to offer and the negotiator never signaled
			// Done/Ready: treat as stalled rather than spinning forever.
			return Outcome{}, errs.Wrapf(errs.ErrNegotiationStalled, "negotiator offered no haves on round %d", round)
		}

		var resp packp.ServerResponse
		if err := resp.Decode(r); err != nil {
			return Outcome{}, errs.Wrapf(errs.ErrMalformedFrame, "decoding server-response: %v", err)
		}

		acks = resp.Acks
		for _, a := range acks {
			if a.Status == packp.AckCommon {
				allCommon = append(allCommon, a.Hash)
			}
			if (a.Status == packp.AckReady) && (multiACKDetailed) {
				if err := readShallowUpdate(); err != nil {
					return Outcome{}, err
				}
				return finish(r, allCommon)
			}
		}

		if resp.NAK && len(acks) == 0 && !multiACK && !multiACKDetailed {
			return finish(r, allCommon)
		}
	}
}

func finish(r io.Reader, common []hash.Hash) (Outcome, error) {
	return Outcome{PackFollows: true, CommonHaves: common}, nil
}

func haveSlice(acc map[hash.Hash]bool, stateless bool, fresh []hash.Hash) []hash.Hash {
	if !stateless {
		return fresh
	}
	out := make([]hash.Hash, 0, len(acc))
	for h := range acc {
		out = append(out, h)
	}
	hash.Sort(out)
	return out
}
