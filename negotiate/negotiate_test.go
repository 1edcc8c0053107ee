package negotiate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/packp"
)

func mustHash(s string) hash.Hash {
	h, err := hash.FromHex(s)
	if err != nil {
		panic(err)
	}
	return h
}

// alwaysAgainOnce offers one have, then on the next call (once it has seen
// any ack) returns Ready, exercising the "ACK ... ready" mid-loop
// detection under multi_ack_detailed.
type alwaysAgainOnce struct {
	have hash.Hash
}

func (n *alwaysAgainOnce) InitialState() interface{} { return 0 }

func (n *alwaysAgainOnce) Next(acks []packp.Ack, state interface{}) (Result, interface{}) {
	round := state.(int)
	if round == 0 {
		return Result{Decision: Again, Haves: []hash.Hash{n.have}}, round + 1
	}
	return Result{Decision: Ready}, round + 1
}

func TestRunTerminatesOnReadyUnderMultiAckDetailed(t *testing.T) {
	want := mustHash("1111111111111111111111111111111111111111")
	have := mustHash("2222222222222222222222222222222222222222")

	caps := capability.NewList()
	caps.Set(capability.MultiACKDetailed)

	var out bytes.Buffer

	var resp bytes.Buffer
	sr := packp.ServerResponse{Acks: []packp.Ack{{Hash: have, Status: packp.AckReady}}}
	require.NoError(t, sr.Encode(&resp))

	outcome, err := Run(&out, &resp, Params{
		Wants:        []hash.Hash{want},
		Capabilities: caps,
		Negotiator:   &alwaysAgainOnce{have: have},
	})
	require.NoError(t, err)
	require.True(t, outcome.PackFollows)
}

func TestRunSendsDoneWhenNegotiatorHasNoHaves(t *testing.T) {
	want := mustHash("3333333333333333333333333333333333333333")
	caps := capability.NewList()

	var out bytes.Buffer

	var resp bytes.Buffer
	sr := packp.ServerResponse{NAK: true}
	require.NoError(t, sr.Encode(&resp))

	neg := &HaveAllRefsOnce{}

	outcome, err := Run(&out, &resp, Params{
		Wants:        []hash.Hash{want},
		Capabilities: caps,
		Negotiator:   neg,
	})
	require.NoError(t, err)
	require.True(t, outcome.PackFollows)
}
