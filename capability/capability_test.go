package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/capability"
)

func TestDecode(t *testing.T) {
	l := capability.Decode("multi_ack_detailed side-band-64k agent=git/2.40.0 symref=HEAD:refs/heads/main")
	assert.True(t, l.Supports(capability.MultiACKDetailed))
	assert.True(t, l.Supports(capability.SideBand64k))
	assert.Equal(t, "git/2.40.0", l.Value(capability.Agent))
	assert.Equal(t, "refs/heads/main", l.SymbolicRef("HEAD"))
}

func TestDecodeEmpty(t *testing.T) {
	l := capability.Decode("")
	assert.True(t, l.IsEmpty())
}

func TestRoundTripIsSetEqual(t *testing.T) {
	raw := "thin-pack ofs-delta multi_ack_detailed side-band-64k agent=pktwire/1.0"
	a := capability.Decode(raw)
	b := capability.Decode(a.String())

	require.ElementsMatch(t, a.Sorted(), b.Sorted())
	for _, name := range a.Names() {
		assert.Equal(t, a.Get(name), b.Get(name))
	}
}

func TestSideBandChoicePrefers64k(t *testing.T) {
	l := capability.Decode("side-band side-band-64k")
	name, ok := capability.SideBandChoice(l)
	require.True(t, ok)
	assert.Equal(t, capability.SideBand64k, name)
}

func TestSideBandChoiceNone(t *testing.T) {
	l := capability.Decode("thin-pack")
	_, ok := capability.SideBandChoice(l)
	assert.False(t, ok)
}

func TestSetReplacesValues(t *testing.T) {
	l := capability.NewList()
	l.Add(capability.Agent, "old")
	l.Set(capability.Agent, "new")
	assert.Equal(t, []string{"new"}, l.Get(capability.Agent))
}
