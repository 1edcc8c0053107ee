package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/capability"
	"github.com/pktwire/pktwire/hash"
	"github.com/pktwire/pktwire/packp"
)

func mustHash(t *testing.T, s string) hash.Hash {
	h, err := hash.FromHex(s)
	require.NoError(t, err)
	return h
}

func TestParseRefSpecs(t *testing.T) {
	specs, err := parseRefSpecs([]string{
		"refs/heads/main=1111111111111111111111111111111111111111",
	})
	require.NoError(t, err)
	require.Equal(t,
		mustHash(t, "1111111111111111111111111111111111111111"),
		specs[packp.RefName("refs/heads/main")],
	)
}

func TestParseRefSpecsRejectsMissingHash(t *testing.T) {
	_, err := parseRefSpecs([]string{"refs/heads/main"})
	require.Error(t, err)
}

func TestBuildPushCommandsCreatesUnknownRef(t *testing.T) {
	ad := &packp.Advertisement{Capabilities: capability.NewList()}
	want := mustHash(t, "2222222222222222222222222222222222222222")

	cmds := buildPushCommands(ad, map[packp.RefName]hash.Hash{
		"refs/heads/new": want,
	})

	require.Len(t, cmds, 1)
	require.Equal(t, packp.CommandCreate, cmds[0].Kind())
	require.Equal(t, want, cmds[0].New)
}

func TestBuildPushCommandsUpdatesKnownRef(t *testing.T) {
	old := mustHash(t, "1111111111111111111111111111111111111111")
	want := mustHash(t, "2222222222222222222222222222222222222222")
	ad := &packp.Advertisement{
		Refs:         []packp.RefAdvert{{Name: "refs/heads/main", Hash: old}},
		Capabilities: capability.NewList(),
	}

	cmds := buildPushCommands(ad, map[packp.RefName]hash.Hash{
		"refs/heads/main": want,
	})

	require.Len(t, cmds, 1)
	require.Equal(t, packp.CommandUpdate, cmds[0].Kind())
	require.Equal(t, old, cmds[0].Old)
	require.Equal(t, want, cmds[0].New)
}

func TestBuildPushCommandsSkipsUnchangedRef(t *testing.T) {
	same := mustHash(t, "1111111111111111111111111111111111111111")
	ad := &packp.Advertisement{
		Refs:         []packp.RefAdvert{{Name: "refs/heads/main", Hash: same}},
		Capabilities: capability.NewList(),
	}

	cmds := buildPushCommands(ad, map[packp.RefName]hash.Hash{
		"refs/heads/main": same,
	})

	require.Empty(t, cmds)
}
