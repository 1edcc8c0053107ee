package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pktwire/pktwire/errs"
)

func TestExitCodeForNil(t *testing.T) {
	require.Equal(t, exitOK, exitCodeFor(nil))
}

func TestExitCodeForUsageError(t *testing.T) {
	err := usageError{error: errs.ErrMalformedFrame}
	require.Equal(t, exitUsage, exitCodeFor(err))
}

func TestExitCodeForRemoteRejection(t *testing.T) {
	err := errs.NewCommandRejected("refs/heads/main", "non-fast-forward")
	require.Equal(t, exitRemoteRejected, exitCodeFor(err))
}

func TestExitCodeForTransportFailure(t *testing.T) {
	require.Equal(t, exitTransport, exitCodeFor(errs.ErrTransport))
}
