package main

import (
	"errors"

	"github.com/jessevdk/go-flags"

	"github.com/pktwire/pktwire/errs"
)

type usageError struct{ error }

func isUsageError(err error) bool {
	var ue usageError
	if errors.As(err, &ue) {
		return true
	}
	var fe *flags.Error
	return errors.As(err, &fe)
}

// isRemoteRejection reports whether err came back from a report-status
// reply the remote actually sent, as opposed to the conversation failing
// to reach that point at all.
func isRemoteRejection(err error) bool {
	return errors.Is(err, errs.ErrCommandRejected) || errors.Is(err, errs.ErrRemote)
}
