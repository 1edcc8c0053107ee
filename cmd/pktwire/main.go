// Command pktwire is a reference client for the protocol implemented by
// this module: it can list a remote's refs, clone or fetch from it, and
// push to it, against git://, http(s):// and ssh:// remotes.
package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

// Exit codes. 0 is success; everything else distinguishes a rejection the
// remote reported from a failure that never reached the remote at all.
const (
	exitOK             = 0
	exitRemoteRejected = 1
	exitTransport      = 2
	exitUsage          = 3
)

// cmd holds the options every subcommand accepts.
type cmd struct {
	Progress bool   `long:"progress" description:"Report progress to stderr, even when stderr is not a terminal."`
	Quiet    bool   `long:"quiet" short:"q" description:"Suppress progress and status output."`
	SSHKnown string `long:"ssh-known-hosts" description:"Path to a known_hosts file (default ~/.ssh/known_hosts)."`
}

func (c *cmd) wantsProgress() bool {
	return !c.Quiet && (c.Progress || isStderrTTY())
}

func main() {
	var opts struct{}
	parser := flags.NewParser(&opts, flags.Default)
	parser.ShortDescription = "A Git smart-protocol client"

	parser.AddCommand("ls", "List a remote's refs", "Fetches and prints the ref advertisement only.", &CmdLs{})
	parser.AddCommand("clone", "Clone a remote", "Fetches every advertised ref and resolves HEAD.", &CmdClone{})
	parser.AddCommand("fetch-one", "Fetch a single ref", "Fetches one advertised ref by name.", &CmdFetchOne{})
	parser.AddCommand("fetch-all", "Fetch every ref", "Fetches every ref the remote advertises.", &CmdFetchAll{})
	parser.AddCommand("push", "Push local refs", "Pushes one or more ref updates to the remote.", &CmdPush{})

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(exitOK)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an operation's terminal error to one of the documented
// exit codes: a command rejection reported by the remote is distinct from
// everything that kept the conversation from completing at all.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	if isUsageError(err) {
		return exitUsage
	}
	if isRemoteRejection(err) {
		return exitRemoteRejected
	}
	return exitTransport
}
