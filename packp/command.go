package packp

import (
	"fmt"

	"github.com/pktwire/pktwire/hash"
)

// CommandKind distinguishes the three shapes a push command can take (§3
// Command).
type CommandKind int

const (
	// CommandCreate introduces a new ref.
	CommandCreate CommandKind = iota
	// CommandUpdate moves an existing ref from Old to New.
	CommandUpdate
	// CommandDelete removes an existing ref.
	CommandDelete
)

// Command is one push-side reference update request.
type Command struct {
	Name RefName
	Old  hash.Hash
	New  hash.Hash
}

// Kind classifies the command from its Old/New hashes.
func (c *Command) Kind() CommandKind {
	switch {
	case c.Old.IsZero():
		return CommandCreate
	case c.New.IsZero():
		return CommandDelete
	default:
		return CommandUpdate
	}
}

// NewCreateCommand returns a Command that creates ref at new.
func NewCreateCommand(ref RefName, new hash.Hash) *Command {
	return &Command{Name: ref, Old: hash.ZeroHash, New: new}
}

// NewDeleteCommand returns a Command that deletes ref, currently at old.
func NewDeleteCommand(ref RefName, old hash.Hash) *Command {
	return &Command{Name: ref, Old: old, New: hash.ZeroHash}
}

// NewUpdateCommand returns a Command that moves ref from old to new.
func NewUpdateCommand(ref RefName, old, new hash.Hash) *Command {
	return &Command{Name: ref, Old: old, New: new}
}

func (c *Command) String() string {
	return fmt.Sprintf("%s %s %s", c.Old, c.New, c.Name)
}

// RequiresDeleteRefs reports whether asserting this command requires the
// server to have advertised "delete-refs" (§3 invariant).
func (c *Command) RequiresDeleteRefs() bool {
	return c.Kind() == CommandDelete
}
