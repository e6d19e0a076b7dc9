package viztrail

import (
	"bytes"
	"encoding/json"

	"github.com/vizierdb/vizier/src/internal/errors"
)

// Command is a validated call of one package command.
type Command struct {
	PackageID string `json:"packageId"`
	CommandID string `json:"commandId"`
	Arguments Record `json:"arguments"`
}

// NewCommand returns a command with the given arguments.
func NewCommand(packageID, commandID string, args Record) *Command {
	if args == nil {
		args = Record{}
	}
	return &Command{PackageID: packageID, CommandID: commandID, Arguments: args}
}

// Canonical returns the canonical encoding of the command.  Two commands are the same command
// iff their canonical encodings are byte-identical.
func (c *Command) Canonical() ([]byte, error) {
	b, err := json.Marshal(c)
	return b, errors.EnsureStack(err)
}

// Equal reports whether c and other are the same command.
func (c *Command) Equal(other *Command) bool {
	if c == nil || other == nil {
		return c == other
	}
	a, err := c.Canonical()
	if err != nil {
		return false
	}
	b, err := other.Canonical()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Name returns "package.command".
func (c *Command) Name() string {
	return c.PackageID + "." + c.CommandID
}
