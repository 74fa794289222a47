package directory

import (
	"fmt"

	"github.com/arloliu/chorus/types"
)

// OwnershipError reports the worker that currently owns a guild.
//
// It matches types.ErrOwnershipConflict under errors.Is.
type OwnershipError struct {
	GuildID string
	Owner   string
}

// Error implements error.
func (e *OwnershipError) Error() string {
	return fmt.Sprintf("guild %s is owned by %s", e.GuildID, e.Owner)
}

// Unwrap returns types.ErrOwnershipConflict.
func (e *OwnershipError) Unwrap() error {
	return types.ErrOwnershipConflict
}
