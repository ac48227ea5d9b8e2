// Package store persists container snapshots.
package store

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// ErrSnapshotNotFound is returned by Load when nothing is stored under the key.
var ErrSnapshotNotFound = errors.New("store: snapshot not found")

// Store saves snapshots keyed by owner and container name.
type Store interface {
	Save(ctx context.Context, owner inventory.OwnerID, snap inventory.Snapshot) error
	Load(ctx context.Context, owner inventory.OwnerID, name string) (inventory.Snapshot, error)
	// LoadAll returns every snapshot of owner ordered by container name.
	LoadAll(ctx context.Context, owner inventory.OwnerID) ([]inventory.Snapshot, error)
	Delete(ctx context.Context, owner inventory.OwnerID, name string) error
	Close() error
}

// validKey rejects empty keys and keys that could escape a file store root.
func validKey(owner inventory.OwnerID, name string) error {
	for _, s := range []string{string(owner), name} {
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
			return errors.Newf("store: invalid key %q/%q", owner, name)
		}
	}
	return nil
}
