package store

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

const snapExt = ".snap"

// FileStore writes each snapshot as a zstd-compressed file at
// <dir>/<owner>/<name>.snap. Writes go through a temp file and a rename so
// a crash never leaves a truncated snapshot.
type FileStore struct {
	dir    string
	format Format
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, format Format) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create snapshot dir %s", dir)
	}
	return &FileStore{dir: dir, format: format}, nil
}

func (s *FileStore) path(owner inventory.OwnerID, name string) string {
	return filepath.Join(s.dir, string(owner), name+snapExt)
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, owner inventory.OwnerID, snap inventory.Snapshot) error {
	if err := validKey(owner, snap.Name); err != nil {
		return err
	}
	data, err := Encode(snap, s.format)
	if err != nil {
		return err
	}
	path := s.path(owner, snap.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create owner dir for %s", owner)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), snap.Name+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp snapshot")
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := writeCompressed(tmp, data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write snapshot %s/%s", owner, snap.Name)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp snapshot")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "publish snapshot")
}

func writeCompressed(w io.Writer, data []byte) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func (s *FileStore) read(path string) (inventory.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return inventory.Snapshot{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return inventory.Snapshot{}, errors.Wrapf(err, "zstd reader %s", path)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return inventory.Snapshot{}, errors.Wrapf(err, "decompress %s", path)
	}
	return Decode(data, s.format)
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, owner inventory.OwnerID, name string) (inventory.Snapshot, error) {
	if err := validKey(owner, name); err != nil {
		return inventory.Snapshot{}, err
	}
	snap, err := s.read(s.path(owner, name))
	if errors.Is(err, fs.ErrNotExist) {
		return snap, errors.Wrapf(ErrSnapshotNotFound, "%s/%s", owner, name)
	}
	return snap, err
}

// LoadAll implements Store.
func (s *FileStore) LoadAll(ctx context.Context, owner inventory.OwnerID) ([]inventory.Snapshot, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, string(owner)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "list snapshots of %s", owner)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), snapExt) {
			names = append(names, strings.TrimSuffix(e.Name(), snapExt))
		}
	}
	sort.Strings(names)

	out := make([]inventory.Snapshot, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := s.read(s.path(owner, name))
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, owner inventory.OwnerID, name string) error {
	if err := validKey(owner, name); err != nil {
		return err
	}
	err := os.Remove(s.path(owner, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return errors.Wrapf(err, "delete snapshot %s/%s", owner, name)
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
