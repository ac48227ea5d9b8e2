package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// exerciseStore runs the behavior every backend shares.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	owner := inventory.OwnerID("player-" + uuid.NewString()[:8])
	snap, _ := sampleSnapshot(t)

	_, err := s.Load(ctx, owner, snap.Name)
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, s.Save(ctx, owner, snap))
	got, err := s.Load(ctx, owner, snap.Name)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	pockets := inventory.Snapshot{
		Version: inventory.SnapshotVersion,
		Name:    "pockets",
		Width:   2,
		Height:  2,
		Items: []inventory.ItemRecord{
			{DefinitionID: inventory.SampleRadio, InstanceID: uuid.NewString(), PosX: 1, PosY: 1},
		},
	}
	require.NoError(t, s.Save(ctx, owner, pockets))

	// overwrite keeps a single row
	snap.Items = snap.Items[:1]
	require.NoError(t, s.Save(ctx, owner, snap))

	all, err := s.LoadAll(ctx, owner)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "backpack", all[0].Name)
	assert.Len(t, all[0].Items, 1)
	assert.Equal(t, "pockets", all[1].Name)

	require.NoError(t, s.Delete(ctx, owner, "pockets"))
	_, err = s.Load(ctx, owner, "pockets")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, s.Delete(ctx, owner, "backpack"))
	all, err = s.LoadAll(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Error(t, s.Save(ctx, owner, inventory.Snapshot{Name: "../escape", Width: 1, Height: 1}))
}

func TestFileStore(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(string(f), func(t *testing.T) {
			dir := t.TempDir()
			s, err := NewFileStore(dir, f)
			require.NoError(t, err)
			exerciseStore(t, s)
			require.NoError(t, s.Close())
		})
	}
}

func TestFileStoreWritesCompressedFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, FormatJSON)
	require.NoError(t, err)
	snap, _ := sampleSnapshot(t)
	require.NoError(t, s.Save(context.Background(), "p1", snap))

	raw, err := os.ReadFile(filepath.Join(dir, "p1", "backpack.snap"))
	require.NoError(t, err)
	// zstd frame magic
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, raw[:4])

	leftovers, err := filepath.Glob(filepath.Join(dir, "p1", "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "inventories.db"), FormatMsgpack)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreReadsRowsOfEitherFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventories.db")
	ctx := context.Background()
	snap, _ := sampleSnapshot(t)

	asJSON, err := OpenSQLite(path, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, asJSON.Save(ctx, "p1", snap))
	require.NoError(t, asJSON.Close())

	asMsgpack, err := OpenSQLite(path, FormatMsgpack)
	require.NoError(t, err)
	defer asMsgpack.Close()
	got, err := asMsgpack.Load(ctx, "p1", snap.Name)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	s, err := DialRedis(context.Background(), &redis.Options{Addr: addr}, "gridstash-test:", FormatMsgpack)
	if err != nil {
		t.Skipf("redis not reachable at %s: %v", addr, err)
	}
	defer s.Close()
	exerciseStore(t, s)
}
