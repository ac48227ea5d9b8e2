package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS container_snapshots (
	owner      TEXT    NOT NULL,
	name       TEXT    NOT NULL,
	format     TEXT    NOT NULL,
	data       BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (owner, name)
);`

// SQLiteStore keeps snapshots in the container_snapshots table. Rows record
// their own format, so a store configured for msgpack still reads rows
// written as json.
type SQLiteStore struct {
	db     *sql.DB
	format Format
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string, format Format) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// a single connection keeps ":memory:" databases coherent and
	// serializes writers
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "init sqlite: %s", stmt)
		}
	}
	return &SQLiteStore{db: db, format: format}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, owner inventory.OwnerID, snap inventory.Snapshot) error {
	if err := validKey(owner, snap.Name); err != nil {
		return err
	}
	data, err := Encode(snap, s.format)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO container_snapshots (owner, name, format, data, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(owner, name) DO UPDATE SET
	format = excluded.format,
	data = excluded.data,
	updated_at = excluded.updated_at`,
		string(owner), snap.Name, string(s.format), data, time.Now().Unix())
	return errors.Wrapf(err, "sqlite save %s/%s", owner, snap.Name)
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, owner inventory.OwnerID, name string) (inventory.Snapshot, error) {
	var (
		format string
		data   []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT format, data FROM container_snapshots WHERE owner = ? AND name = ?`,
		string(owner), name).Scan(&format, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Snapshot{}, errors.Wrapf(ErrSnapshotNotFound, "%s/%s", owner, name)
	}
	if err != nil {
		return inventory.Snapshot{}, errors.Wrapf(err, "sqlite load %s/%s", owner, name)
	}
	return Decode(data, Format(format))
}

// LoadAll implements Store.
func (s *SQLiteStore) LoadAll(ctx context.Context, owner inventory.OwnerID) ([]inventory.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, format, data FROM container_snapshots WHERE owner = ? ORDER BY name`,
		string(owner))
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite load all %s", owner)
	}
	defer rows.Close()

	var out []inventory.Snapshot
	for rows.Next() {
		var (
			name, format string
			data         []byte
		)
		if err := rows.Scan(&name, &format, &data); err != nil {
			return nil, errors.Wrap(err, "sqlite scan")
		}
		snap, err := Decode(data, Format(format))
		if err != nil {
			return nil, errors.Wrapf(err, "%s/%s", owner, name)
		}
		out = append(out, snap)
	}
	return out, errors.Wrap(rows.Err(), "sqlite rows")
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, owner inventory.OwnerID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM container_snapshots WHERE owner = ? AND name = ?`, string(owner), name)
	return errors.Wrapf(err, "sqlite delete %s/%s", owner, name)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
