// Package syncdb persists the last synchronous state of base folder pairs in
// an SQLite database, for the next comparison to derive sync directions from.
package syncdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"

	"github.com/foldsync/foldsync/internal/tree"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_state (
    pair_key      TEXT NOT NULL,
    rel_path      TEXT NOT NULL,
    item_type     TEXT NOT NULL,
    left_name     TEXT NOT NULL,
    right_name    TEXT NOT NULL,
    left_size     INTEGER NOT NULL,
    right_size    INTEGER NOT NULL,
    left_mtime    TEXT NOT NULL, -- RFC3339
    right_mtime   TEXT NOT NULL,
    left_file_id  TEXT NOT NULL,
    right_file_id TEXT NOT NULL,
    PRIMARY KEY (pair_key, rel_path)
);

CREATE INDEX IF NOT EXISTS idx_sync_state_pair ON sync_state(pair_key);
`

var ErrLocked = fmt.Errorf("sync database locked by another process")

// Store is an SQLite-backed sync state database, guarded by a file lock so
// two runs cannot interleave writes.
type Store struct {
	db     *sql.DB
	lock   *flock.Flock
	dbPath string
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock sync database: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("failed to open sync database at %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // SQLite best practice for WAL mode

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		lock.Unlock()
		return nil, fmt.Errorf("failed to initialize sync database schema: %w", err)
	}

	return &Store{db: db, lock: lock, dbPath: dbPath}, nil
}

func (s *Store) Close() error {
	if s.lock != nil {
		defer s.lock.Unlock()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func pairKey(base *tree.BaseFolderPair) string {
	return base.PathOn(tree.Left).Display() + "|" + base.PathOn(tree.Right).Display()
}

// SaveLastSyncState replaces the pair's rows with the items currently in
// sync on both sides.
func (s *Store) SaveLastSyncState(ctx context.Context, base *tree.BaseFolderPair, onStatus func(msg string) error) error {
	if onStatus != nil {
		if err := onStatus(fmt.Sprintf("Saving synchronization database %s...", s.dbPath)); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sync state transaction: %w", err)
	}
	defer tx.Rollback()

	key := pairKey(base)
	if _, err := tx.ExecContext(ctx, "DELETE FROM sync_state WHERE pair_key = ?", key); err != nil {
		return fmt.Errorf("failed to clear sync state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_state (pair_key, rel_path, item_type, left_name, right_name,
			left_size, right_size, left_mtime, right_mtime, left_file_id, right_file_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sync state insert: %w", err)
	}
	defer stmt.Close()

	if err := s.saveContainer(ctx, stmt, key, base); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync state: %w", err)
	}
	return nil
}

func (s *Store) saveContainer(ctx context.Context, stmt *sql.Stmt, key string, c tree.Container) error {
	insert := func(relPath, itemType, leftName, rightName string,
		leftSize, rightSize int64, leftTime, rightTime time.Time, leftID, rightID string) error {
		_, err := stmt.ExecContext(ctx, key, relPath, itemType, leftName, rightName,
			leftSize, rightSize, leftTime.Format(time.RFC3339Nano), rightTime.Format(time.RFC3339Nano), leftID, rightID)
		if err != nil {
			return fmt.Errorf("failed to write sync state for %s: %w", relPath, err)
		}
		return nil
	}

	for _, f := range c.SubFiles() {
		if f.IsEmptyOn(tree.Left) || f.IsEmptyOn(tree.Right) {
			continue // not in sync; leave for the next comparison
		}
		if err := insert(f.RelPath(), "file", f.NameOn(tree.Left), f.NameOn(tree.Right),
			f.SizeOn(tree.Left), f.SizeOn(tree.Right),
			f.AttrsOn(tree.Left).ModTime, f.AttrsOn(tree.Right).ModTime,
			f.AttrsOn(tree.Left).FileID, f.AttrsOn(tree.Right).FileID); err != nil {
			return err
		}
	}
	for _, l := range c.SubLinks() {
		if l.IsEmptyOn(tree.Left) || l.IsEmptyOn(tree.Right) {
			continue
		}
		if err := insert(l.RelPath(), "symlink", l.NameOn(tree.Left), l.NameOn(tree.Right),
			0, 0, l.AttrsOn(tree.Left).ModTime, l.AttrsOn(tree.Right).ModTime, "", ""); err != nil {
			return err
		}
	}
	for _, d := range c.SubFolders() {
		if !d.IsEmptyOn(tree.Left) && !d.IsEmptyOn(tree.Right) {
			if err := insert(d.RelPath(), "folder", d.NameOn(tree.Left), d.NameOn(tree.Right),
				0, 0, time.Time{}, time.Time{}, "", ""); err != nil {
				return err
			}
		}
		if err := s.saveContainer(ctx, stmt, key, d); err != nil {
			return err
		}
	}
	return nil
}
