package syncdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsync/foldsync/internal/tree"
	"github.com/foldsync/foldsync/internal/vfs/localfs"
)

func testBase(t *testing.T) *tree.BaseFolderPair {
	t.Helper()
	base := tree.NewBaseFolderPair(localfs.NewPath("/L"), localfs.NewPath("/R"), nil)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	sub := tree.AddFolder(base, "sub", "sub", tree.OpEqual, tree.FolderAttrs{}, tree.FolderAttrs{})
	tree.AddFile(sub, "a.txt", "a.txt", tree.OpEqual,
		&tree.FileAttrs{Size: 10, ModTime: now, FileID: "l1"},
		&tree.FileAttrs{Size: 10, ModTime: now, FileID: "r1"})
	tree.AddSymlink(base, "link", "link", tree.OpEqual,
		&tree.LinkAttrs{ModTime: now}, &tree.LinkAttrs{ModTime: now})
	// one-sided rows are not part of the last synchronous state
	tree.AddFile(base, "", "pending.txt", tree.OpCreateLeft, nil, &tree.FileAttrs{Size: 5})
	return base
}

func TestStore_SaveLastSyncState(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state", "sync.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	base := testBase(t)
	var statuses []string
	require.NoError(t, store.SaveLastSyncState(context.Background(), base,
		func(msg string) error { statuses = append(statuses, msg); return nil }))
	assert.NotEmpty(t, statuses)

	rows := queryRelPaths(t, store.db)
	assert.ElementsMatch(t, []string{"sub", "sub/a.txt", "link"}, rows)

	// saving again replaces, never duplicates
	require.NoError(t, store.SaveLastSyncState(context.Background(), base, nil))
	assert.Len(t, queryRelPaths(t, store.db), 3)
}

func TestStore_SecondOpenIsLockedOut(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sync.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = Open(dbPath)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestStore_ReopenAfterClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sync.db")
	store, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveLastSyncState(context.Background(), testBase(t), nil))
	require.NoError(t, store.Close())

	store2, err := Open(dbPath)
	require.NoError(t, err)
	defer store2.Close()
	assert.Len(t, queryRelPaths(t, store2.db), 3, "state survives reopening")
}

func queryRelPaths(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query("SELECT rel_path FROM sync_state")
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var relPath string
		require.NoError(t, rows.Scan(&relPath))
		out = append(out, relPath)
	}
	require.NoError(t, rows.Err())
	return out
}
