package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsync/foldsync/internal/tree"
	"github.com/foldsync/foldsync/internal/vfs"
	"github.com/foldsync/foldsync/internal/vfs/localfs"
)

func TestSynchronize_EndToEnd(t *testing.T) {
	left := filepath.Join(t.TempDir(), "L")
	right := filepath.Join(t.TempDir(), "R")
	require.NoError(t, os.Mkdir(left, 0o755))
	require.NoError(t, os.Mkdir(right, 0o755))

	writeFile(t, filepath.Join(right, "new.txt"), "hello world")
	writeFile(t, filepath.Join(left, "old.txt"), "remove me")

	base := newLocalBase(t, left, right)
	tree.AddFile(base, "", "new.txt", tree.OpCreateLeft, nil, &tree.FileAttrs{Size: 11})
	tree.AddFile(base, "old.txt", "", tree.OpDeleteLeft, &tree.FileAttrs{Size: 9}, nil)

	rep := &testReporter{}
	warnings := &Warnings{}
	err := Synchronize(context.Background(), testTime(), Options{FailSafeFileCopy: true},
		[]PairConfig{{HandleDeletion: DeletePermanent, SyncVariant: VariantMirror}},
		[]*tree.BaseFolderPair{base}, warnings, rep)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(left, "new.txt"))
	assert.NoFileExists(t, filepath.Join(left, "old.txt"))

	// statistics conservation: everything announced up front was processed
	items, bytes, totalItems, totalBytes := rep.snapshot()
	assert.Equal(t, 2, rep.initItems)
	assert.Equal(t, int64(11), rep.initBytes)
	assert.Equal(t, 2, items)
	assert.Equal(t, int64(11), bytes)
	assert.Equal(t, totalItems, items, "expected total converges onto processed")
	assert.Equal(t, totalBytes, bytes)

	// the pair header went through the reporter
	headerFound := false
	for _, line := range rep.loggedLines() {
		if strings.Contains(line, "Synchronizing folder pair: Mirror") {
			headerFound = true
		}
	}
	assert.True(t, headerFound)

	// the emptied rows were pruned
	assert.Len(t, base.SubFiles(), 1)
	assert.Equal(t, tree.OpEqual, base.SubFiles()[0].SyncOp())
}

func TestSynchronize_ConfigMismatchFails(t *testing.T) {
	err := Synchronize(context.Background(), testTime(), Options{}, nil,
		[]*tree.BaseFolderPair{newLocalBase(t, "/L", "/R")}, &Warnings{}, &testReporter{})
	assert.Error(t, err)
}

func TestSynchronize_IdenticalPathsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f.txt"), "x")

	base := newLocalBase(t, dir, dir)
	tree.AddFile(base, "f.txt", "", tree.OpDeleteLeft, &tree.FileAttrs{Size: 1}, nil)

	rep := &testReporter{}
	require.NoError(t, Synchronize(context.Background(), testTime(), Options{},
		[]PairConfig{{}}, []*tree.BaseFolderPair{base}, &Warnings{}, rep))

	assert.FileExists(t, filepath.Join(dir, "f.txt"), "a pair syncing onto itself is skipped")
}

func TestSynchronize_NullTargetWithWritesIsFatal(t *testing.T) {
	right := t.TempDir()
	writeFile(t, filepath.Join(right, "f.txt"), "x")

	base := tree.NewBaseFolderPair(vfs.Path{}, localfs.NewPath(right), nil)
	tree.AddFile(base, "", "f.txt", tree.OpCreateLeft, nil, &tree.FileAttrs{Size: 1})

	rep := &testReporter{}
	require.NoError(t, Synchronize(context.Background(), testTime(), Options{},
		[]PairConfig{{}}, []*tree.BaseFolderPair{base}, &Warnings{}, rep))

	require.NotEmpty(t, rep.fatals)
	assert.Contains(t, rep.fatals[0], "must not be empty")
}

func TestSynchronize_MissingVersioningFolderIsFatal(t *testing.T) {
	left := t.TempDir()
	right := t.TempDir()
	writeFile(t, filepath.Join(left, "f.txt"), "x")

	base := newLocalBase(t, left, right)
	tree.AddFile(base, "f.txt", "", tree.OpDeleteLeft, &tree.FileAttrs{Size: 1}, nil)

	rep := &testReporter{}
	require.NoError(t, Synchronize(context.Background(), testTime(), Options{},
		[]PairConfig{{HandleDeletion: DeleteVersioning}},
		[]*tree.BaseFolderPair{base}, &Warnings{}, rep))

	require.NotEmpty(t, rep.fatals)
	assert.FileExists(t, filepath.Join(left, "f.txt"), "the pair was skipped")
}

func TestSynchronize_UnresolvedConflictWarningListsItems(t *testing.T) {
	left := t.TempDir()
	right := t.TempDir()
	writeFile(t, filepath.Join(left, "c.txt"), "l")
	writeFile(t, filepath.Join(right, "c.txt"), "r")
	writeFile(t, filepath.Join(right, "n.txt"), "n")

	base := newLocalBase(t, left, right)
	c := tree.AddFile(base, "c.txt", "c.txt", tree.OpUnresolvedConflict,
		&tree.FileAttrs{Size: 1}, &tree.FileAttrs{Size: 1})
	c.SetConflictMessage("both sides changed")
	tree.AddFile(base, "", "n.txt", tree.OpCreateLeft, nil, &tree.FileAttrs{Size: 1})

	rep := &testReporter{}
	warnings := &Warnings{}
	require.NoError(t, Synchronize(context.Background(), testTime(), Options{FailSafeFileCopy: true},
		[]PairConfig{{}}, []*tree.BaseFolderPair{base}, warnings, rep))

	require.NotEmpty(t, rep.warnings)
	assert.Contains(t, rep.warnings[0], "unresolved conflicts")
	assert.Contains(t, rep.warnings[0], "c.txt: both sides changed")
}

func TestSynchronize_CreatesMissingBaseFolder(t *testing.T) {
	right := t.TempDir()
	writeFile(t, filepath.Join(right, "f.txt"), "x")
	left := filepath.Join(t.TempDir(), "not-yet-existing")

	base := newLocalBase(t, left, right)
	base.SetAvailableOn(tree.Left, false)
	tree.AddFile(base, "", "f.txt", tree.OpCreateLeft, nil, &tree.FileAttrs{Size: 1})

	rep := &testReporter{}
	require.NoError(t, Synchronize(context.Background(), testTime(), Options{FailSafeFileCopy: true},
		[]PairConfig{{}}, []*tree.BaseFolderPair{base}, &Warnings{}, rep))

	assert.FileExists(t, filepath.Join(left, "f.txt"))
	assert.True(t, base.AvailableOn(tree.Left))
}

func TestSynchronize_ReappearedBaseFolderIsFatal(t *testing.T) {
	// comparison saw no left folder, but it exists again at sync time: the
	// computed directions are based on false assumptions
	left := t.TempDir()
	right := t.TempDir()
	writeFile(t, filepath.Join(right, "f.txt"), "x")

	base := newLocalBase(t, left, right)
	base.SetAvailableOn(tree.Left, false)
	tree.AddFile(base, "", "f.txt", tree.OpCreateLeft, nil, &tree.FileAttrs{Size: 1})

	rep := &testReporter{}
	require.NoError(t, Synchronize(context.Background(), testTime(), Options{},
		[]PairConfig{{}}, []*tree.BaseFolderPair{base}, &Warnings{}, rep))

	require.NotEmpty(t, rep.fatals)
	assert.Contains(t, rep.fatals[0], "already existing")
	assert.NoFileExists(t, filepath.Join(left, "f.txt"))
}

func TestSynchronize_DependentBaseFoldersWarning(t *testing.T) {
	outer := t.TempDir()
	inner := filepath.Join(outer, "inner")
	require.NoError(t, os.Mkdir(inner, 0o755))
	other := t.TempDir()
	writeFile(t, filepath.Join(other, "a.txt"), "x")
	writeFile(t, filepath.Join(other, "b.txt"), "x")

	baseA := newLocalBase(t, outer, other)
	tree.AddFile(baseA, "", "a.txt", tree.OpCreateLeft, nil, &tree.FileAttrs{Size: 1})
	baseB := newLocalBase(t, inner, other)
	tree.AddFile(baseB, "", "b.txt", tree.OpCreateLeft, nil, &tree.FileAttrs{Size: 1})

	rep := &testReporter{}
	require.NoError(t, Synchronize(context.Background(), testTime(), Options{FailSafeFileCopy: true},
		[]PairConfig{{}, {}}, []*tree.BaseFolderPair{baseA, baseB}, &Warnings{}, rep))

	found := false
	for _, w := range rep.warnings {
		if strings.Contains(w, "multiple base folders") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPathDependency(t *testing.T) {
	nullFilter := tree.NewPathFilter(nil, nil)
	a := localfs.NewPath("/data/sync")
	b := localfs.NewPath("/data/sync/sub")
	c := localfs.NewPath("/data/other")

	_, _, ok := pathDependency(a, nullFilter, b, nullFilter)
	assert.True(t, ok)
	_, _, ok = pathDependency(a, nullFilter, c, nullFilter)
	assert.False(t, ok)
	_, _, ok = pathDependency(a, nullFilter, a, nullFilter)
	assert.True(t, ok)

	excluding := tree.NewPathFilter(nil, []string{"sub/**", "sub"})
	_, _, ok = pathDependency(a, excluding, b, nullFilter)
	assert.False(t, ok, "the overlap is excluded by the outer filter")
}
