package tree

import (
	"time"

	"github.com/foldsync/foldsync/internal/vfs"
)

// ObjectID is a stable handle into a base pair's arena. Entities reference
// their parent and their move partner by id rather than by pointer, which
// keeps the tree safely mutable while the engine holds the core mutex.
type ObjectID uint64

// Arena owns every entity of one base folder pair. It is not internally
// synchronized; the engine serializes access through its core mutex.
type Arena struct {
	nextID  ObjectID
	objects map[ObjectID]any
}

func newArena() *Arena {
	return &Arena{objects: make(map[ObjectID]any)}
}

func (a *Arena) register(obj any) ObjectID {
	a.nextID++
	a.objects[a.nextID] = obj
	return a.nextID
}

// Retrieve returns nil if the object was pruned.
func (a *Arena) Retrieve(id ObjectID) any { return a.objects[id] }

func (a *Arena) forget(id ObjectID) { delete(a.objects, id) }

// Container is the shared surface of BaseFolderPair and FolderPair: an entity
// that holds ordered child folders, files and symlinks.
type Container interface {
	SubFolders() []*FolderPair
	SubFiles() []*FilePair
	SubLinks() []*SymlinkPair

	// PathOn resolves the container's absolute path on one side.
	PathOn(side Side) vfs.Path
	// RelPath is the pair-relative path, "" for the base pair itself.
	RelPath() string
	Base() *BaseFolderPair

	containerID() ObjectID
	contents() *folderContents
}

type folderContents struct {
	folders []*FolderPair
	files   []*FilePair
	links   []*SymlinkPair
}

func (c *folderContents) SubFolders() []*FolderPair { return c.folders }
func (c *folderContents) SubFiles() []*FilePair     { return c.files }
func (c *folderContents) SubLinks() []*SymlinkPair  { return c.links }
func (c *folderContents) contents() *folderContents { return c }

// ClearChildren drops all sub-entries, e.g. after a folder subtree was
// deleted or its source vanished.
func (c *folderContents) ClearChildren() {
	c.folders = nil
	c.files = nil
	c.links = nil
}

// BaseFolderPair is the root of one configured pair of folders.
type BaseFolderPair struct {
	folderContents

	arena     *Arena
	id        ObjectID
	paths     [2]vfs.Path
	available [2]bool
	filter    *PathFilter
}

func NewBaseFolderPair(left, right vfs.Path, filter *PathFilter) *BaseFolderPair {
	if filter == nil {
		filter = NewPathFilter(nil, nil)
	}
	b := &BaseFolderPair{
		arena:  newArena(),
		paths:  [2]vfs.Path{left, right},
		filter: filter,
	}
	b.id = b.arena.register(b)
	b.available = [2]bool{!left.IsNull(), !right.IsNull()}
	return b
}

func (b *BaseFolderPair) Arena() *Arena            { return b.arena }
func (b *BaseFolderPair) PathOn(side Side) vfs.Path { return b.paths[side] }
func (b *BaseFolderPair) RelPath() string           { return "" }
func (b *BaseFolderPair) Base() *BaseFolderPair     { return b }
func (b *BaseFolderPair) Filter() *PathFilter       { return b.filter }
func (b *BaseFolderPair) containerID() ObjectID     { return b.id }

// AvailableOn reports whether the side's folder existed at comparison time.
func (b *BaseFolderPair) AvailableOn(side Side) bool { return b.available[side] }

func (b *BaseFolderPair) SetAvailableOn(side Side, avail bool) { b.available[side] = avail }

// objectBase is the per-item state shared by files, symlinks and folders:
// per-side names (they may differ in case), the sync operation tag and the
// parent back-reference.
type objectBase struct {
	id       ObjectID
	parentID ObjectID
	base     *BaseFolderPair
	names    [2]string
	op       SyncOp
	conflict string
}

func (o *objectBase) ID() ObjectID          { return o.id }
func (o *objectBase) Base() *BaseFolderPair { return o.base }
func (o *objectBase) SyncOp() SyncOp        { return o.op }
func (o *objectBase) SetSyncOp(op SyncOp)   { o.op = op }

// ConflictMessage explains an OpUnresolvedConflict tag.
func (o *objectBase) ConflictMessage() string       { return o.conflict }
func (o *objectBase) SetConflictMessage(msg string) { o.conflict = msg }

// Parent resolves the parent container, nil if it was pruned.
func (o *objectBase) Parent() Container {
	if c, ok := o.base.arena.Retrieve(o.parentID).(Container); ok {
		return c
	}
	return nil
}

// ParentFolder returns the parent as a FolderPair, nil when the parent is the
// base pair itself.
func (o *objectBase) ParentFolder() *FolderPair {
	f, _ := o.base.arena.Retrieve(o.parentID).(*FolderPair)
	return f
}

func (o *objectBase) NameOn(side Side) string  { return o.names[side] }
func (o *objectBase) IsEmptyOn(side Side) bool { return o.names[side] == "" }

// PairName is the item's logical name: the left name when present, else the
// right one.
func (o *objectBase) PairName() string {
	if o.names[Left] != "" {
		return o.names[Left]
	}
	return o.names[Right]
}

// nameFor resolves the name to use on a side: its own when present, else the
// other side's (e.g. a create target takes the source's name).
func (o *objectBase) nameFor(side Side) string {
	if o.names[side] != "" {
		return o.names[side]
	}
	return o.names[side.Other()]
}

// RelPath is the pair-relative path, components joined with vfs.Separator.
func (o *objectBase) RelPath() string {
	parent := o.Parent()
	if parent == nil {
		return o.PairName()
	}
	if rel := parent.RelPath(); rel != "" {
		return rel + vfs.Separator + o.PairName()
	}
	return o.PairName()
}

// PathOn resolves the item's absolute path on one side, substituting the
// other side's name when this side does not exist yet.
func (o *objectBase) PathOn(side Side) vfs.Path {
	parent := o.Parent()
	if parent == nil {
		return vfs.Path{}
	}
	return parent.PathOn(side).Join(o.nameFor(side))
}

func (o *objectBase) removeNameOn(side Side) { o.names[side] = "" }

// FileAttrs are one side's file attributes as seen at comparison time,
// updated in place as items complete.
type FileAttrs struct {
	ModTime         time.Time
	Size            int64
	FileID          string
	FollowedSymlink bool
}

// FilePair is one file row of the comparison tree.
type FilePair struct {
	objectBase
	attrs   [2]FileAttrs
	moveRef ObjectID
}

func (f *FilePair) AttrsOn(side Side) FileAttrs { return f.attrs[side] }
func (f *FilePair) SizeOn(side Side) int64      { return f.attrs[side].Size }

func (f *FilePair) StreamAttrsOn(side Side) vfs.StreamAttrs {
	a := f.attrs[side]
	return vfs.StreamAttrs{ModTime: a.ModTime, Size: a.Size, FileID: a.FileID}
}

func (f *FilePair) FollowedSymlinkOn(side Side) bool { return f.attrs[side].FollowedSymlink }

// MoveRef links a MoveFrom entry with its MoveTo partner, 0 when unset.
func (f *FilePair) MoveRef() ObjectID      { return f.moveRef }
func (f *FilePair) SetMoveRef(id ObjectID) { f.moveRef = id }

// ClearMoveRef breaks the move pairing and demotes the entry to the ordinary
// delete or create it stands for.
func (f *FilePair) ClearMoveRef() {
	f.moveRef = 0
	switch f.op {
	case OpMoveLeftFrom:
		f.op = OpDeleteLeft
	case OpMoveRightFrom:
		f.op = OpDeleteRight
	case OpMoveLeftTo:
		f.op = OpCreateLeft
	case OpMoveRightTo:
		f.op = OpCreateRight
	}
}

// RemoveOn clears one side after its item ceased to exist there.
func (f *FilePair) RemoveOn(side Side) {
	f.removeNameOn(side)
	f.attrs[side] = FileAttrs{}
	if f.IsEmptyOn(side.Other()) {
		f.op = OpEqual
	}
}

// SetSyncedTo records a completed sync: both sides now carry the synced state
// and the item name is taken from the source side to propagate case changes.
func (f *FilePair) SetSyncedTo(trg Side, name string, size int64, trgTime, srcTime time.Time,
	trgFileID, srcFileID string, trgFollowed, srcFollowed bool) {
	src := trg.Other()
	f.names[trg] = name
	f.names[src] = name
	f.attrs[trg] = FileAttrs{ModTime: trgTime, Size: size, FileID: trgFileID, FollowedSymlink: trgFollowed}
	f.attrs[src] = FileAttrs{ModTime: srcTime, Size: size, FileID: srcFileID, FollowedSymlink: srcFollowed}
	f.op = OpEqual
}

// LinkAttrs are one side's symlink attributes.
type LinkAttrs struct {
	ModTime time.Time
}

type SymlinkPair struct {
	objectBase
	attrs [2]LinkAttrs
}

func (l *SymlinkPair) AttrsOn(side Side) LinkAttrs { return l.attrs[side] }

func (l *SymlinkPair) RemoveOn(side Side) {
	l.removeNameOn(side)
	l.attrs[side] = LinkAttrs{}
	if l.IsEmptyOn(side.Other()) {
		l.op = OpEqual
	}
}

func (l *SymlinkPair) SetSyncedTo(trg Side, name string, trgTime, srcTime time.Time) {
	src := trg.Other()
	l.names[trg] = name
	l.names[src] = name
	l.attrs[trg] = LinkAttrs{ModTime: trgTime}
	l.attrs[src] = LinkAttrs{ModTime: srcTime}
	l.op = OpEqual
}

// FolderAttrs are one side's folder attributes.
type FolderAttrs struct {
	FollowedSymlink bool
}

// FolderPair is one folder row; it is also a Container of its sub-entries.
type FolderPair struct {
	objectBase
	folderContents
	attrs [2]FolderAttrs
}

func (d *FolderPair) AttrsOn(side Side) FolderAttrs      { return d.attrs[side] }
func (d *FolderPair) FollowedSymlinkOn(side Side) bool   { return d.attrs[side].FollowedSymlink }
func (d *FolderPair) containerID() ObjectID              { return d.id }

func (d *FolderPair) RemoveOn(side Side) {
	d.removeNameOn(side)
	d.attrs[side] = FolderAttrs{}
	if d.IsEmptyOn(side.Other()) {
		d.op = OpEqual
	}
}

func (d *FolderPair) SetSyncedTo(trg Side, name string, trgFollowed, srcFollowed bool) {
	src := trg.Other()
	d.names[trg] = name
	d.names[src] = name
	d.attrs[trg] = FolderAttrs{FollowedSymlink: trgFollowed}
	d.attrs[src] = FolderAttrs{FollowedSymlink: srcFollowed}
	d.op = OpEqual
}

//--------------------------------------------------------------------------
// construction

// AddFolder appends a sub-folder row to a container. Empty names mark the
// side as not (yet) existing.
func AddFolder(parent Container, leftName, rightName string, op SyncOp, leftAttrs, rightAttrs FolderAttrs) *FolderPair {
	base := parent.Base()
	d := &FolderPair{
		objectBase: objectBase{
			parentID: parent.containerID(),
			base:     base,
			names:    [2]string{leftName, rightName},
			op:       op,
		},
		attrs: [2]FolderAttrs{leftAttrs, rightAttrs},
	}
	d.id = base.arena.register(d)
	c := parent.contents()
	c.folders = append(c.folders, d)
	return d
}

// AddFile appends a file row. A nil attrs pointer marks that side empty.
func AddFile(parent Container, leftName, rightName string, op SyncOp, leftAttrs, rightAttrs *FileAttrs) *FilePair {
	base := parent.Base()
	f := &FilePair{
		objectBase: objectBase{
			parentID: parent.containerID(),
			base:     base,
			names:    [2]string{leftName, rightName},
			op:       op,
		},
	}
	if leftAttrs != nil {
		f.attrs[Left] = *leftAttrs
	}
	if rightAttrs != nil {
		f.attrs[Right] = *rightAttrs
	}
	f.id = base.arena.register(f)
	c := parent.contents()
	c.files = append(c.files, f)
	return f
}

// AddFileOn appends a file row existing on one side only, e.g. the interim
// entry of a two-step move.
func AddFileOn(parent Container, side Side, name string, attrs FileAttrs, op SyncOp) *FilePair {
	if side == Left {
		return AddFile(parent, name, "", op, &attrs, nil)
	}
	return AddFile(parent, "", name, op, nil, &attrs)
}

// AddSymlink appends a symlink row. A nil attrs pointer marks that side empty.
func AddSymlink(parent Container, leftName, rightName string, op SyncOp, leftAttrs, rightAttrs *LinkAttrs) *SymlinkPair {
	base := parent.Base()
	l := &SymlinkPair{
		objectBase: objectBase{
			parentID: parent.containerID(),
			base:     base,
			names:    [2]string{leftName, rightName},
			op:       op,
		},
	}
	if leftAttrs != nil {
		l.attrs[Left] = *leftAttrs
	}
	if rightAttrs != nil {
		l.attrs[Right] = *rightAttrs
	}
	l.id = base.arena.register(l)
	c := parent.contents()
	c.links = append(c.links, l)
	return l
}

//--------------------------------------------------------------------------
// pruning

// RemoveEmpty prunes placeholder rows that ended up empty on both sides,
// releasing their arena slots. Called after each base pair completes.
func RemoveEmpty(base *BaseFolderPair) {
	pruneContents(base.arena, &base.folderContents)
}

func pruneContents(arena *Arena, c *folderContents) {
	files := c.files[:0]
	for _, f := range c.files {
		if f.IsEmptyOn(Left) && f.IsEmptyOn(Right) {
			arena.forget(f.id)
			continue
		}
		files = append(files, f)
	}
	c.files = files

	links := c.links[:0]
	for _, l := range c.links {
		if l.IsEmptyOn(Left) && l.IsEmptyOn(Right) {
			arena.forget(l.id)
			continue
		}
		links = append(links, l)
	}
	c.links = links

	folders := c.folders[:0]
	for _, d := range c.folders {
		pruneContents(arena, &d.folderContents)
		if d.IsEmptyOn(Left) && d.IsEmptyOn(Right) &&
			len(d.folders) == 0 && len(d.files) == 0 && len(d.links) == 0 {
			arena.forget(d.id)
			continue
		}
		folders = append(folders, d)
	}
	c.folders = folders
}
