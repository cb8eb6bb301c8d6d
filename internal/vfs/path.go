package vfs

import "strings"

// Separator joins relative path components handed to the engine. Backends
// translate to their native separator in DisplayPath and the item ops.
const Separator = "/"

// Path bundles a backend with one of its item paths. The zero Path is the
// "null path": a side that was not configured.
type Path struct {
	FS   FS
	Item string
}

func (p Path) IsNull() bool { return p.FS == nil }

// Join appends a relative path to the item path.
func (p Path) Join(relPath string) Path {
	if relPath == "" {
		return p
	}
	item := p.Item
	if item != "" && !strings.HasSuffix(item, Separator) {
		item += Separator
	}
	return Path{FS: p.FS, Item: item + relPath}
}

func (p Path) Display() string {
	if p.IsNull() {
		return ""
	}
	return p.FS.DisplayPath(p.Item)
}

// Equal compares backend identity and item path.
func Equal(a, b Path) bool {
	return a.FS == b.FS && a.Item == b.Item
}

// BaseName returns the final path component.
func BaseName(itemPath string) string {
	if i := strings.LastIndex(itemPath, Separator); i >= 0 {
		return itemPath[i+1:]
	}
	return itemPath
}
