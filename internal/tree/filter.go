package tree

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PathFilter selects which pair-relative paths take part in a base pair.
// Patterns use doublestar syntax against "/"-joined relative paths. An empty
// include list admits everything.
type PathFilter struct {
	include []string
	exclude []string
}

func NewPathFilter(include, exclude []string) *PathFilter {
	return &PathFilter{include: include, exclude: exclude}
}

// IsNull reports a filter that passes every path.
func (f *PathFilter) IsNull() bool {
	return len(f.include) == 0 && len(f.exclude) == 0
}

// Matches reports whether relPath participates in the sync.
func (f *PathFilter) Matches(relPath string) bool {
	relPath = strings.Trim(relPath, "/")
	for _, pat := range f.exclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pat := range f.include {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return true
		}
	}
	return false
}
