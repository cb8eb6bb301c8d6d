// Package plan loads a pre-computed comparison tree from a JSON plan file:
// base pairs, per-item sync operations and the per-pair configuration.
package plan

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/foldsync/foldsync/internal/engine"
	"github.com/foldsync/foldsync/internal/tree"
	"github.com/foldsync/foldsync/internal/versioning"
	"github.com/foldsync/foldsync/internal/vfs"
	"github.com/foldsync/foldsync/internal/vfs/localfs"
)

type File struct {
	Pairs []Pair `json:"pairs"`
}

type Pair struct {
	Left  string `json:"left"`
	Right string `json:"right"`

	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`

	DetectMovedFiles bool   `json:"detectMovedFiles,omitempty"`
	Deletion         string `json:"deletion,omitempty"` // permanent | trash | versioning
	VersioningFolder string `json:"versioningFolder,omitempty"`
	VersioningStyle  string `json:"versioningStyle,omitempty"` // replace | timestampFolder | timestampFile
	Variant          string `json:"variant,omitempty"`         // twoWay | mirror | update | custom
	SaveSyncDB       bool   `json:"saveSyncDb,omitempty"`

	Items []Item `json:"items"`
}

type Item struct {
	Type      string `json:"type"` // file | folder | symlink
	LeftName  string `json:"leftName,omitempty"`
	RightName string `json:"rightName,omitempty"`
	Op        string `json:"op"`

	LeftSize     int64     `json:"leftSize,omitempty"`
	RightSize    int64     `json:"rightSize,omitempty"`
	LeftModTime  time.Time `json:"leftModTime,omitempty"`
	RightModTime time.Time `json:"rightModTime,omitempty"`

	// MoveGroup pairs a MoveFrom item with its MoveTo partner.
	MoveGroup string `json:"moveGroup,omitempty"`

	Conflict string `json:"conflict,omitempty"`

	Children []Item `json:"children,omitempty"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	if len(f.Pairs) == 0 {
		return nil, fmt.Errorf("plan file %s contains no folder pairs", path)
	}
	return &f, nil
}

var opByName = func() map[string]tree.SyncOp {
	m := make(map[string]tree.SyncOp)
	for op := tree.OpCreateLeft; op <= tree.OpUnresolvedConflict; op++ {
		m[op.String()] = op
	}
	return m
}()

func parseOp(name string) (tree.SyncOp, error) {
	if name == "" {
		return tree.OpDoNothing, nil
	}
	if op, ok := opByName[name]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unknown sync operation %q", name)
}

func parseDeletion(name string) (engine.DeletionPolicy, error) {
	switch name {
	case "", "permanent":
		return engine.DeletePermanent, nil
	case "trash":
		return engine.DeleteToTrash, nil
	case "versioning":
		return engine.DeleteVersioning, nil
	}
	return 0, fmt.Errorf("unknown deletion policy %q", name)
}

func parseVersioningStyle(name string) (versioning.Style, error) {
	switch name {
	case "", "replace":
		return versioning.StyleReplace, nil
	case "timestampFolder":
		return versioning.StyleTimestampFolder, nil
	case "timestampFile":
		return versioning.StyleTimestampFile, nil
	}
	return 0, fmt.Errorf("unknown versioning style %q", name)
}

func parseVariant(name string) (engine.SyncVariant, error) {
	switch name {
	case "twoWay":
		return engine.VariantTwoWay, nil
	case "mirror":
		return engine.VariantMirror, nil
	case "update":
		return engine.VariantUpdate, nil
	case "", "custom":
		return engine.VariantCustom, nil
	}
	return 0, fmt.Errorf("unknown sync variant %q", name)
}

// Build turns one plan pair into its tree and engine configuration.
func (p *Pair) Build() (*tree.BaseFolderPair, engine.PairConfig, error) {
	cfg := engine.PairConfig{
		DetectMovedFiles: p.DetectMovedFiles,
		SaveSyncDB:       p.SaveSyncDB,
	}
	var err error
	if cfg.HandleDeletion, err = parseDeletion(p.Deletion); err != nil {
		return nil, cfg, err
	}
	if cfg.VersioningStyle, err = parseVersioningStyle(p.VersioningStyle); err != nil {
		return nil, cfg, err
	}
	if cfg.SyncVariant, err = parseVariant(p.Variant); err != nil {
		return nil, cfg, err
	}
	if p.VersioningFolder != "" {
		cfg.VersioningFolder = localfs.NewPath(p.VersioningFolder)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}

	var left, right vfs.Path
	if p.Left != "" {
		left = localfs.NewPath(p.Left)
	}
	if p.Right != "" {
		right = localfs.NewPath(p.Right)
	}
	base := tree.NewBaseFolderPair(left, right, tree.NewPathFilter(p.Include, p.Exclude))

	moveGroups := make(map[string][]*tree.FilePair)
	if err := buildItems(base, p.Items, moveGroups); err != nil {
		return nil, cfg, err
	}
	for group, members := range moveGroups {
		if len(members) != 2 {
			return nil, cfg, fmt.Errorf("move group %q must pair exactly two files, got %d", group, len(members))
		}
		members[0].SetMoveRef(members[1].ID())
		members[1].SetMoveRef(members[0].ID())
	}
	return base, cfg, nil
}

func buildItems(parent tree.Container, items []Item, moveGroups map[string][]*tree.FilePair) error {
	for i := range items {
		item := &items[i]
		op, err := parseOp(item.Op)
		if err != nil {
			return err
		}
		switch item.Type {
		case "file":
			var leftAttrs, rightAttrs *tree.FileAttrs
			if item.LeftName != "" {
				leftAttrs = &tree.FileAttrs{Size: item.LeftSize, ModTime: item.LeftModTime}
			}
			if item.RightName != "" {
				rightAttrs = &tree.FileAttrs{Size: item.RightSize, ModTime: item.RightModTime}
			}
			f := tree.AddFile(parent, item.LeftName, item.RightName, op, leftAttrs, rightAttrs)
			if item.Conflict != "" {
				f.SetConflictMessage(item.Conflict)
			}
			if item.MoveGroup != "" {
				moveGroups[item.MoveGroup] = append(moveGroups[item.MoveGroup], f)
			}
		case "symlink":
			var leftAttrs, rightAttrs *tree.LinkAttrs
			if item.LeftName != "" {
				leftAttrs = &tree.LinkAttrs{ModTime: item.LeftModTime}
			}
			if item.RightName != "" {
				rightAttrs = &tree.LinkAttrs{ModTime: item.RightModTime}
			}
			l := tree.AddSymlink(parent, item.LeftName, item.RightName, op, leftAttrs, rightAttrs)
			if item.Conflict != "" {
				l.SetConflictMessage(item.Conflict)
			}
		case "folder":
			d := tree.AddFolder(parent, item.LeftName, item.RightName, op, tree.FolderAttrs{}, tree.FolderAttrs{})
			if item.Conflict != "" {
				d.SetConflictMessage(item.Conflict)
			}
			if err := buildItems(d, item.Children, moveGroups); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown item type %q", item.Type)
		}
	}
	return nil
}
