// Package trash implements a buffered trash session for local folders:
// deletions are renamed into a hidden per-session staging folder, then moved
// to the user trash (or removed permanently when the trash is unreachable)
// during cleanup.
package trash

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type stagedItem struct {
	stagedPath  string
	displayPath string
	relPath     string
}

// Session buffers deletions for one base folder. Construction verifies the
// base folder; the staging folder is created on first use.
type Session struct {
	baseDir    string
	stagingDir string
	staged     []stagedItem
}

func NewSession(baseDir string) (*Session, error) {
	fi, err := os.Stat(baseDir)
	if err != nil {
		return nil, fmt.Errorf("cannot open trash session for %s: %w", baseDir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("cannot open trash session for %s: not a folder", baseDir)
	}
	return &Session{baseDir: baseDir}, nil
}

// Recycle moves the item into the staging folder. Returns false without
// error when the item does not exist.
func (s *Session) Recycle(ctx context.Context, itemPath, relPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := os.Lstat(itemPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("cannot delete %s: %w", itemPath, err)
	}
	if s.stagingDir == "" {
		dir := filepath.Join(s.baseDir, ".trash."+uuid.NewString()[:8]+".tmp")
		if err := os.Mkdir(dir, 0o700); err != nil {
			return false, fmt.Errorf("cannot create trash staging folder: %w", err)
		}
		s.stagingDir = dir
	}
	staged := filepath.Join(s.stagingDir, fmt.Sprintf("%03d_%s", len(s.staged), filepath.Base(itemPath)))
	if err := os.Rename(itemPath, staged); err != nil {
		return false, fmt.Errorf("cannot move %s to the trash: %w", itemPath, err)
	}
	s.staged = append(s.staged, stagedItem{stagedPath: staged, displayPath: itemPath, relPath: relPath})
	return true, nil
}

// Cleanup flushes staged items to the user trash and removes the staging
// folder. Items that cannot be moved (e.g. trash on another volume) are
// removed permanently. onStatus is invoked per item; an empty display path
// means "refresh only".
func (s *Session) Cleanup(ctx context.Context, onStatus func(displayPath string) error) error {
	if s.stagingDir == "" {
		return nil
	}
	trashFiles, trashInfo, trashErr := userTrashDirs()
	for _, item := range s.staged {
		if err := ctx.Err(); err != nil {
			return err
		}
		if onStatus != nil {
			if err := onStatus(item.displayPath); err != nil {
				return err
			}
		}
		if trashErr == nil && s.moveToTrash(item, trashFiles, trashInfo) == nil {
			continue
		}
		if err := os.RemoveAll(item.stagedPath); err != nil {
			return fmt.Errorf("cannot delete %s: %w", item.displayPath, err)
		}
	}
	s.staged = nil
	if onStatus != nil {
		if err := onStatus(""); err != nil {
			return err
		}
	}
	if err := os.Remove(s.stagingDir); err != nil {
		return fmt.Errorf("cannot remove trash staging folder: %w", err)
	}
	s.stagingDir = ""
	return nil
}

func (s *Session) moveToTrash(item stagedItem, trashFiles, trashInfo string) error {
	name := uniqueTrashName(trashFiles, filepath.Base(item.displayPath))
	if err := os.Rename(item.stagedPath, filepath.Join(trashFiles, name)); err != nil {
		return err
	}
	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		item.displayPath, time.Now().Format("2006-01-02T15:04:05"))
	return os.WriteFile(filepath.Join(trashInfo, name+".trashinfo"), []byte(info), 0o600)
}

// Supported reports whether the user trash directory is usable.
func Supported() (bool, error) {
	_, _, err := userTrashDirs()
	if err != nil {
		return false, nil
	}
	return true, nil
}

func userTrashDirs() (files, info string, err error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	files = filepath.Join(dataDir, "Trash", "files")
	info = filepath.Join(dataDir, "Trash", "info")
	if err := os.MkdirAll(files, 0o700); err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(info, 0o700); err != nil {
		return "", "", err
	}
	return files, info, nil
}

func uniqueTrashName(trashFiles, name string) string {
	candidate := name
	for i := 2; ; i++ {
		if _, err := os.Lstat(filepath.Join(trashFiles, candidate)); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		ext := filepath.Ext(name)
		candidate = fmt.Sprintf("%s.%d%s", strings.TrimSuffix(name, ext), i, ext)
	}
}
