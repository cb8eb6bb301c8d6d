package localfs

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/foldsync/foldsync/internal/vfs"
)

const copyBlockSize = 128 * 1024

// CopyFileTransactional copies srcPath to dst. With failSafe the content is
// written to "<target>.fsx_tmp" first and renamed into place, so a failed
// copy never leaves a half-written target. onDeleteTarget runs at the commit
// point, just before the new content lands.
func (l *FS) CopyFileTransactional(ctx context.Context, srcPath string, srcAttrs vfs.StreamAttrs,
	dst vfs.Path, copyPermissions, failSafe bool, onDeleteTarget func() error, onProgress vfs.ProgressFunc) (vfs.CopyResult, error) {

	if _, ok := dst.FS.(*FS); !ok {
		return vfs.CopyResult{}, vfs.NewFileError("cannot copy file across backends", nil)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return vfs.CopyResult{}, vfs.FileErrorf(err, "cannot read file %s", srcPath)
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return vfs.CopyResult{}, vfs.FileErrorf(err, "cannot read file %s", srcPath)
	}

	writePath := dst.Item
	if failSafe {
		writePath = dst.Item + vfs.TempFileSuffix
	} else if onDeleteTarget != nil {
		if err := onDeleteTarget(); err != nil {
			return vfs.CopyResult{}, err
		}
	}

	copied, err := l.writeFileContent(ctx, src, writePath, onProgress)
	if err != nil {
		os.Remove(writePath)
		return vfs.CopyResult{}, err
	}

	result := vfs.CopyResult{
		Size:       copied,
		SrcModTime: srcInfo.ModTime(),
		DstModTime: srcInfo.ModTime(),
		SrcFileID:  fileID(srcInfo),
	}

	if err := os.Chtimes(writePath, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		result.ErrModTime = vfs.FileErrorf(err, "cannot write modification time of %s", dst.Item)
	}
	if copyPermissions {
		if err := os.Chmod(writePath, srcInfo.Mode().Perm()); err != nil {
			os.Remove(writePath)
			return vfs.CopyResult{}, vfs.FileErrorf(err, "cannot copy permissions to %s", dst.Item)
		}
	}

	if failSafe {
		if onDeleteTarget != nil {
			if err := onDeleteTarget(); err != nil {
				os.Remove(writePath)
				return vfs.CopyResult{}, err
			}
		}
		if err := os.Rename(writePath, dst.Item); err != nil {
			os.Remove(writePath)
			return vfs.CopyResult{}, vfs.FileErrorf(err, "cannot move %s to %s", writePath, dst.Item)
		}
	}

	if dstInfo, err := os.Lstat(dst.Item); err == nil {
		result.DstFileID = fileID(dstInfo)
		if result.ErrModTime != nil {
			result.DstModTime = dstInfo.ModTime()
		}
	}
	return result, nil
}

func (l *FS) writeFileContent(ctx context.Context, src io.Reader, writePath string, onProgress vfs.ProgressFunc) (int64, error) {
	out, err := os.OpenFile(writePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, vfs.FileErrorf(err, "cannot write file %s", writePath)
	}

	var copied int64
	buf := make([]byte, copyBlockSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				out.Close()
				return copied, vfs.FileErrorf(err, "cannot write file %s", writePath)
			}
			copied += int64(n)
			if onProgress != nil {
				if err := onProgress(int64(n)); err != nil {
					out.Close()
					return copied, err
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			out.Close()
			return copied, vfs.FileErrorf(readErr, "cannot read source file")
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return copied, vfs.FileErrorf(err, "cannot flush file %s", writePath)
	}
	if err := out.Close(); err != nil {
		return copied, vfs.FileErrorf(err, "cannot write file %s", writePath)
	}
	return copied, nil
}
