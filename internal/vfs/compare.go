package vfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

const compareBlockSize = 128 * 1024

// HaveSameContent bitwise-compares two files. onProgress, if non-nil, receives
// the bytes read from both sides together per block.
func HaveSameContent(ctx context.Context, a, b Path, onProgress ProgressFunc) (bool, error) {
	ra, err := a.FS.OpenRead(ctx, a.Item)
	if err != nil {
		return false, FileErrorf(err, "cannot read file %s", a.Display())
	}
	defer ra.Close()

	rb, err := b.FS.OpenRead(ctx, b.Item)
	if err != nil {
		return false, FileErrorf(err, "cannot read file %s", b.Display())
	}
	defer rb.Close()

	bufA := make([]byte, compareBlockSize)
	bufB := make([]byte, compareBlockSize)
	for {
		na, errA := io.ReadFull(ra, bufA)
		nb, errB := io.ReadFull(rb, bufB)
		if errA != nil && errA != io.EOF && errA != io.ErrUnexpectedEOF {
			return false, FileErrorf(errA, "cannot read file %s", a.Display())
		}
		if errB != nil && errB != io.EOF && errB != io.ErrUnexpectedEOF {
			return false, FileErrorf(errB, "cannot read file %s", b.Display())
		}
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if onProgress != nil {
			if err := onProgress(int64(na) * 2); err != nil {
				return false, err
			}
		}
		if na < compareBlockSize {
			return true, nil
		}
	}
}

// VerifyFiles re-reads target after a copy and compares it with source,
// flushing target buffers first. A mismatch or read failure surfaces as a
// "data verification error".
func VerifyFiles(ctx context.Context, source, target Path, onProgress ProgressFunc) error {
	if err := target.FS.FlushBuffers(ctx, target.Item); err != nil {
		return NewFileError("data verification error", err)
	}
	same, err := HaveSameContent(ctx, source, target, onProgress)
	if err != nil {
		return NewFileError("data verification error", err)
	}
	if !same {
		return NewFileError("data verification error",
			fmt.Errorf("%s and %s have different content", source.Display(), target.Display()))
	}
	return nil
}
