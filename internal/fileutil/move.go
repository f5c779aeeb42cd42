// Package fileutil moves processed workbooks between directories.
package fileutil

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// AvailablePath returns dir/name, or a timestamp-suffixed variant when that
// name is already taken.
func AvailablePath(dir, name string, now time.Time) (string, error) {
	target := filepath.Join(dir, name)
	_, err := os.Stat(target)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return target, nil
	case err != nil:
		return "", err
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, stem+"-"+now.Format("20060102150405")+ext), nil
}

// MoveInto moves path into dir without overwriting, returning the new location.
func MoveInto(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	target, err := AvailablePath(dir, filepath.Base(path), time.Now())
	if err != nil {
		return "", err
	}
	if err := Move(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// Move renames src to dst, copying across filesystems when rename cannot.
func Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyVerified(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyVerified removes dst when the copied bytes do not hash to the source.
func copyVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	srcHash := sha256.New()
	written, err := io.Copy(out, io.TeeReader(in, srcHash))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if written != info.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}

	check, err := os.Open(dst)
	if err != nil {
		return err
	}
	defer check.Close()
	dstHash := sha256.New()
	if _, err := io.Copy(dstHash, check); err != nil {
		return err
	}
	if string(srcHash.Sum(nil)) != string(dstHash.Sum(nil)) {
		_ = os.Remove(dst)
		return errors.New("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
