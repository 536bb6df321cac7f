package filesystem

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"media-compressor/internal/logging"
)

const hashChunkSize = 1 << 20

// HashFile returns the hex-encoded SHA-1 of the file contents.
func HashFile(path string) (string, error) {
	f, err := OpenWithRetry(path, DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsWithin reports whether path equals dir or lies beneath it. Both paths
// are cleaned; "/a/bc" is not within "/a/b".
func IsWithin(dir, path string) bool {
	dir = filepath.Clean(dir)
	path = filepath.Clean(path)
	if dir == path {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// IsFile reports whether path is an existing regular file.
func IsFile(path string) bool {
	info, err := StatWithRetry(path, DefaultRetryConfig())
	return err == nil && info.Mode().IsRegular()
}

// RemoveIfExists deletes a file, returning whether it existed.
func RemoveIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to remove %s: %w", path, err)
}

// Reserve creates the parent directories and an empty placeholder file at
// path without truncating an existing file.
func Reserve(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to reserve %s: %w", path, err)
	}
	return f.Close()
}

// FileTimes returns the creation (or status change, where the platform
// has no birth time) and modification timestamps for a file.
func FileTimes(info os.FileInfo) (created, modified time.Time) {
	return creationTime(info), info.ModTime()
}

// CleanEmptyDirs removes empty directories below root, deepest first. The
// root itself is kept.
func CleanEmptyDirs(root string) (int, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return 0, nil
	}
	return cleanEmptyDirs(root, false)
}

func cleanEmptyDirs(dir string, removeSelf bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := cleanEmptyDirs(filepath.Join(dir, entry.Name()), true)
		removed += n
		if err != nil {
			return removed, err
		}
	}

	if !removeSelf {
		return removed, nil
	}

	entries, err = os.ReadDir(dir)
	if err != nil {
		return removed, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	if len(entries) == 0 {
		logging.Info("Removing empty directory: %s", dir)
		if err := os.Remove(dir); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		removed++
	}
	return removed, nil
}

// ClearDir deletes every child of dir but keeps dir itself. A missing dir
// is not an error.
func ClearDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
