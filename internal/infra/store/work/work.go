// Package workstore manages the local staging tree for in-flight transfers:
// one directory per user per task, removed on every exit path, with a full
// sweep at process startup as crash recovery.
package workstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/you-humble/chatmover/internal/domain"
)

type Store struct {
	baseDir string
}

func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir is empty")
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}

	return &Store{baseDir: baseDir}, nil
}

// Sweep removes everything under the staging root. In-flight tasks do not
// survive a restart, so anything found here is a leftover.
func (s *Store) Sweep() error {
	if err := os.RemoveAll(s.baseDir); err != nil {
		return fmt.Errorf("sweep %s: %w", s.baseDir, err)
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("recreate %s: %w", s.baseDir, err)
	}
	return nil
}

// TaskDir creates and returns the staging directory for one task's item.
func (s *Store) TaskDir(owner domain.UserID, handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" || strings.Contains(handle, "..") || strings.ContainsRune(handle, os.PathSeparator) {
		return "", fmt.Errorf("invalid task handle %q", handle)
	}

	dir := filepath.Join(s.baseDir, strconv.FormatInt(int64(owner), 10), handle)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task dir: %w", err)
	}
	return dir, nil
}

// RemoveTaskDir drops the task's staging directory with everything in it.
func (s *Store) RemoveTaskDir(owner domain.UserID, handle string) error {
	dir := filepath.Join(s.baseDir, strconv.FormatInt(int64(owner), 10), handle)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove task dir %s: %w", dir, err)
	}
	return nil
}

var (
	colonRe    = regexp.MustCompile(`[:]`)
	reservedRe = regexp.MustCompile(`[\\/*?"<>|\[\]]`)
)

// SanitizeFilename makes an item's original filename safe for the staging
// tree: reserved characters stripped, base name capped, a default extension
// when none is present.
func SanitizeFilename(name string) string {
	if name == "" {
		return "unnamed_file.dat"
	}

	name = colonRe.ReplaceAllString(name, "-")
	name = reservedRe.ReplaceAllString(name, "")

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if len(base) > 60 {
		base = base[:60]
	}
	if ext == "" {
		ext = ".dat"
	}

	out := base + ext
	if strings.TrimSpace(strings.TrimSuffix(out, ".dat")) == "" {
		return "unnamed_file.dat"
	}
	return out
}
