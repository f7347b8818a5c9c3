package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Archiver spools a payload out of the task's staging directory and hands it
// to the async replicator, so the worker can clean its staging tree without
// waiting for the bucket upload.
type Archiver struct {
	repl     *Replicator
	spoolDir string
}

func NewArchiver(repl *Replicator, spoolDir string) (*Archiver, error) {
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Archiver{repl: repl, spoolDir: spoolDir}, nil
}

// Archive copies the file into the spool and enqueues the replication.
// Best-effort: every failure is logged and swallowed.
func (a *Archiver) Archive(localPath, objectName string) {
	spooled := filepath.Join(a.spoolDir, uuid.NewString())

	if err := spoolFile(localPath, spooled); err != nil {
		slog.Warn("archive spool",
			slog.String("path", localPath),
			slog.String("error", err.Error()),
		)
		return
	}

	ok := a.repl.Enqueue(Job{
		LocalPath:   spooled,
		ObjectName:  objectName,
		RemoveLocal: true,
	})
	if !ok {
		slog.Warn("archive queue full, payload not archived",
			slog.String("object", objectName),
		)
		_ = os.Remove(spooled)
	}
}

func (a *Archiver) Close(ctx context.Context) error {
	return a.repl.Stop(ctx)
}

// spoolFile prefers a hard link and falls back to a copy across filesystems.
func spoolFile(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
