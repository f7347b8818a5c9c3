// Package archive keeps an off-host copy of transferred payloads in an
// S3-compatible bucket. Archiving is strictly best-effort: it never affects
// an item's transfer outcome.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/you-humble/chatmover/internal/libs/mio"
)

type Store struct {
	db       *minio.Client
	bucket   string
	basePath string
}

func NewMinIOStore(ctx context.Context, cfg mio.Config) (*Store, error) {
	client, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	basePath := strings.Trim(cfg.BasePath, "/")
	if basePath != "" {
		basePath += "/"
	}

	return &Store{
		db:       client,
		bucket:   cfg.Bucket,
		basePath: basePath,
	}, nil
}

// Save uploads one local file under the given object name.
func (s *Store) Save(ctx context.Context, localPath, objectName string) error {
	name, err := s.objectName(objectName)
	if err != nil {
		return err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("archive open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("archive stat %s: %w", localPath, err)
	}

	if _, err := s.db.PutObject(ctx, s.bucket, name, f, info.Size(), minio.PutObjectOptions{}); err != nil {
		return fmt.Errorf("archive put %s: %w", name, err)
	}
	return nil
}

// CleanupOlderThan removes archived objects past the retention age.
func (s *Store) CleanupOlderThan(ctx context.Context, maxAge time.Duration) error {
	border := time.Now().Add(-maxAge)

	for obj := range s.db.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.basePath,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return fmt.Errorf("archive list: %w", obj.Err)
		}
		if obj.LastModified.After(border) {
			continue
		}
		if err := s.db.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("archive remove %s: %w", obj.Key, err)
		}
	}
	return nil
}

func (s *Store) objectName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty object name")
	}

	clean := path.Clean(name)
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object name: %s", name)
	}
	clean = strings.TrimLeft(clean, "/")

	return s.basePath + clean, nil
}
