package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// FileStore releases uploaded media resources that no message references
// anymore. Upload itself belongs to the external file collaborator.
type FileStore interface {
	Release(ctx context.Context, refs []string) error
}

// LocalStore removes uploaded files from a directory on disk.
type LocalStore struct {
	dir string
	log *zap.SugaredLogger
}

// NewLocalStore constructs a LocalStore rooted at dir.
func NewLocalStore(dir string, log *zap.SugaredLogger) *LocalStore {
	return &LocalStore{dir: dir, log: log}
}

// Release deletes the files behind the given media references. Missing files
// are not an error; the reference may already be gone.
func (s *LocalStore) Release(ctx context.Context, refs []string) error {
	var failed []string
	for _, ref := range refs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		path := filepath.Join(s.dir, filepath.Base(ref))
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			s.log.Warnw("remove media file failed", "path", path, "error", err)
			failed = append(failed, ref)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("release media: %d of %d files failed", len(failed), len(refs))
	}
	return nil
}
