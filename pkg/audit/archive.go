package audit

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/edugatenow/edugate/pkg/storage/s3"
)

// Archiver stores an exported batch of entries under name and returns its location
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) (string, error)
}

// S3Archiver uploads archives to a bucket under prefix
type S3Archiver struct {
	client *s3.Client
	prefix string
}

// NewS3Archiver creates an archiver writing to client's bucket
func NewS3Archiver(client *s3.Client, prefix string) *S3Archiver {
	return &S3Archiver{client: client, prefix: prefix}
}

func (a *S3Archiver) Archive(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(a.prefix, name)
	if err := a.client.PutObject(ctx, key, data, "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("upload archive: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.client.Bucket(), key), nil
}

// FileArchiver writes archives into a local directory
type FileArchiver struct {
	dir string
}

// NewFileArchiver creates dir if needed
func NewFileArchiver(dir string) (*FileArchiver, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileArchiver{dir: dir}, nil
}

func (a *FileArchiver) Archive(ctx context.Context, name string, data []byte) (string, error) {
	target := filepath.Join(a.dir, filepath.Base(name))
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write archive: %w", err)
	}
	return target, nil
}
