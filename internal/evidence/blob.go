package evidence

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalBlobStore keeps uploaded artifacts on the local filesystem. Artifact
// refs are opaque to callers; here they are paths relative to the root dir.
type LocalBlobStore struct {
	root string
}

func NewLocalBlobStore(root string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &LocalBlobStore{root: root}, nil
}

// Put stores the artifact and returns its ref.
func (b *LocalBlobStore) Put(ctx context.Context, fileName string, r io.Reader) (string, error) {
	ref := uuid.New().String() + sanitizeExt(fileName)
	f, err := os.Create(filepath.Join(b.root, ref))
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return ref, nil
}

// Open returns a reader for a stored artifact.
func (b *LocalBlobStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(b.root, filepath.Base(ref)))
}

// Remove deletes a stored artifact. Missing files are not an error.
func (b *LocalBlobStore) Remove(ctx context.Context, ref string) error {
	err := os.Remove(filepath.Join(b.root, filepath.Base(ref)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func sanitizeExt(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
