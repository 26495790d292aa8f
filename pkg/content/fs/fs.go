// Package fs implements a ContentStore backed by a directory on the local
// filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/pkg/content"
)

// FSContentStore serves documents from a root directory.
//
// Request paths are cleaned before they are joined with the root, so a
// request can never resolve to a file outside of it. Symbolic links inside
// the root are followed.
//
// Thread Safety:
// All operations are read-only and safe for concurrent use.
type FSContentStore struct {
	root string
}

// NewFSContentStore creates a store rooted at root.
//
// Context Cancellation:
// This operation checks the context before touching the filesystem.
//
// Parameters:
//   - ctx: Context for cancellation
//   - root: Directory holding the served documents. It must exist.
//
// Returns:
//   - *FSContentStore: Initialized store
//   - error: Returns error if root is missing or not a directory
func NewFSContentStore(ctx context.Context, root string) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory %q: %w", root, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to access root directory %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}

	return &FSContentStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FSContentStore) Root() string {
	return s.root
}

// localPath maps a request path to a filesystem path under the root.
func (s *FSContentStore) localPath(p string) (string, string) {
	clean := content.CleanPath(p)
	return clean, filepath.Join(s.root, filepath.FromSlash(clean))
}

// Stat returns metadata for the document or directory at p.
func (s *FSContentStore) Stat(ctx context.Context, p string) (*content.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, local := s.localPath(p)

	info, err := os.Stat(local)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, iofs.ErrPermission) {
			return nil, fmt.Errorf("document %s: %w", clean, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", clean, err)
	}

	fi := &content.FileInfo{
		Path:    clean,
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if !fi.IsDir {
		fi.Size = info.Size()
		fi.ContentType = s.contentType(local)
	}
	return fi, nil
}

// contentType resolves by extension first and sniffs the file otherwise.
func (s *FSContentStore) contentType(local string) string {
	if ct := content.DetectContentType(local, nil); ct != content.DefaultContentType {
		return ct
	}
	mt, err := mimetype.DetectFile(local)
	if err != nil {
		logger.Debug("Content sniffing failed for %s: %v", local, err)
		return content.DefaultContentType
	}
	return mt.String()
}

// Open returns a reader for the document at p.
func (s *FSContentStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, local := s.localPath(p)

	f, err := os.Open(local)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, iofs.ErrPermission) {
			return nil, fmt.Errorf("document %s: %w", clean, content.ErrContentNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", clean, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", clean, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("document %s: %w", clean, content.ErrIsDirectory)
	}

	return f, nil
}

// EnsureDocument creates an empty document named name directly under the
// root if nothing exists there yet. It is used for the reserved response
// documents (401.html, 403.html).
func (s *FSContentStore) EnsureDocument(name string) error {
	_, local := s.localPath(name)

	f, err := os.OpenFile(local, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, iofs.ErrExist) {
			return nil
		}
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	logger.Debug("Created empty document %s", local)
	return f.Close()
}

// Close is a no-op for the filesystem store.
func (s *FSContentStore) Close() error {
	return nil
}
