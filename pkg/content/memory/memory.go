// Package memory implements an in-memory ContentStore.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/sws/pkg/content"
)

type document struct {
	data    []byte
	modTime time.Time
}

// MemoryContentStore implements ContentStore using in-memory storage.
//
// It is designed for tests and for embedding the server with a small,
// programmatically built document tree. Directories are implied by document
// paths: "/a/b.html" makes "/a" and "/" directories.
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on Put so
// callers may reuse their buffers.
type MemoryContentStore struct {
	mu   sync.RWMutex
	docs map[string]document
	dirs map[string]time.Time
}

// NewMemoryContentStore creates an empty store. Only the root directory
// exists.
//
// Parameters:
//   - ctx: Context for cancellation (checked before initialization)
//
// Returns:
//   - *MemoryContentStore: Initialized store
//   - error: Only returns error if context is cancelled
func NewMemoryContentStore(ctx context.Context) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryContentStore{
		docs: make(map[string]document),
		dirs: map[string]time.Time{"/": time.Now()},
	}, nil
}

// Put stores data at p, replacing any existing document, and creates the
// parent directories.
func (s *MemoryContentStore) Put(p string, data []byte, modTime time.Time) error {
	clean := content.CleanPath(p)
	if clean == "/" {
		return fmt.Errorf("cannot store a document at the root")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, isDir := s.dirs[clean]; isDir {
		return fmt.Errorf("document %s: %w", clean, content.ErrIsDirectory)
	}

	s.docs[clean] = document{data: bytes.Clone(data), modTime: modTime}

	for dir := parent(clean); ; dir = parent(dir) {
		if _, ok := s.dirs[dir]; !ok {
			s.dirs[dir] = modTime
		}
		if dir == "/" {
			break
		}
	}
	return nil
}

func parent(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// Stat returns metadata for the document or directory at p.
func (s *MemoryContentStore) Stat(ctx context.Context, p string) (*content.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := content.CleanPath(p)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[clean]; ok {
		return &content.FileInfo{
			Path:        clean,
			Size:        int64(len(doc.data)),
			ModTime:     doc.modTime,
			ContentType: content.DetectContentType(clean, doc.data),
		}, nil
	}
	if mod, ok := s.dirs[clean]; ok {
		return &content.FileInfo{Path: clean, ModTime: mod, IsDir: true}, nil
	}
	return nil, fmt.Errorf("document %s: %w", clean, content.ErrContentNotFound)
}

// Open returns a reader over a snapshot of the document at p.
func (s *MemoryContentStore) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := content.CleanPath(p)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.docs[clean]; ok {
		return io.NopCloser(bytes.NewReader(doc.data)), nil
	}
	if _, ok := s.dirs[clean]; ok {
		return nil, fmt.Errorf("document %s: %w", clean, content.ErrIsDirectory)
	}
	return nil, fmt.Errorf("document %s: %w", clean, content.ErrContentNotFound)
}

// Close is a no-op.
func (s *MemoryContentStore) Close() error {
	return nil
}
