package content

import (
	"context"
	"io"
	"path"
	"time"
)

// ============================================================================
// ContentStore Interface
// ============================================================================

// ContentStore provides read access to the documents served by the web
// adapter.
//
// Paths are request paths: slash separated, rooted at "/", already
// percent-decoded. Implementations clean every path with CleanPath before
// using it, so ".." segments can never escape the served root.
//
// The store does not know about authentication, reserved names or default
// documents; the connection handler applies those rules before and after
// calling Stat and Open.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type ContentStore interface {
	// Stat returns metadata for the document or directory at p.
	//
	// Returns ErrContentNotFound (wrapped) when nothing exists at p.
	Stat(ctx context.Context, p string) (*FileInfo, error)

	// Open returns a reader for the document at p. The caller must close it.
	//
	// Returns ErrContentNotFound when nothing exists at p and ErrIsDirectory
	// when p is a directory.
	Open(ctx context.Context, p string) (io.ReadCloser, error)

	// Close releases any resources held by the store.
	Close() error
}

// FileInfo describes a document or directory.
type FileInfo struct {
	// Path is the cleaned request path.
	Path string

	// Size in bytes. Zero for directories.
	Size int64

	// ModTime is the last modification time.
	ModTime time.Time

	// IsDir reports whether Path names a directory.
	IsDir bool

	// ContentType is the MIME type of the document, empty for directories.
	ContentType string
}

// CleanPath normalizes a request path: it is made absolute, "." and ".."
// segments are resolved without ever climbing above "/", and any trailing
// slash is removed.
func CleanPath(p string) string {
	return path.Clean("/" + p)
}
