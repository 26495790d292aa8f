package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// These errors give every content store implementation a consistent way to
// report common failure conditions. The web adapter checks for them with
// errors.Is and maps them to response codes.
//
// Usage Pattern:
//
//	info, err := store.Stat(ctx, "/docs/index.html")
//	if err != nil {
//	    if errors.Is(err, content.ErrContentNotFound) {
//	        return http.NewNotFoundResponse()
//	    }
//	    ...
//	}
//
// Implementations wrap these errors with the offending path:
//
//	return nil, fmt.Errorf("document %s: %w", p, content.ErrContentNotFound)

var (
	// ErrContentNotFound indicates the requested document does not exist.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrContentNotFound = errors.New("content not found")

	// ErrIsDirectory indicates Open was called on a directory.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found (after default document resolution failed)
	ErrIsDirectory = errors.New("content is a directory")

	// ErrUnavailable indicates the storage backend is temporarily unavailable.
	//
	// This is a transient error: retrying may succeed.
	ErrUnavailable = errors.New("storage unavailable")
)
