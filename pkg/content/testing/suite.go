package testing

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/sws/pkg/content"
)

// Document is a seed document for a store under test.
type Document struct {
	Path    string
	Data    []byte
	ModTime time.Time
}

// StoreTestSuite is a test suite for ContentStore implementations. It tests
// the interface contract, not implementation details, making it reusable
// across implementations (filesystem, memory, S3).
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &contenttesting.StoreTestSuite{
//	        NewStore: func(t *testing.T, docs []contenttesting.Document) content.ContentStore {
//	            return mystore.New(docs...)
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh store holding exactly docs. Directories are
	// implied by the document paths.
	NewStore func(t *testing.T, docs []Document) content.ContentStore

	// BackendModTime is set for stores whose backend assigns modification
	// times itself (S3), so seeded ModTime values are not checked.
	BackendModTime bool
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Stat", suite.RunStatTests)
	t.Run("Open", suite.RunOpenTests)
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}

// seedTime is the modification time of every seed document.
var seedTime = time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)

// seedDocuments is the document tree shared by the suite's tests.
func seedDocuments() []Document {
	return []Document{
		{Path: "/index.html", Data: []byte("<h1>root</h1>"), ModTime: seedTime},
		{Path: "/docs/index.html", Data: []byte("<h1>docs</h1>"), ModTime: seedTime},
		{Path: "/docs/readme.txt", Data: []byte("read me"), ModTime: seedTime},
		{Path: "/empty/sub/file.css", Data: []byte("body{}"), ModTime: seedTime},
	}
}
