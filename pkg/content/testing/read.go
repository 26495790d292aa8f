package testing

import (
	"testing"
	"time"

	"github.com/marmos91/sws/pkg/content"
	"github.com/stretchr/testify/assert"
)

// RunStatTests executes all Stat tests.
func (suite *StoreTestSuite) RunStatTests(t *testing.T) {
	t.Run("File", suite.testStatFile)
	t.Run("Directory", suite.testStatDirectory)
	t.Run("Root", suite.testStatRoot)
	t.Run("NotFound", suite.testStatNotFound)
	t.Run("UncleanPath", suite.testStatUncleanPath)
}

// RunOpenTests executes all Open tests.
func (suite *StoreTestSuite) RunOpenTests(t *testing.T) {
	t.Run("File", suite.testOpenFile)
	t.Run("NotFound", suite.testOpenNotFound)
	t.Run("Directory", suite.testOpenDirectory)
}

// ============================================================================
// Stat Tests
// ============================================================================

func (suite *StoreTestSuite) testStatFile(t *testing.T) {
	store := suite.NewStore(t, seedDocuments())
	defer store.Close()

	info := mustStat(t, store, "/docs/readme.txt")
	assert.Equal(t, "/docs/readme.txt", info.Path)
	assert.False(t, info.IsDir)
	assert.Equal(t, int64(len("read me")), info.Size)
	if !suite.BackendModTime {
		assert.True(t, info.ModTime.Truncate(time.Second).Equal(seedTime), "modtime %v", info.ModTime)
	}
	assert.Contains(t, info.ContentType, "text/plain")
}

func (suite *StoreTestSuite) testStatDirectory(t *testing.T) {
	store := suite.NewStore(t, seedDocuments())
	defer store.Close()

	assert.True(t, mustStat(t, store, "/docs").IsDir)
	assert.True(t, mustStat(t, store, "/docs/").IsDir)
	assert.True(t, mustStat(t, store, "/empty").IsDir)
}

func (suite *StoreTestSuite) testStatRoot(t *testing.T) {
	store := suite.NewStore(t, seedDocuments())
	defer store.Close()

	info := mustStat(t, store, "/")
	assert.True(t, info.IsDir)
	assert.Equal(t, "/", info.Path)
}

func (suite *StoreTestSuite) testStatNotFound(t *testing.T) {
	store := suite.NewStore(t, seedDocuments())
	defer store.Close()

	for _, p := range []string{"/missing.html", "/docs/missing", "/empty/index.html"} {
		_, err := store.Stat(testContext(), p)
		AssertErrorIs(t, content.ErrContentNotFound, err)
	}
}

func (suite *StoreTestSuite) testStatUncleanPath(t *testing.T) {
	store := suite.NewStore(t, seedDocuments())
	defer store.Close()

	info := mustStat(t, store, "/docs/../docs/./readme.txt")
	assert.Equal(t, "/docs/readme.txt", info.Path)
}

// ============================================================================
// Open Tests
// ============================================================================

func (suite *StoreTestSuite) testOpenFile(t *testing.T) {
	store := suite.NewStore(t, seedDocuments())
	defer store.Close()

	assertContentEquals(t, store, "/index.html", []byte("<h1>root</h1>"))
	assertContentEquals(t, store, "/empty/sub/file.css", []byte("body{}"))
}

func (suite *StoreTestSuite) testOpenNotFound(t *testing.T) {
	store := suite.NewStore(t, seedDocuments())
	defer store.Close()

	_, err := store.Open(testContext(), "/nope.txt")
	AssertErrorIs(t, content.ErrContentNotFound, err)
}

func (suite *StoreTestSuite) testOpenDirectory(t *testing.T) {
	store := suite.NewStore(t, seedDocuments())
	defer store.Close()

	_, err := store.Open(testContext(), "/docs")
	assert.Error(t, err)
}
