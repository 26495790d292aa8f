package testing

import (
	"errors"
	"io"
	"testing"

	"github.com/marmos91/sws/pkg/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorIs checks if the error matches the expected error using errors.Is.
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// mustStat stats p and fails the test if it errors.
func mustStat(t *testing.T, store content.ContentStore, p string) *content.FileInfo {
	t.Helper()
	info, err := store.Stat(testContext(), p)
	require.NoError(t, err, "Stat(%s) should succeed", p)
	return info
}

// mustRead opens and reads p and fails the test if it errors.
func mustRead(t *testing.T, store content.ContentStore, p string) []byte {
	t.Helper()
	reader, err := store.Open(testContext(), p)
	require.NoError(t, err, "Open(%s) should succeed", p)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err, "Reading content should succeed")
	return data
}

// assertContentEquals checks if content matches expected data.
func assertContentEquals(t *testing.T, store content.ContentStore, p string, expected []byte) {
	t.Helper()
	assert.Equal(t, expected, mustRead(t, store, p), "Content data mismatch")
}
