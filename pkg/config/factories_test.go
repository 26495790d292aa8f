package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/sws/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeS3Options(t *testing.T) {
	opts, err := DecodeS3Options(map[string]any{
		"bucket":     "docs",
		"region":     "eu-west-1",
		"key_prefix": "site",
		"endpoint":   "http://localhost:4566",
	})
	require.NoError(t, err)
	assert.Equal(t, "docs", opts.Bucket)
	assert.Equal(t, "site/", opts.KeyPrefix)
	assert.Equal(t, "http://localhost:4566", opts.Endpoint)

	_, err = DecodeS3Options(map[string]any{"region": "eu-west-1"})
	assert.ErrorContains(t, err, "bucket is required")

	_, err = DecodeS3Options(map[string]any{"bucket": "docs"})
	assert.ErrorContains(t, err, "region is required")
}

func TestRootPrefix(t *testing.T) {
	tests := []struct {
		base, root, want string
	}{
		{"", ".", ""},
		{"", "/", ""},
		{"", "www", "www/"},
		{"site/", "/www/", "site/www/"},
		{"site/", "../../etc", "site/etc/"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, rootPrefix(tt.base, tt.root), "base=%q root=%q", tt.base, tt.root)
	}
}

func TestCreateListStore(t *testing.T) {
	ctx := context.Background()

	store, err := CreateListStore(ctx, &ListStoreConfig{Type: "memory"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = CreateListStore(ctx, &ListStoreConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": filepath.Join(t.TempDir(), "lists")},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = CreateListStore(ctx, &ListStoreConfig{Type: "etcd"})
	assert.Error(t, err)
}

func TestCreateAdmissionController(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Admission.SampleSize = 3
	cfg.Admission.Whitelist = []string{"10.0.0.1"}
	cfg.Admission.Blacklist = []string{"10.0.0.2"}

	ctrl, err := CreateAdmissionController(context.Background(), &cfg.Admission)
	require.NoError(t, err)
	defer ctrl.Close()

	assert.Equal(t, 3, ctrl.SampleSize())
	assert.Equal(t, 100*time.Millisecond, ctrl.TimeThreshold())
	assert.True(t, ctrl.IsWhitelisted("10.0.0.1"))
	assert.True(t, ctrl.IsBlacklisted("10.0.0.2"))
}

func TestCreateCredentialStore(t *testing.T) {
	dir := t.TempDir()
	passwd := filepath.Join(dir, "passwd.txt")
	perms := filepath.Join(dir, "permissions.txt")
	require.NoError(t, os.WriteFile(passwd, []byte("alice secret\n"), 0644))
	require.NoError(t, os.WriteFile(perms, []byte("/private.html:alice\n"), 0644))

	store, err := CreateCredentialStore(&AuthConfig{PasswdFile: passwd, PermissionsFile: perms})
	require.NoError(t, err)

	pw, ok := store.Password("alice")
	assert.True(t, ok)
	assert.Equal(t, "secret", pw)

	users, ok := store.AllowedUsers("/private.html")
	assert.True(t, ok)
	assert.Equal(t, []string{"alice"}, users)

	// Missing files are not fatal
	store, err = CreateCredentialStore(&AuthConfig{
		PasswdFile:      filepath.Join(dir, "missing"),
		PermissionsFile: filepath.Join(dir, "missing"),
	})
	require.NoError(t, err)
	_, ok = store.Password("alice")
	assert.False(t, ok)
}

func TestCreateServer(t *testing.T) {
	root := t.TempDir()
	cfg := GetDefaultConfig()
	cfg.Auth.PasswdFile = filepath.Join(root, "none")
	cfg.Auth.PermissionsFile = filepath.Join(root, "none")

	m := &MetricsResult{
		Counter:        metrics.NewServiceCounter(),
		WebMetrics:     metrics.NewNoopWebMetrics(),
		ContentMetrics: metrics.NewNoopContentMetrics(),
	}

	srv, err := CreateServer(context.Background(), cfg, m)
	require.NoError(t, err)
	assert.Same(t, m.Counter, srv.Counter())

	require.NoError(t, srv.Start(root, 0))
	assert.False(t, srv.IsStopped())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Close(ctx))
	assert.True(t, srv.IsStopped())
}

func TestInitializeMetricsDisabled(t *testing.T) {
	cfg := GetDefaultConfig()
	m := InitializeMetrics(cfg)

	assert.Nil(t, m.Server)
	assert.NotNil(t, m.Counter)
	assert.NotNil(t, m.WebMetrics)
	assert.NotNil(t, m.ContentMetrics)
}
