// Package badger persists the admission allow and deny sets in BadgerDB.
//
// Key schema:
//
//	a:<ip>  -> RFC 3339 time the address was added to the allow set
//	d:<ip>  -> RFC 3339 time the address was added to the deny set
package badger

import (
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/sws/internal/logger"
	"github.com/marmos91/sws/pkg/admission"
)

// BadgerListStoreConfig configures the store.
type BadgerListStoreConfig struct {
	// DBPath is the database directory. Created if missing.
	DBPath string `mapstructure:"db_path" validate:"required"`

	// InMemory runs BadgerDB without touching disk. DBPath is ignored.
	InMemory bool `mapstructure:"in_memory"`
}

// BadgerListStore implements admission.ListStore on BadgerDB.
type BadgerListStore struct {
	db *badger.DB
}

var _ admission.ListStore = (*BadgerListStore)(nil)

// NewBadgerListStore opens (or creates) the database.
func NewBadgerListStore(ctx context.Context, cfg BadgerListStoreConfig) (*BadgerListStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("badger list store: db_path is required")
		}
		opts = badger.DefaultOptions(cfg.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	logger.Debug("Badger list store opened at %s (in_memory=%t)", cfg.DBPath, cfg.InMemory)
	return &BadgerListStore{db: db}, nil
}

func key(list admission.List, addr string) []byte {
	return []byte(string(rune(list)) + ":" + addr)
}

func prefix(list admission.List) []byte {
	return []byte(string(rune(list)) + ":")
}

// Load returns both sets in key order.
func (s *BadgerListStore) Load(ctx context.Context) ([]string, []string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var allow, deny []string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if allow, err = scan(txn, admission.ListAllow); err != nil {
			return err
		}
		deny, err = scan(txn, admission.ListDeny)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load address lists: %w", err)
	}
	return allow, deny, nil
}

func scan(txn *badger.Txn, list admission.List) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix(list)

	it := txn.NewIterator(opts)
	defer it.Close()

	var out []string
	p := len(opts.Prefix)
	for it.Rewind(); it.Valid(); it.Next() {
		k := it.Item().Key()
		out = append(out, string(k[p:]))
	}
	return out, nil
}

// Put records addr on list.
func (s *BadgerListStore) Put(ctx context.Context, list admission.List, addr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(list, addr), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// Delete removes addr from list.
func (s *BadgerListStore) Delete(ctx context.Context, list admission.List, addr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(list, addr))
	})
}

// Close closes the database.
func (s *BadgerListStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
