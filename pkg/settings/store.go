// Package settings persists small per-backend settings, such as the default
// maildir, in an embedded BadgerDB. Values are CBOR-encoded so any plain Go
// value can be stored.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/fxamacker/cbor/v2"
	"github.com/marmos91/dittovfs/internal/logger"
)

// keyPrefix namespaces setting keys inside the database.
const keyPrefix = "settings:"

// ErrNotFound is returned by Get when a key has never been stored.
var ErrNotFound = errors.New("setting not found")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("settings: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("settings: CBOR decoder initialization failed: " + err.Error())
	}
}

// Config configures the settings store.
type Config struct {
	// Path is the BadgerDB directory. Empty keeps settings in memory only.
	Path string `mapstructure:"path"`
}

// Store is a persisted key/value settings store.
//
// LoadOrInit is serialised so two backends mounting at once agree on the
// value that gets persisted.
type Store struct {
	mu sync.Mutex
	db *badger.DB
}

// Open opens (or creates) the store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db, err := badger.Open(storeOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open settings store at %q: %w", cfg.Path, err)
	}

	if cfg.Path == "" {
		logger.Debug("Settings store opened in memory")
	} else {
		logger.Debug("Settings store opened at %s", cfg.Path)
	}
	return &Store{db: db}, nil
}

// storeOptions returns the badger options for cfg. Settings are tiny, so the
// caches and memtable are shrunk; the value threshold must stay below the
// batch size badger derives from the memtable size.
func storeOptions(cfg Config) badger.Options {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.Path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	return opts.
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithBlockCacheSize(1 << 20).
		WithIndexCacheSize(1 << 20).
		WithMemTableSize(4 << 20).
		WithValueThreshold(1 << 10).
		WithValueLogFileSize(16 << 20)
}

func dbKey(key string) []byte {
	return []byte(keyPrefix + key)
}

// Get decodes the value stored under key into v.
func (s *Store) Get(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := decMode.Unmarshal(val, v); err != nil {
				return fmt.Errorf("decode setting %s: %w", key, err)
			}
			return nil
		})
	})
}

// Put stores v under key.
func (s *Store) Put(key string, v any) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(dbKey(key), data)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(dbKey(key))
	})
}

// Keys lists all stored keys.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	return keys, err
}

// LoadOrInit returns the string stored under key. When nothing is stored,
// def() is evaluated, persisted and returned.
func (s *Store) LoadOrInit(key string, def func() (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.Get(key, &value)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	value, err = def()
	if err != nil {
		return "", err
	}
	if err := s.Put(key, value); err != nil {
		return "", err
	}
	logger.Info("Initialized setting %s = %s", key, value)
	return value, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
