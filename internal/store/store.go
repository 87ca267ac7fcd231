// Package store persists uploads, jobs and results in BadgerDB with
// msgpack-encoded records, and keeps audio artifacts on disk next to the
// database. Keys are hierarchical: upload:<id>, job:<id>, result:<jobID>
// and the secondary index jobs_by_upload:<uploadID>:<jobID>.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned by the raw getters for a missing key; the typed
// stores translate it into the taxonomy code for their record kind.
var ErrNotFound = errors.New("store: key not found")

// DB wraps the badger instance plus the artifact directory layout.
type DB struct {
	db      *badger.DB
	dataDir string
	log     *slog.Logger

	// refMu guards the reference check between upload deletion and the
	// executor's job claim. Both sides take it, so an upload can never
	// disappear between a worker claiming a job and the job's first
	// status write.
	refMu sync.Mutex
}

// Options configures Open.
type Options struct {
	// DataDir is the root directory; the database lives in <DataDir>/meta
	// and audio artifacts under <DataDir>/uploads/<id>/.
	DataDir string
	// InMemory runs badger without disk persistence, for tests.
	InMemory bool
	Logger   *slog.Logger
}

// Open opens (or creates) the store.
func Open(opts Options) (*DB, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.InMemory && opts.DataDir == "" {
		return nil, errors.New("store: DataDir is required for on-disk mode")
	}

	bopts := badger.DefaultOptions("")
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	} else {
		dir := filepath.Join(opts.DataDir, "meta")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
		bopts = badger.DefaultOptions(dir)
	}
	bopts = bopts.WithLogger(badgerSlog{log: opts.Logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &DB{db: db, dataDir: opts.DataDir, log: opts.Logger}, nil
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// RefMu exposes the shared reference guard for the executor's claim step.
func (d *DB) RefMu() *sync.Mutex {
	return &d.refMu
}

// uploadDir is the artifact directory for one upload.
func (d *DB) uploadDir(uploadID string) string {
	return filepath.Join(d.dataDir, "uploads", uploadID)
}

func keyUpload(id string) []byte    { return []byte("upload:" + id) }
func keyJob(id string) []byte       { return []byte("job:" + id) }
func keyResult(jobID string) []byte { return []byte("result:" + jobID) }

func keyJobByUpload(up, job string) []byte {
	return []byte("jobs_by_upload:" + up + ":" + job)
}

// get loads and decodes one record.
func (d *DB) get(key []byte, out any) error {
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// put encodes and stores one record.
func (d *DB) put(key []byte, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// exists reports whether a key is present.
func (d *DB) exists(key []byte) (bool, error) {
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// delete removes keys; missing keys are not an error.
func (d *DB) delete(keys ...[]byte) error {
	return d.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

// scanKeys walks all keys under a prefix.
func (d *DB) scanKeys(prefix []byte, fn func(key []byte) error) error {
	return d.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		iterOpts.PrefetchValues = false
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := fn(it.Item().KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
}

// scan walks all records under a prefix, decoding each into a fresh T.
func scan[T any](d *DB, prefix []byte, fn func(v *T) error) error {
	return d.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var v T
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &v)
			})
			if err != nil {
				return err
			}
			if err := fn(&v); err != nil {
				return err
			}
		}
		return nil
	})
}

// badgerSlog routes badger's logger onto slog, dropping info and debug
// chatter.
type badgerSlog struct {
	log *slog.Logger
}

func (b badgerSlog) Errorf(f string, v ...any)   { b.log.Error(fmt.Sprintf("badger: "+f, v...)) }
func (b badgerSlog) Warningf(f string, v ...any) { b.log.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (badgerSlog) Infof(string, ...any)          {}
func (badgerSlog) Debugf(string, ...any)         {}
