package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/entityqueue/transport"
	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/tackle/set"
)

const (
	badgerQueuePrefix    = "q~"
	badgerSubqueuePrefix = "s~"
)

type BadgerConfig struct {
	// StorageDir is the directory where badger will store its data
	StorageDir string
	// Log is used to log warnings and errors
	Log *slog.Logger
	// InMemory runs badger without writing to disk, useful for testing
	InMemory bool
}

// NewBadgerConfig returns a store.Config where queues and subqueues are kept in a single badger
// db. Keys are prefixed by kind, `~` cannot appear in a machine name so prefixes never collide.
func NewBadgerConfig(conf BadgerConfig) Config {
	set.Default(&conf.Log, slog.Default())
	b := &badgerDB{conf: conf}
	return Config{
		Queues:    &BadgerQueues{db: b},
		Subqueues: &BadgerSubqueues{db: b},
		Log:       conf.Log,
	}
}

type badgerDB struct {
	conf BadgerConfig
	db   *badger.DB
	refs int
	mu   sync.Mutex
}

func (b *badgerDB) get() (*badger.DB, error) {
	defer b.mu.Unlock()
	b.mu.Lock()

	if b.db != nil {
		return b.db, nil
	}

	opts := badger.DefaultOptions(b.conf.StorageDir)
	if b.conf.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = newBadgerLogger(b.conf.Log)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Errorf("while opening db '%s': %w", b.conf.StorageDir, err)
	}
	b.db = db
	b.refs = 2
	return db, nil
}

func (b *badgerDB) close() error {
	defer b.mu.Unlock()
	b.mu.Lock()

	if b.db == nil {
		return nil
	}
	b.refs--
	if b.refs > 0 {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func badgerGet(f errors.Fields, txn *badger.Txn, key string, notExist error, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return notExist
		}
		return f.Errorf("during Get(): %w", err)
	}

	var b []byte
	b, err = item.ValueCopy(b)
	if err != nil {
		return f.Errorf("during ValueCopy(): %w", err)
	}
	return gobDecode(f, b, v)
}

func badgerSet(f errors.Fields, txn *badger.Txn, key string, v any) error {
	b, err := gobEncode(f, v)
	if err != nil {
		return err
	}
	if err := txn.Set([]byte(key), b); err != nil {
		return f.Errorf("during Set(): %w", err)
	}
	return nil
}

// badgerScan iterates over every value with the prefix starting at the pivot. Iteration
// stops when fn returns false.
func badgerScan(f errors.Fields, txn *badger.Txn, prefix, pivot string, fn func(k string, v []byte) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	iter := txn.NewIterator(opts)
	defer iter.Close()

	var v []byte
	for iter.Seek([]byte(prefix + pivot)); iter.ValidForPrefix([]byte(prefix)); iter.Next() {
		var err error
		v, err = iter.Item().ValueCopy(v[:0])
		if err != nil {
			return f.Errorf("during ValueCopy(): %w", err)
		}
		if !fn(string(iter.Item().Key()), v) {
			return nil
		}
	}
	return nil
}

// ---------------------------------------------
// Queues Implementation
// ---------------------------------------------

type BadgerQueues struct {
	QueuesValidation
	db *badgerDB
}

var _ Queues = &BadgerQueues{}

func (b *BadgerQueues) Get(_ context.Context, id string, info *types.QueueInfo) error {
	f := errors.Fields{"category", "badger", "func", "Queues.Get"}

	if err := b.validateGet(id); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(txn *badger.Txn) error {
		return badgerGet(f, txn, badgerQueuePrefix+id, ErrQueueNotExist, info)
	})
}

func (b *BadgerQueues) Add(_ context.Context, info types.QueueInfo) error {
	f := errors.Fields{"category", "badger", "func", "Queues.Add"}

	if err := b.validateAdd(info); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	err = db.Update(func(txn *badger.Txn) error {
		// If the queue already exists in the store
		if _, err := txn.Get([]byte(badgerQueuePrefix + info.ID)); err == nil {
			return ErrQueueAlreadyExists
		}
		return badgerSet(f, txn, badgerQueuePrefix+info.ID, info)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrQueueAlreadyExists
	}
	return err
}

func (b *BadgerQueues) Update(_ context.Context, info types.QueueInfo) error {
	f := errors.Fields{"category", "badger", "func", "Queues.Update"}

	if err := b.validateUpdate(info); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	err = db.Update(func(txn *badger.Txn) error {
		var found types.QueueInfo
		if err := badgerGet(f, txn, badgerQueuePrefix+info.ID, ErrQueueNotExist, &found); err != nil {
			return err
		}
		found.Update(info)
		return badgerSet(f, txn, badgerQueuePrefix+info.ID, found)
	})
	if errors.Is(err, badger.ErrConflict) {
		return transport.NewRetryRequest("queue '%s' was modified by another request; retry the update", info.ID)
	}
	return err
}

func (b *BadgerQueues) List(_ context.Context, queues *[]types.QueueInfo, opts types.ListOptions) error {
	f := errors.Fields{"category", "badger", "func", "Queues.List"}

	if err := validateList(opts); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(txn *badger.Txn) error {
		var count int
		var decodeErr error
		err := badgerScan(f, txn, badgerQueuePrefix, opts.Pivot, func(_ string, v []byte) bool {
			if opts.Limit != 0 && count >= opts.Limit {
				return false
			}
			var info types.QueueInfo
			if decodeErr = gobDecode(f, v, &info); decodeErr != nil {
				return false
			}
			*queues = append(*queues, info)
			count++
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
}

func (b *BadgerQueues) Delete(_ context.Context, id string) error {
	f := errors.Fields{"category", "badger", "func", "Queues.Delete"}

	if err := b.validateDelete(id); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(badgerQueuePrefix + id)); err != nil {
			return f.Errorf("during Delete(%s): %w", id, err)
		}
		return nil
	})
}

func (b *BadgerQueues) Close(_ context.Context) error {
	return b.db.close()
}

// ---------------------------------------------
// Subqueues Implementation
// ---------------------------------------------

type BadgerSubqueues struct {
	SubqueuesValidation
	db *badgerDB
}

var _ Subqueues = &BadgerSubqueues{}

func (b *BadgerSubqueues) Get(_ context.Context, name string, sub *types.Subqueue) error {
	f := errors.Fields{"category", "badger", "func", "Subqueues.Get"}

	if err := b.validateName(name); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(txn *badger.Txn) error {
		return badgerGet(f, txn, badgerSubqueuePrefix+name, ErrSubqueueNotExist, sub)
	})
}

func (b *BadgerSubqueues) Add(_ context.Context, sub types.Subqueue) error {
	f := errors.Fields{"category", "badger", "func", "Subqueues.Add"}

	if err := b.validateAdd(sub); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	// Badger transactions are serializable, if two transactions add the same key the
	// second to commit fails with badger.ErrConflict.
	err = db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(badgerSubqueuePrefix + sub.Name)); err == nil {
			return ErrSubqueueAlreadyExists
		}
		return badgerSet(f, txn, badgerSubqueuePrefix+sub.Name, sub)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrSubqueueAlreadyExists
	}
	return err
}

func (b *BadgerSubqueues) ListByQueue(_ context.Context, queue string, subs *[]types.Subqueue,
	opts types.ListOptions) error {
	f := errors.Fields{"category", "badger", "func", "Subqueues.ListByQueue"}

	if err := b.validateQueue(queue); err != nil {
		return err
	}
	if err := validateList(opts); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(txn *badger.Txn) error {
		var count int
		var decodeErr error
		err := badgerScan(f, txn, badgerSubqueuePrefix, opts.Pivot, func(_ string, v []byte) bool {
			if opts.Limit != 0 && count >= opts.Limit {
				return false
			}
			var sub types.Subqueue
			if decodeErr = gobDecode(f, v, &sub); decodeErr != nil {
				return false
			}
			if sub.Queue == queue {
				*subs = append(*subs, sub)
				count++
			}
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
}

func (b *BadgerSubqueues) Delete(_ context.Context, name string) error {
	f := errors.Fields{"category", "badger", "func", "Subqueues.Delete"}

	if err := b.validateName(name); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(badgerSubqueuePrefix + name)); err != nil {
			return f.Errorf("during Delete(%s): %w", name, err)
		}
		return nil
	})
}

func (b *BadgerSubqueues) DeleteByQueue(_ context.Context, queue string) error {
	f := errors.Fields{"category", "badger", "func", "Subqueues.DeleteByQueue"}

	if err := b.validateQueue(queue); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(txn *badger.Txn) error {
		var keys []string
		var decodeErr error
		err := badgerScan(f, txn, badgerSubqueuePrefix, "", func(k string, v []byte) bool {
			var sub types.Subqueue
			if decodeErr = gobDecode(f, v, &sub); decodeErr != nil {
				return false
			}
			if sub.Queue == queue {
				keys = append(keys, k)
			}
			return true
		})
		if err != nil {
			return err
		}
		if decodeErr != nil {
			return decodeErr
		}

		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return f.Errorf("during Delete(%s): %w", k, err)
			}
		}
		return nil
	})
}

func (b *BadgerSubqueues) Close(_ context.Context) error {
	return b.db.close()
}

type badgerLogger struct {
	log *slog.Logger
}

func newBadgerLogger(log *slog.Logger) *badgerLogger {
	return &badgerLogger{log: log.With("code.namespace", "badger-lib")}
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(strings.Trim(f, "\n"), v...))
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(strings.Trim(f, "\n"), v...))
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.log.LogAttrs(context.Background(), LevelDebug, fmt.Sprintf(strings.Trim(f, "\n"), v...))
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.log.LogAttrs(context.Background(), LevelDebugAll, fmt.Sprintf(strings.Trim(f, "\n"), v...))
}
