package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/tackle/set"
	"github.com/tidwall/buntdb"
)

// BuntDB Implementation
//
// Bunt only offers string values, so queues and subqueues are stored as JSON. Bunt indexes are
// applied by parsing the stored value, which we avoid by keying on the id or name and preforming
// a full scan when listing subqueues by queue.

const (
	buntQueuePrefix    = "queue:"
	buntSubqueuePrefix = "subqueue:"
)

type BuntConfig struct {
	// StorageDir is the directory where the bunt data file is kept. If empty
	// the data is kept in memory only.
	StorageDir string
	// Log is used to log warnings and errors
	Log *slog.Logger
}

func NewBuntConfig(conf BuntConfig) Config {
	set.Default(&conf.Log, slog.Default())
	b := &buntDB{conf: conf}
	return Config{
		Queues:    &BuntQueues{db: b},
		Subqueues: &BuntSubqueues{db: b},
		Log:       conf.Log,
	}
}

type buntDB struct {
	conf BuntConfig
	db   *buntdb.DB
	refs int
	mu   sync.Mutex
}

func (b *buntDB) get() (*buntdb.DB, error) {
	f := errors.Fields{"category", "bunt-db", "func", "buntDB.get"}
	defer b.mu.Unlock()
	b.mu.Lock()

	if b.db != nil {
		return b.db, nil
	}

	file := ":memory:"
	if b.conf.StorageDir != "" {
		if err := os.MkdirAll(b.conf.StorageDir, 0777); err != nil {
			return nil, f.Errorf("while creating storage dir '%s': %w", b.conf.StorageDir, err)
		}
		file = filepath.Join(b.conf.StorageDir, "entityqueue.bunt")
	}

	db, err := buntdb.Open(file)
	if err != nil {
		return nil, f.Errorf("opening buntdb '%s': %w", file, err)
	}
	b.db = db
	b.refs = 2
	return db, nil
}

func (b *buntDB) close() error {
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

func buntGet(f errors.Fields, tx *buntdb.Tx, key string, notExist error, v any) error {
	value, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return notExist
		}
		return f.Errorf("during Get(): %w", err)
	}

	if err := json.Unmarshal([]byte(value), v); err != nil {
		return f.Errorf("during json.Unmarshal(): %w", err)
	}
	return nil
}

func buntSet(f errors.Fields, tx *buntdb.Tx, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return f.Errorf("during json.Marshal(): %w", err)
	}

	if _, _, err := tx.Set(key, string(b), nil); err != nil {
		return f.Errorf("during Set(): %w", err)
	}
	return nil
}

// buntScan calls fn for every key with the prefix, starting at the pivot. Iteration stops
// when fn returns false.
func buntScan(tx *buntdb.Tx, prefix, pivot string, fn func(key, value string) bool) error {
	return tx.AscendGreaterOrEqual("", prefix+pivot, func(key, value string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		return fn(key, value)
	})
}

// ---------------------------------------------
// Queues Implementation
// ---------------------------------------------

type BuntQueues struct {
	QueuesValidation
	db *buntDB
}

var _ Queues = &BuntQueues{}

func (b *BuntQueues) Get(_ context.Context, id string, info *types.QueueInfo) error {
	f := errors.Fields{"category", "bunt-db", "func", "Queues.Get"}

	if err := b.validateGet(id); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(tx *buntdb.Tx) error {
		return buntGet(f, tx, buntQueuePrefix+id, ErrQueueNotExist, info)
	})
}

func (b *BuntQueues) Add(_ context.Context, info types.QueueInfo) error {
	f := errors.Fields{"category", "bunt-db", "func", "Queues.Add"}

	if err := b.validateAdd(info); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *buntdb.Tx) error {
		// If the queue already exists in the store
		if _, err := tx.Get(buntQueuePrefix + info.ID); err == nil {
			return ErrQueueAlreadyExists
		}
		return buntSet(f, tx, buntQueuePrefix+info.ID, info)
	})
}

func (b *BuntQueues) Update(_ context.Context, info types.QueueInfo) error {
	f := errors.Fields{"category", "bunt-db", "func", "Queues.Update"}

	if err := b.validateUpdate(info); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *buntdb.Tx) error {
		var found types.QueueInfo
		if err := buntGet(f, tx, buntQueuePrefix+info.ID, ErrQueueNotExist, &found); err != nil {
			return err
		}
		found.Update(info)
		return buntSet(f, tx, buntQueuePrefix+info.ID, found)
	})
}

func (b *BuntQueues) List(_ context.Context, queues *[]types.QueueInfo, opts types.ListOptions) error {
	f := errors.Fields{"category", "bunt-db", "func", "Queues.List"}

	if err := validateList(opts); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(tx *buntdb.Tx) error {
		var iterErr error
		var count int

		err := buntScan(tx, buntQueuePrefix, opts.Pivot, func(_, value string) bool {
			if opts.Limit != 0 && count >= opts.Limit {
				return false
			}

			var info types.QueueInfo
			if err := json.Unmarshal([]byte(value), &info); err != nil {
				iterErr = f.Errorf("during json.Unmarshal(): %w", err)
				return false
			}
			*queues = append(*queues, info)
			count++
			return true
		})
		if err != nil {
			return f.Errorf("during AscendGreaterOrEqual(): %w", err)
		}
		return iterErr
	})
}

func (b *BuntQueues) Delete(_ context.Context, id string) error {
	f := errors.Fields{"category", "bunt-db", "func", "Queues.Delete"}

	if err := b.validateDelete(id); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Delete(buntQueuePrefix + id); err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return f.Errorf("during Delete(%s): %w", id, err)
		}
		return nil
	})
}

func (b *BuntQueues) Close(_ context.Context) error {
	return b.db.close()
}

// ---------------------------------------------
// Subqueues Implementation
// ---------------------------------------------

type BuntSubqueues struct {
	SubqueuesValidation
	db *buntDB
}

var _ Subqueues = &BuntSubqueues{}

func (b *BuntSubqueues) Get(_ context.Context, name string, sub *types.Subqueue) error {
	f := errors.Fields{"category", "bunt-db", "func", "Subqueues.Get"}

	if err := b.validateName(name); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(tx *buntdb.Tx) error {
		return buntGet(f, tx, buntSubqueuePrefix+name, ErrSubqueueNotExist, sub)
	})
}

func (b *BuntSubqueues) Add(_ context.Context, sub types.Subqueue) error {
	f := errors.Fields{"category", "bunt-db", "func", "Subqueues.Add"}

	if err := b.validateAdd(sub); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	// Bunt allows a single writable transaction at a time, so the check and set are atomic
	return db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(buntSubqueuePrefix + sub.Name); err == nil {
			return ErrSubqueueAlreadyExists
		}
		return buntSet(f, tx, buntSubqueuePrefix+sub.Name, sub)
	})
}

func (b *BuntSubqueues) ListByQueue(_ context.Context, queue string, subs *[]types.Subqueue,
	opts types.ListOptions) error {
	f := errors.Fields{"category", "bunt-db", "func", "Subqueues.ListByQueue"}

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

	return db.View(func(tx *buntdb.Tx) error {
		var iterErr error
		var count int

		err := buntScan(tx, buntSubqueuePrefix, opts.Pivot, func(_, value string) bool {
			if opts.Limit != 0 && count >= opts.Limit {
				return false
			}

			var sub types.Subqueue
			if err := json.Unmarshal([]byte(value), &sub); err != nil {
				iterErr = f.Errorf("during json.Unmarshal(): %w", err)
				return false
			}
			if sub.Queue != queue {
				return true
			}
			*subs = append(*subs, sub)
			count++
			return true
		})
		if err != nil {
			return f.Errorf("during AscendGreaterOrEqual(): %w", err)
		}
		return iterErr
	})
}

func (b *BuntSubqueues) Delete(_ context.Context, name string) error {
	f := errors.Fields{"category", "bunt-db", "func", "Subqueues.Delete"}

	if err := b.validateName(name); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Delete(buntSubqueuePrefix + name); err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return f.Errorf("during Delete(%s): %w", name, err)
		}
		return nil
	})
}

func (b *BuntSubqueues) DeleteByQueue(_ context.Context, queue string) error {
	f := errors.Fields{"category", "bunt-db", "func", "Subqueues.DeleteByQueue"}

	if err := b.validateQueue(queue); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *buntdb.Tx) error {
		var iterErr error
		var keys []string

		err := buntScan(tx, buntSubqueuePrefix, "", func(key, value string) bool {
			var sub types.Subqueue
			if err := json.Unmarshal([]byte(value), &sub); err != nil {
				iterErr = f.Errorf("during json.Unmarshal(): %w", err)
				return false
			}
			if sub.Queue == queue {
				keys = append(keys, key)
			}
			return true
		})
		if err != nil {
			return f.Errorf("during AscendGreaterOrEqual(): %w", err)
		}
		if iterErr != nil {
			return iterErr
		}

		// Bunt does not allow modifying keys during iteration
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil {
				return f.Errorf("during Delete(%s): %w", key, err)
			}
		}
		return nil
	})
}

func (b *BuntSubqueues) Close(_ context.Context) error {
	return b.db.close()
}
