package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/tackle/set"
	bolt "go.etcd.io/bbolt"
)

var (
	queuesBucket    = []byte("queues")
	subqueuesBucket = []byte("subqueues")
)

type BoltConfig struct {
	// StorageDir is the directory where bolt will store its data
	StorageDir string
	// Log is used to log warnings and errors
	Log *slog.Logger
}

// NewBoltConfig returns a store.Config where both queues and subqueues are kept in a single
// bolt data file. Bolt holds an exclusive lock on the file, so both stores share one handle.
func NewBoltConfig(conf BoltConfig) Config {
	set.Default(&conf.Log, slog.Default())
	b := &boltDB{conf: conf}
	return Config{
		Queues:    &BoltQueues{db: b},
		Subqueues: &BoltSubqueues{db: b},
		Log:       conf.Log,
	}
}

// boltDB lazily opens the data file and closes it once every store using it has closed
type boltDB struct {
	conf BoltConfig
	db   *bolt.DB
	refs int
	mu   sync.Mutex
}

func (b *boltDB) get() (*bolt.DB, error) {
	f := errors.Fields{"category", "bolt", "func", "boltDB.get"}
	defer b.mu.Unlock()
	b.mu.Lock()

	if b.db != nil {
		return b.db, nil
	}

	if b.conf.StorageDir != "" {
		if err := os.MkdirAll(b.conf.StorageDir, 0777); err != nil {
			return nil, f.Errorf("while creating storage dir '%s': %w", b.conf.StorageDir, err)
		}
	}

	file := filepath.Join(b.conf.StorageDir, "entityqueue.db")
	db, err := bolt.Open(file, 0600, bolt.DefaultOptions)
	if err != nil {
		return nil, f.Errorf("while opening db '%s': %w", file, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{queuesBucket, subqueuesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("while creating bucket '%s': %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, f.Error(err.Error())
	}

	b.conf.Log.LogAttrs(context.Background(), LevelDebug, "opened bolt db", slog.String("file", file))
	b.db = db
	b.refs = 2
	return db, nil
}

func (b *boltDB) close() error {
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

func gobEncode(f errors.Fields, v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, f.Errorf("during gob.Encode(): %w", err)
	}
	return buf.Bytes(), nil
}

func gobDecode(f errors.Fields, b []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(v); err != nil {
		return f.Errorf("during Decode(): %w", err)
	}
	return nil
}

// ---------------------------------------------
// Queues Implementation
// ---------------------------------------------

type BoltQueues struct {
	QueuesValidation
	db *boltDB
}

var _ Queues = &BoltQueues{}

func (b *BoltQueues) Get(_ context.Context, id string, info *types.QueueInfo) error {
	f := errors.Fields{"category", "bolt", "func", "Queues.Get"}

	if err := b.validateGet(id); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(queuesBucket).Get([]byte(id))
		if v == nil {
			return ErrQueueNotExist
		}
		return gobDecode(f, v, info)
	})
}

func (b *BoltQueues) Add(_ context.Context, info types.QueueInfo) error {
	f := errors.Fields{"category", "bolt", "func", "Queues.Add"}

	if err := b.validateAdd(info); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(queuesBucket)

		// If the queue already exists in the store
		if bucket.Get([]byte(info.ID)) != nil {
			return ErrQueueAlreadyExists
		}

		buf, err := gobEncode(f, info)
		if err != nil {
			return err
		}

		if err := bucket.Put([]byte(info.ID), buf); err != nil {
			return f.Errorf("during Put(): %w", err)
		}
		return nil
	})
}

func (b *BoltQueues) Update(_ context.Context, info types.QueueInfo) error {
	f := errors.Fields{"category", "bolt", "func", "Queues.Update"}

	if err := b.validateUpdate(info); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(queuesBucket)

		v := bucket.Get([]byte(info.ID))
		if v == nil {
			return ErrQueueNotExist
		}

		var found types.QueueInfo
		if err := gobDecode(f, v, &found); err != nil {
			return err
		}
		found.Update(info)

		buf, err := gobEncode(f, found)
		if err != nil {
			return err
		}

		if err := bucket.Put([]byte(info.ID), buf); err != nil {
			return f.Errorf("during Put(): %w", err)
		}
		return nil
	})
}

func (b *BoltQueues) List(_ context.Context, queues *[]types.QueueInfo, opts types.ListOptions) error {
	f := errors.Fields{"category", "bolt", "func", "Queues.List"}

	if err := validateList(opts); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(queuesBucket).Cursor()

		var k, v []byte
		if opts.Pivot != "" {
			k, v = c.Seek([]byte(opts.Pivot))
		} else {
			k, v = c.First()
		}

		var count int
		for ; k != nil; k, v = c.Next() {
			if opts.Limit != 0 && count >= opts.Limit {
				return nil
			}

			var info types.QueueInfo
			if err := gobDecode(f, v, &info); err != nil {
				return err
			}
			*queues = append(*queues, info)
			count++
		}
		return nil
	})
}

func (b *BoltQueues) Delete(_ context.Context, id string) error {
	f := errors.Fields{"category", "bolt", "func", "Queues.Delete"}

	if err := b.validateDelete(id); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(queuesBucket).Delete([]byte(id)); err != nil {
			return f.Errorf("during Delete(%s): %w", id, err)
		}
		return nil
	})
}

func (b *BoltQueues) Close(_ context.Context) error {
	return b.db.close()
}

// ---------------------------------------------
// Subqueues Implementation
// ---------------------------------------------

type BoltSubqueues struct {
	SubqueuesValidation
	db *boltDB
}

var _ Subqueues = &BoltSubqueues{}

func (b *BoltSubqueues) Get(_ context.Context, name string, sub *types.Subqueue) error {
	f := errors.Fields{"category", "bolt", "func", "Subqueues.Get"}

	if err := b.validateName(name); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(subqueuesBucket).Get([]byte(name))
		if v == nil {
			return ErrSubqueueNotExist
		}
		return gobDecode(f, v, sub)
	})
}

func (b *BoltSubqueues) Add(_ context.Context, sub types.Subqueue) error {
	f := errors.Fields{"category", "bolt", "func", "Subqueues.Add"}

	if err := b.validateAdd(sub); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	// Bolt serializes writable transactions, so the existence check and the
	// Put() cannot race with another Add() of the same name.
	return db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(subqueuesBucket)
		if bucket.Get([]byte(sub.Name)) != nil {
			return ErrSubqueueAlreadyExists
		}

		buf, err := gobEncode(f, sub)
		if err != nil {
			return err
		}

		if err := bucket.Put([]byte(sub.Name), buf); err != nil {
			return f.Errorf("during Put(): %w", err)
		}
		return nil
	})
}

func (b *BoltSubqueues) ListByQueue(_ context.Context, queue string, subs *[]types.Subqueue,
	opts types.ListOptions) error {
	f := errors.Fields{"category", "bolt", "func", "Subqueues.ListByQueue"}

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

	// We preform a full scan of the bucket, the number of subqueues is expected to be small
	return db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(subqueuesBucket).Cursor()

		var k, v []byte
		if opts.Pivot != "" {
			k, v = c.Seek([]byte(opts.Pivot))
		} else {
			k, v = c.First()
		}

		var count int
		for ; k != nil; k, v = c.Next() {
			if opts.Limit != 0 && count >= opts.Limit {
				return nil
			}

			var sub types.Subqueue
			if err := gobDecode(f, v, &sub); err != nil {
				return err
			}
			if sub.Queue != queue {
				continue
			}
			*subs = append(*subs, sub)
			count++
		}
		return nil
	})
}

func (b *BoltSubqueues) Delete(_ context.Context, name string) error {
	f := errors.Fields{"category", "bolt", "func", "Subqueues.Delete"}

	if err := b.validateName(name); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(subqueuesBucket).Delete([]byte(name)); err != nil {
			return f.Errorf("during Delete(%s): %w", name, err)
		}
		return nil
	})
}

func (b *BoltSubqueues) DeleteByQueue(_ context.Context, queue string) error {
	f := errors.Fields{"category", "bolt", "func", "Subqueues.DeleteByQueue"}

	if err := b.validateQueue(queue); err != nil {
		return err
	}

	db, err := b.db.get()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(subqueuesBucket)

		var names [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var sub types.Subqueue
			if err := gobDecode(f, v, &sub); err != nil {
				return err
			}
			if sub.Queue == queue {
				names = append(names, bytes.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Bolt does not allow modifying a bucket during ForEach()
		for _, name := range names {
			if err := bucket.Delete(name); err != nil {
				return f.Errorf("during Delete(%s): %w", name, err)
			}
		}
		return nil
	})
}

func (b *BoltSubqueues) Close(_ context.Context) error {
	return b.db.close()
}
