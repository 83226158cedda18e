package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

const (
	badgerStorePrefix = "store:"
	badgerOrderPrefix = "order:"
	badgerEntryPrefix = "entry:"
	badgerSequenceKey = "seq:stores"
)

// BadgerCache keeps the stores in a Badger key-value database.
//
// Each store is registered twice, by name (to look it up) and by creation
// sequence (to list names in creation order). Entries are prefixed with the
// store name. Writes are serialized, so concurrent transactions never conflict.
type BadgerCache struct {
	db         *badger.DB
	seq        *badger.Sequence
	writeMutex *sync.Mutex
}

var _ Provider = (*BadgerCache)(nil)

// OpenBadgerCache opens a Badger db in the given directory.
// If path is empty, the db is kept in memory.
func OpenBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not open badger db: %w", err)
	}
	seq, err := db.GetSequence([]byte(badgerSequenceKey), 16)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create store sequence: %w", err)
	}
	return &BadgerCache{db: db, seq: seq, writeMutex: &sync.Mutex{}}, nil
}

func storeKey(name string) []byte {
	return []byte(badgerStorePrefix + name)
}

func orderKey(seq uint64) []byte {
	key := make([]byte, len(badgerOrderPrefix)+8)
	copy(key, badgerOrderPrefix)
	binary.BigEndian.PutUint64(key[len(badgerOrderPrefix):], seq)
	return key
}

func entryPrefix(store string) []byte {
	return []byte(badgerEntryPrefix + store + "\x00")
}

func entryKey(store, key string) []byte {
	return append(entryPrefix(store), key...)
}

func badgerStoreExists(txn *badger.Txn, name string) (bool, error) {
	_, err := txn.Get(storeKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (b *BadgerCache) Open(name string) error {
	if ok, err := b.Has(name); err != nil || ok {
		return err
	}
	b.writeMutex.Lock()
	defer b.writeMutex.Unlock()
	if ok, err := b.Has(name); err != nil || ok {
		return err
	}
	next, err := b.seq.Next()
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if ok, err := badgerStoreExists(txn, name); err != nil || ok {
			return err
		}
		seqKey := orderKey(next)
		if err := txn.Set(storeKey(name), seqKey); err != nil {
			return err
		}
		return txn.Set(seqKey, []byte(name))
	})
}

func (b *BadgerCache) Names() ([]string, error) {
	names := make([]string, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerOrderPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			name, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			names = append(names, string(name))
		}
		return nil
	})
	return names, err
}

func (b *BadgerCache) Has(name string) (bool, error) {
	var ok bool
	err := b.db.View(func(txn *badger.Txn) (err error) {
		ok, err = badgerStoreExists(txn, name)
		return err
	})
	return ok, err
}

func (b *BadgerCache) Delete(name string) (bool, error) {
	b.writeMutex.Lock()
	defer b.writeMutex.Unlock()
	var deleted bool
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		seqKey, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(storeKey(name)); err != nil {
			return err
		}
		if err := txn.Delete(seqKey); err != nil {
			return err
		}
		deleted = true
		return deleteEntries(txn, entryPrefix(name))
	})
	return deleted, err
}

func deleteEntries(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	keys := make([][]byte, 0)
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerCache) Get(store, key string) ([]byte, bool, error) {
	var (
		bytes []byte
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(store, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			if ok, err := badgerStoreExists(txn, store); err != nil {
				return err
			} else if !ok {
				return ErrStoreNotFound
			}
			return nil
		} else if err != nil {
			return err
		}
		found = true
		bytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return bytes, found, nil
}

func (b *BadgerCache) Put(store, key string, bytes []byte) error {
	return b.PutAll(store, []Entry{{Key: key, Bytes: bytes}})
}

func (b *BadgerCache) PutAll(store string, entries []Entry) error {
	b.writeMutex.Lock()
	defer b.writeMutex.Unlock()
	return b.db.Update(func(txn *badger.Txn) error {
		if ok, err := badgerStoreExists(txn, store); err != nil {
			return err
		} else if !ok {
			return ErrStoreNotFound
		}
		for _, e := range entries {
			if err := txn.Set(entryKey(store, e.Key), e.Bytes); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerCache) Remove(store, key string) (bool, error) {
	b.writeMutex.Lock()
	defer b.writeMutex.Unlock()
	var removed bool
	err := b.db.Update(func(txn *badger.Txn) error {
		if ok, err := badgerStoreExists(txn, store); err != nil {
			return err
		} else if !ok {
			return ErrStoreNotFound
		}
		_, err := txn.Get(entryKey(store, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		removed = true
		return txn.Delete(entryKey(store, key))
	})
	return removed, err
}

func (b *BadgerCache) Keys(store string) ([]string, error) {
	keys := make([]string, 0)
	err := b.db.View(func(txn *badger.Txn) error {
		if ok, err := badgerStoreExists(txn, store); err != nil {
			return err
		} else if !ok {
			return ErrStoreNotFound
		}
		prefix := entryPrefix(store)
		opts := badger.DefaultIteratorOptions
		// key-only iteration
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return keys, err
}

func (b *BadgerCache) Close() error {
	if err := b.seq.Release(); err != nil {
		b.db.Close()
		return err
	}
	return b.db.Close()
}
