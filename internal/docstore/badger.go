package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerStore keeps documents as JSON values in an embedded Badger database.
// Keys have the form doc:{collection}:{key}; Badger iterates keys in byte
// order, which gives Query its key ordering.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore opens (or creates) a Badger database in dir.
func NewBadgerStore(dir string, logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger.Named("badger").Sugar()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db at %s: %w", dir, err)
	}
	logger.Info("badger document store opened", zap.String("dir", dir))
	return &BadgerStore{db: db, logger: logger}, nil
}

func docKey(collection, key string) []byte {
	return []byte("doc:" + collection + ":" + key)
}

func collectionPrefix(collection string) []byte {
	return []byte("doc:" + collection + ":")
}

// Get implements Store.
func (s *BadgerStore) Get(_ context.Context, collection, key string) (Doc, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(collection, key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document %s/%s: %w", collection, key, err)
	}
	return decode(raw)
}

// Set implements Store. The read-modify-write of a merge happens inside one
// Badger transaction, which aborts with ErrConflict on a concurrent write.
func (s *BadgerStore) Set(_ context.Context, collection, key string, value Doc, opts SetOptions) error {
	v, err := normalize(value)
	if err != nil {
		return err
	}
	k := docKey(collection, key)

	err = s.db.Update(func(txn *badger.Txn) error {
		if opts.IfAbsent {
			_, err := txn.Get(k)
			switch {
			case err == nil:
				return ErrExists
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
		} else if opts.Merge {
			item, err := txn.Get(k)
			switch {
			case err == nil:
				raw, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				cur, err := decode(raw)
				if err != nil {
					return err
				}
				v = Merge(cur, v)
			case errors.Is(err, badger.ErrKeyNotFound):
			default:
				return err
			}
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(k, b))
	})
	if errors.Is(err, ErrExists) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("write document %s/%s: %w", collection, key, err)
	}
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(_ context.Context, collection, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(collection, key))
	})
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, key, err)
	}
	return nil
}

// Query implements Store by scanning the collection prefix.
func (s *BadgerStore) Query(_ context.Context, collection, field string, equals any, limit int) ([]Snapshot, error) {
	if _, err := pathParts(field); err != nil {
		return nil, err
	}
	prefix := collectionPrefix(collection)

	var out []Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			doc, err := decode(raw)
			if err != nil {
				s.logger.Warn("skipping undecodable document",
					zap.ByteString("key", item.KeyCopy(nil)),
					zap.Error(err),
				)
				continue
			}
			if !matches(doc, field, equals) {
				continue
			}
			key := string(item.KeyCopy(nil)[len(prefix):])
			out = append(out, Snapshot{Key: key, Data: doc})
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s where %s: %w", collection, field, err)
	}
	return out, nil
}

// Ping implements Store.
func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger db is closed")
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	s.logger.Info("closing badger document store")
	return s.db.Close()
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.Warnf(f, v...) }
