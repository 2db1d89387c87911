// Package store implements the six logical key-value stores of spec.md §4.5
// (miner_canon, miner_forks, miner_active, validator_final, validator_active,
// node_state), each backed by its own bbolt database under a data root
// directory, following the teacher's beacon-chain/db/kv boltdb wrapper.
package store

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "store")

var dataBucket = []byte("data")

// Store wraps a single bbolt database as a flat, prefix-iterable
// byte-key/byte-value store. All six logical stores share this
// implementation; only the file name and bucket contents differ.
type Store struct {
	db   *bolt.DB
	name string
}

var opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modalnode_store_ops_total",
	Help: "Count of store operations by logical store name and operation kind.",
}, []string{"store", "op"})

// Open creates or opens the named bbolt store under dir.
func Open(dir, name string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "creating data directory %s", dir)
	}
	path := filepath.Join(dir, name+".db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening store %s", name)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	}); err != nil {
		return nil, errors.Wrapf(err, "initializing bucket for store %s", name)
	}
	return &Store{db: db, name: name}, nil
}

// Close releases the underlying bbolt database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes key -> value, overwriting any previous value.
func (s *Store) Put(key []byte, value []byte) error {
	opsTotal.WithLabelValues(s.name, "put").Inc()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Put(key, value)
	})
}

// Get reads the value for key. found is false if the key is absent.
func (s *Store) Get(key []byte) (value []byte, found bool, err error) {
	opsTotal.WithLabelValues(s.name, "get").Inc()
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
			found = true
		}
		return nil
	})
	return value, found, err
}

// Delete removes key, a no-op if absent.
func (s *Store) Delete(key []byte) error {
	opsTotal.WithLabelValues(s.name, "delete").Inc()
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dataBucket).Delete(key)
	})
}

// Has reports whether key exists without copying its value.
func (s *Store) Has(key []byte) (bool, error) {
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(dataBucket).Get(key) != nil
		return nil
	})
	return found, err
}

// KV is a single key/value pair returned by iteration.
type KV struct {
	Key   []byte
	Value []byte
}

// IteratePrefix calls fn for every key with the given string prefix, in
// ascending key order, stopping early if fn returns false.
func (s *Store) IteratePrefix(prefix string, fn func(KV) bool) error {
	opsTotal.WithLabelValues(s.name, "iterate").Inc()
	p := []byte(prefix)
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		for k, v := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			if !fn(KV{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)}) {
				break
			}
		}
		return nil
	})
}

// CollectPrefix is a convenience wrapper over IteratePrefix gathering all matches.
func (s *Store) CollectPrefix(prefix string) ([]KV, error) {
	var out []KV
	err := s.IteratePrefix(prefix, func(kv KV) bool {
		out = append(out, kv)
		return true
	})
	return out, err
}

// MoveAtomic writes value at dstKey then deletes srcKey in a single bbolt
// transaction spanning both stores' buckets when src and dst are the same
// store; when they differ, it writes to dst first and only deletes from src
// once that write is durably committed, satisfying the
// write-then-delete atomicity rule of spec.md §4.5 (promotion/purge: if the
// write fails, the source record is untouched).
func MoveAtomic(src, dst *Store, srcKey, dstKey, value []byte) error {
	if src == dst {
		return src.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(dataBucket)
			if err := b.Put(dstKey, value); err != nil {
				return err
			}
			return b.Delete(srcKey)
		})
	}
	if err := dst.Put(dstKey, value); err != nil {
		return errors.Wrap(err, "writing destination record")
	}
	if err := src.Delete(srcKey); err != nil {
		log.WithError(err).WithField("key", string(srcKey)).Warn("destination write committed but source delete failed; source record remains")
		return errors.Wrap(err, "deleting source record after destination write")
	}
	return nil
}
