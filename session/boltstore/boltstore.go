// Package boltstore provides a bbolt-backed session.Store for
// remember-me sessions. Records are sealed with AES-256-GCM under a key
// derived from an operator-supplied secret, so a copied database file
// alone cannot reveal session state.
package boltstore

import (
	"fmt"

	"github.com/awnumar/memguard"
	"go.etcd.io/bbolt"

	"github.com/PMGEECODE/ArdhiAssets-sub001/internal/util"
	"github.com/PMGEECODE/ArdhiAssets-sub001/session"
)

const (
	bucketName = "ardhi_session"
	aadPrefix  = "session:"
	keyInfo    = "ardhiassets:session_store_key:v1"
)

// Store implements session.Store backed by a bbolt database. The
// sealing key lives in a memguard Enclave and only exists in plaintext
// for the duration of each operation.
//
// The session.Store interface is infallible by design: storage and
// decryption failures degrade to "absent", matching the
// malformed-storage tolerance of the scoped tier.
type Store struct {
	db     *bbolt.DB
	key    *memguard.Enclave
	ownsDB bool
}

var _ session.Store = (*Store)(nil)

// Open opens (or creates) a bbolt database at path and derives the
// sealing key from secret. The secret bytes are not retained.
func Open(path string, secret []byte) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}
	s, err := New(db, secret)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an already-open bbolt database.
func New(db *bbolt.DB, secret []byte) (*Store, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session store secret is required")
	}
	key, err := util.HKDF(secret, nil, []byte(keyInfo))
	if err != nil {
		return nil, fmt.Errorf("deriving session store key: %w", err)
	}
	// NewEnclave wipes the key slice after sealing it.
	return &Store{db: db, key: memguard.NewEnclave(key)}, nil
}

// Close closes the underlying database when this store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(key string) ([]byte, bool) {
	var sealed []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			sealed = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || sealed == nil {
		return nil, false
	}

	lb, err := s.key.Open()
	if err != nil {
		return nil, false
	}
	defer lb.Destroy()

	plain, err := util.OpenAES(sealed, lb.Bytes(), []byte(aadPrefix+key))
	if err != nil {
		// Wrong secret or corrupt record. Either way the record is
		// unusable; report it as absent.
		return nil, false
	}
	return plain, true
}

func (s *Store) Put(key string, value []byte) {
	lb, err := s.key.Open()
	if err != nil {
		return
	}
	sealed, err := util.SealAES(value, lb.Bytes(), []byte(aadPrefix+key))
	lb.Destroy()
	if err != nil {
		return
	}
	_ = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), sealed)
	})
}

func (s *Store) Delete(key string) {
	_ = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
