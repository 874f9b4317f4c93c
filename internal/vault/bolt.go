package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

var bucketCredentials = []byte("credentials")

// Bolt is a Vault backed by a bbolt file. Parked credentials outlive the
// process until their TTL passes or the scan revokes them.
type Bolt struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ Vault = (*Bolt)(nil)

// OpenBolt opens (or creates) the vault file at path with 0600 permissions.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open vault %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCredentials)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init vault: %w", err)
	}
	return &Bolt{db: db, now: time.Now}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Store(_ context.Context, cred models.Credential, ttl time.Duration) (string, error) {
	key, err := newKey()
	if err != nil {
		return "", err
	}
	value, err := json.Marshal(entry{Credential: cred, ExpiresAt: b.now().Add(normalizeTTL(ttl))})
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Put([]byte(key), value)
	})
	if err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}
	return key, nil
}

// Retrieve deletes the entry in the same transaction when it has expired.
func (b *Bolt) Retrieve(_ context.Context, key string) (*models.Credential, bool, error) {
	var (
		e     entry
		found bool
	)
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCredentials)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("decode credential: %w", err)
		}
		if e.expired(b.now()) {
			return bucket.Delete([]byte(key))
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &e.Credential, true, nil
}

func (b *Bolt) Revoke(_ context.Context, key string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	return nil
}
