// Package ctcache persists certificate-transparency fetch results in a
// local bbolt file so repeated scans of the same apex do not hammer crt.sh.
package ctcache

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketName = "ct_results"
	// DefaultTTL is how long a cached fetch stays fresh.
	DefaultTTL = 24 * time.Hour
)

// entry is the stored record for one apex.
type entry struct {
	FetchedAt  time.Time `json:"fetched_at"`
	Subdomains []string  `json:"subdomains"`
}

// Store is a bbolt-backed cache of CT subdomain lists keyed by apex.
type Store struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens or creates the cache file. A non-positive ttl uses DefaultTTL.
func Open(path string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening ct cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached subdomains for apex and whether a fresh entry was
// found. Stale or unparseable entries are treated as misses.
func (s *Store) Get(apex string) ([]string, bool, error) {
	var subs []string
	var hit bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketName)).Get([]byte(apex))
		if raw == nil {
			return nil
		}
		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil
		}
		if s.now().Sub(e.FetchedAt) > s.ttl {
			return nil
		}
		subs = e.Subdomains
		hit = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return subs, hit, nil
}

// Put stores the subdomain list for apex, stamped with the current time.
func (s *Store) Put(apex string, subdomains []string) error {
	raw, err := json.Marshal(entry{FetchedAt: s.now(), Subdomains: subdomains})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(apex), raw)
	})
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}
