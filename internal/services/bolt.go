package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/middleware"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the rate limiter window store on a local BoltDB file. It is used when no Redis server
// is configured, which makes throttling work for a single server instance without extra infrastructure.
type BoltDB struct {
	db *bolt.DB
}

type boltWindow struct {
	Count     int64     `json:"count"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var rateLimitBucket = []byte("ratelimit")

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database with
// the required bucket and returns an error if the database cannot be opened or initialized. The database
// file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return BoltDB{}, errors.Wrap(err, "failed to open bolt db")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rateLimitBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, errors.Wrap(err, "failed to create bucket")
	}

	return BoltDB{db: db}, nil
}

// Hit records one request for key in the fixed window containing now and returns how many requests were
// recorded in that window before this one. Expired windows of the same key are removed on the way.
func (b BoltDB) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	prefix := []byte(key + ":")
	windowKey := []byte(fmt.Sprintf("%s%d", prefix, middleware.WindowIndex(now, window)))

	var count int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(rateLimitBucket)
		if bk == nil {
			return errors.New("rate limit bucket is missing")
		}

		var expired [][]byte
		c := bk.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if bytes.Equal(k, windowKey) {
				continue
			}
			var w boltWindow
			if err := json.Unmarshal(v, &w); err != nil || now.After(w.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		for _, k := range expired {
			if err := bk.Delete(k); err != nil {
				return errors.Wrap(err, "failed to delete expired window")
			}
		}

		w := boltWindow{ExpiresAt: now.Add(2 * window)}
		if v := bk.Get(windowKey); v != nil {
			if err := json.Unmarshal(v, &w); err != nil {
				return errors.Wrap(err, "failed to unmarshal window")
			}
		}
		count = w.Count
		w.Count++

		v, err := json.Marshal(w)
		if err != nil {
			return errors.Wrap(err, "failed to marshal window")
		}
		return bk.Put(windowKey, v)
	})

	return count, err
}

// Ping reports whether the database is still usable.
func (b BoltDB) Ping(context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(rateLimitBucket) == nil {
			return errors.New("rate limit bucket is missing")
		}
		return nil
	})
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}
