// Package boltstore implements store.KV on top of a single-file bbolt
// database, for deployments where a full SQLite dependency is unwanted.
package boltstore

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/Andrew-022/michatapp-sub000/internal/store"
)

var bucketName = []byte("kv")

// DB is a bbolt-backed implementation of store.KV.
type DB struct {
	db *bolt.DB
}

// Open opens (or creates) the bolt database at path.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database file.
func (d *DB) Close() error {
	return d.db.Close()
}

// Get returns the value for key, or store.ErrNotFound.
func (d *DB) Get(_ context.Context, key string) (string, error) {
	var (
		value []byte
		found bool
	)
	err := d.db.View(func(tx *bolt.Tx) error {
		// An empty stored value copies to a nil slice; presence is
		// tracked separately so it is not mistaken for a missing key.
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			found = true
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", store.ErrNotFound
	}
	return string(value), nil
}

// Set stores value under key.
func (d *DB) Set(_ context.Context, key, value string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
}

// Remove deletes the given keys. Missing keys are a no-op.
func (d *DB) Remove(_ context.Context, keys ...string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, k := range keys {
			if err := b.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}
