package inventory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	cacheBucket     = "checksums"
	cacheKeyVersion = byte(1)
)

// Cache persists checksums keyed by file identity so repeated scans of an
// unchanged file skip rehashing. A nil *Cache is a disabled cache. Safe for
// concurrent use by all workers.
type Cache struct {
	db *bolt.DB
}

// CacheKey identifies one file's content. Any change is a miss.
type CacheKey struct {
	Path      string
	Size      int64
	Ino       uint64
	ModTime   int64
	Algorithm Algorithm
}

// OpenCache opens (or creates) the checksum cache at path. An empty path
// returns a disabled cache.
func OpenCache(path string) (*Cache, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache (locked by another instance?): %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(cacheBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// makeKey builds the byte key: ver(1) + algo + NUL + path + NUL + size(8) + ino(8) + mtime(8).
func makeKey(k CacheKey) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(cacheKeyVersion)
	buf.WriteString(string(k.Algorithm))
	buf.WriteByte(0)
	buf.WriteString(k.Path)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, k.Size)
	_ = binary.Write(buf, binary.BigEndian, k.Ino)
	_ = binary.Write(buf, binary.BigEndian, k.ModTime)
	return buf.Bytes()
}

// Lookup returns the cached checksum for k, if any.
func (c *Cache) Lookup(k CacheKey) (string, bool, error) {
	if c == nil {
		return "", false, nil
	}
	var sum string
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(cacheBucket)).Get(makeKey(k)); v != nil {
			sum = string(v)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("cache lookup: %w", err)
	}
	return sum, sum != "", nil
}

// Store saves the checksum for k.
func (c *Cache) Store(k CacheKey, sum string) error {
	if c == nil || sum == "" {
		return nil
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(cacheBucket)).Put(makeKey(k), []byte(sum))
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
