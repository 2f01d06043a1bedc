package cache

import (
	"database/sql"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves []byte values, which represent HTTP response
// snapshots, grouped into named buckets. A bucket holds one cache
// generation; generation cleanup enumerates and deletes whole buckets.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// OpenBucket creates the named bucket if it does not exist yet.
	// Opening an existing bucket is a no-op.
	OpenBucket(bucket string) error
	// Get returns the stored snapshot for the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(bucket, key string) ([]byte, bool, error)
	// Put stores the given snapshot in the bucket under the given key.
	// An existing snapshot for the same key is replaced as a whole.
	Put(bucket, key string, bytes []byte) error
	// Keys returns all keys stored in the bucket.
	Keys(bucket string) ([]string, error)
	// Buckets returns the names of all buckets, including empty ones.
	Buckets() ([]string, error)
	// DeleteBucket removes the bucket and every entry in it.
	// Deleting a bucket that does not exist is a no-op.
	DeleteBucket(bucket string) error
	// Purge removes the entry for the given key.
	// It is a utility method that is not used by the fetch strategies.
	Purge(bucket, key string)
}

type MemCache struct {
	mutex   *sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemCache() MemCache {
	return MemCache{
		mutex:   &sync.RWMutex{},
		buckets: make(map[string]map[string][]byte),
	}
}

func (m MemCache) OpenBucket(bucket string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (m MemCache) Get(bucket, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entries, ok := m.buckets[bucket]
	if !ok {
		return nil, false, nil
	}
	bytes, ok := entries[key]
	if !ok {
		return nil, false, nil
	}
	return bytes, true, nil
}

func (m MemCache) Put(bucket, key string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entries, ok := m.buckets[bucket]
	if !ok {
		entries = make(map[string][]byte)
		m.buckets[bucket] = entries
	}
	entries[key] = bytes
	return nil
}

func (m MemCache) Keys(bucket string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for key := range m.buckets[bucket] {
		keys = append(keys, key)
	}
	return keys, nil
}

func (m MemCache) Buckets() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	return names, nil
}

func (m MemCache) DeleteBucket(bucket string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.buckets, bucket)
	return nil
}

func (m MemCache) Purge(bucket, key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if entries, ok := m.buckets[bucket]; ok {
		delete(entries, key)
	}
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

func NewSQLiteCache(filename string) SQLiteCache {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS buckets (name TEXT PRIMARY KEY)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE TABLE IF NOT EXISTS entries (bucket TEXT, key TEXT, bytes BLOB, PRIMARY KEY (bucket, key))")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) OpenBucket(bucket string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR IGNORE INTO buckets (name) VALUES (?)", bucket)
	return err
}

func (s SQLiteCache) Get(bucket, key string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM entries WHERE bucket = ? AND key = ?", bucket, key).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(bucket, key string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("INSERT OR IGNORE INTO buckets (name) VALUES (?)", bucket); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT OR REPLACE INTO entries (bucket, key, bytes) VALUES (?, ?, ?)", bucket, key, bytes)
	return err
}

func (s SQLiteCache) Keys(bucket string) ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM entries WHERE bucket = ?", bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s SQLiteCache) Buckets() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM buckets")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s SQLiteCache) DeleteBucket(bucket string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	if _, err := s.db.Exec("DELETE FROM entries WHERE bucket = ?", bucket); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM buckets WHERE name = ?", bucket)
	return err
}

func (s SQLiteCache) Purge(bucket, key string) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM entries WHERE bucket = ? AND key = ?", bucket, key)
	if err != nil {
		panic(err)
	}
}
