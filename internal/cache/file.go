package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
	"github.com/felixgeelhaar/campusconnect/internal/log"
)

// fileFormat is the on-disk document. Checksum is blake3 over the JSON encoding of Entries.
type fileFormat struct {
	Entries  map[string]string `json:"entries"`
	Checksum string            `json:"checksum"`
}

// FileCache is a Cache persisted as a JSON file and rewritten on every change.
type FileCache struct {
	mu      sync.RWMutex
	path    string
	entries map[string]string
	logger  *log.Logger
}

// OpenFile loads the cache at path. A missing file yields an empty cache; a
// corrupt or tampered file is discarded with a warning.
func OpenFile(path string, logger *log.Logger) (*FileCache, error) {
	c := &FileCache{
		path:    path,
		entries: make(map[string]string),
		logger:  log.Or(logger).With("component", "cache", "path", path),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, "failed to read cache file", err)
	}

	entries, err := decode(data)
	if err != nil {
		c.logger.WithError(err).Warn("discarding unreadable cache")
		return c, nil
	}
	c.entries = entries
	return c, nil
}

func checksum(entries map[string]string) (string, error) {
	canonical, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	hasher := blake3.New()
	if _, err := hasher.Write(canonical); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

func decode(data []byte) (map[string]string, error) {
	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheCorrupt, "cache file is not valid JSON", err)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]string)
	}
	sum, err := checksum(doc.Entries)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheCorrupt, "failed to hash cache entries", err)
	}
	if sum != doc.Checksum {
		return nil, errors.New(errors.ErrCodeCacheCorrupt, "cache checksum mismatch")
	}
	return doc.Entries, nil
}

// Get returns the value for key.
func (c *FileCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores value under key and flushes.
func (c *FileCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[key]; ok && cur == value {
		return
	}
	c.entries[key] = value
	c.flushLocked()
}

// Remove deletes key and flushes.
func (c *FileCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	c.flushLocked()
}

// Path returns the backing file.
func (c *FileCache) Path() string {
	return c.path
}

func (c *FileCache) flushLocked() {
	if err := c.write(); err != nil {
		c.logger.LogError("failed to persist cache", err)
	}
}

// write replaces the file via rename so readers never see a partial document.
func (c *FileCache) write() error {
	sum, err := checksum(c.entries)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "failed to hash cache entries", err)
	}
	data, err := json.MarshalIndent(fileFormat{Entries: c.entries, Checksum: sum}, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileMarshal, "failed to encode cache", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create cache directory", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write cache", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to replace cache", err)
	}
	return nil
}
