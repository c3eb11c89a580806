package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CacheEntry is the stored result of a successful chain run.
//
// Failed runs are never cached: a failing chain runs again on the next build
// so its error is reported again.
type CacheEntry struct {
	// Hash is the ChainHash that identifies this cache entry.
	Hash ChainHash `json:"hash"`

	// Chain is the chain name, kept for inspection only.
	Chain string `json:"chain"`

	// Outputs are the files the run wrote, sorted by Path.
	Outputs []CachedOutput `json:"outputs"`
}

// CachedOutput is a single output file stored in the cache.
type CachedOutput struct {
	// Path is project-relative and slash-separated.
	Path string `json:"path"`

	// Content is the file content.
	Content []byte `json:"content"`
}

// Cache stores chain outputs by ChainHash.
//
// A ChainHash seen before means the chain MUST NOT run again; its outputs are
// replayed bit-for-bit instead.
type Cache interface {
	// Has checks if a cache entry exists for the given hash.
	Has(hash ChainHash) (bool, error)

	// Get retrieves a cache entry by hash.
	// Returns nil if the entry does not exist.
	Get(hash ChainHash) (*CacheEntry, error)

	// Put stores a cache entry.
	Put(entry *CacheEntry) error
}

// FileCache implements Cache using the filesystem.
//
// Structure:
//
//	{CacheDir}/
//	  {hash[0:2]}/
//	    {hash}/
//	      metadata.json  (chain name, output paths)
//	      outputs/
//	        {index}.blob
type FileCache struct {
	// CacheDir is the root directory for cache storage.
	CacheDir string
}

// NewFileCache creates a new filesystem-based cache.
func NewFileCache(cacheDir string) *FileCache {
	return &FileCache{CacheDir: cacheDir}
}

// Has checks if a cache entry exists for the given hash.
func (c *FileCache) Has(hash ChainHash) (bool, error) {
	metadataPath := filepath.Join(c.entryPath(hash), "metadata.json")

	_, err := os.Stat(metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking cache entry: %w", err)
	}
	return true, nil
}

// Get retrieves a cache entry by hash.
func (c *FileCache) Get(hash ChainHash) (*CacheEntry, error) {
	entryDir := c.entryPath(hash)

	data, err := os.ReadFile(filepath.Join(entryDir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache metadata: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing cache metadata: %w", err)
	}

	outputsDir := filepath.Join(entryDir, "outputs")
	for i := range entry.Outputs {
		content, err := os.ReadFile(filepath.Join(outputsDir, fmt.Sprintf("%d.blob", i)))
		if err != nil {
			return nil, fmt.Errorf("reading output %d: %w", i, err)
		}
		entry.Outputs[i].Content = content
	}

	return &entry, nil
}

// Put stores a cache entry.
//
// The entry is written into a temp directory and renamed into place, so a
// crash never leaves a partial entry at the canonical path.
func (c *FileCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}

	entryDir := c.entryPath(entry.Hash)
	parentDir := filepath.Dir(entryDir)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(parentDir, "tmp-entry-"+string(entry.Hash)+"-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	outputsDir := filepath.Join(tmpDir, "outputs")
	if err := os.MkdirAll(outputsDir, 0755); err != nil {
		return fmt.Errorf("creating cache outputs dir: %w", err)
	}

	// Blobs first, so metadata only appears once every blob is on disk.
	metadata := CacheEntry{
		Hash:    entry.Hash,
		Chain:   entry.Chain,
		Outputs: make([]CachedOutput, len(entry.Outputs)),
	}
	for i, out := range entry.Outputs {
		blobPath := filepath.Join(outputsDir, fmt.Sprintf("%d.blob", i))
		if err := atomicWriteFile(blobPath, out.Content, 0644); err != nil {
			return fmt.Errorf("writing output %d: %w", i, err)
		}
		metadata.Outputs[i] = CachedOutput{Path: out.Path}
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache metadata: %w", err)
	}
	if err := atomicWriteFile(filepath.Join(tmpDir, "metadata.json"), data, 0644); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}

	// A crash between remove and rename yields a cache miss, not corruption.
	_ = os.RemoveAll(entryDir)
	if err := os.Rename(tmpDir, entryDir); err != nil {
		return fmt.Errorf("committing cache entry: %w", err)
	}
	committed = true
	return nil
}

// entryPath shards entries by the first two hash characters.
func (c *FileCache) entryPath(hash ChainHash) string {
	hashStr := string(hash)
	if len(hashStr) < 2 {
		return filepath.Join(c.CacheDir, hashStr)
	}
	return filepath.Join(c.CacheDir, hashStr[:2], hashStr)
}

// MemoryCache implements Cache in memory. It is safe for concurrent use by
// chains running in parallel.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[ChainHash]*CacheEntry
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[ChainHash]*CacheEntry)}
}

// Has checks if a cache entry exists.
func (c *MemoryCache) Has(hash ChainHash) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.entries[hash]
	return exists, nil
}

// Get returns a copy of the cache entry.
func (c *MemoryCache) Get(hash ChainHash) (*CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, exists := c.entries[hash]
	if !exists {
		return nil, nil
	}
	return copyEntry(entry), nil
}

// Put stores a copy of the cache entry.
func (c *MemoryCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Hash] = copyEntry(entry)
	return nil
}

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func copyEntry(entry *CacheEntry) *CacheEntry {
	out := &CacheEntry{
		Hash:    entry.Hash,
		Chain:   entry.Chain,
		Outputs: make([]CachedOutput, len(entry.Outputs)),
	}
	for i, o := range entry.Outputs {
		out.Outputs[i] = CachedOutput{Path: o.Path, Content: append([]byte(nil), o.Content...)}
	}
	return out
}

// NopCache never hits and drops every Put. Full builds use it to force every
// chain to run.
type NopCache struct{}

func (NopCache) Has(ChainHash) (bool, error)        { return false, nil }
func (NopCache) Get(ChainHash) (*CacheEntry, error) { return nil, nil }
func (NopCache) Put(*CacheEntry) error              { return nil }
