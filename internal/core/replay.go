package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReplayResult describes a replayed cache entry.
type ReplayResult struct {
	Hash ChainHash

	// Outputs lists every output path of the entry, sorted.
	Outputs []string

	// Restored lists outputs that were missing or stale and had to be
	// rewritten. Outputs already matching the cache are left untouched.
	Restored []string
}

// Replayer restores cached chain outputs into the project.
type Replayer struct {
	// WorkingDir is the project root outputs are restored under.
	WorkingDir string
}

// NewReplayer creates a new Replayer with the given working directory.
func NewReplayer(workingDir string) *Replayer {
	return &Replayer{WorkingDir: workingDir}
}

// Replay restores every output of the entry bit-for-bit.
//
// An output is rewritten only when it is missing or its content hash differs
// from the cached one, so an unchanged build touches nothing on disk and the
// watcher sees no events.
func (r *Replayer) Replay(entry *CacheEntry) (*ReplayResult, error) {
	if r == nil {
		return nil, fmt.Errorf("replayer is nil")
	}
	if entry == nil {
		return nil, fmt.Errorf("cache entry is nil")
	}

	res := &ReplayResult{Hash: entry.Hash, Outputs: make([]string, 0, len(entry.Outputs))}
	for _, out := range entry.Outputs {
		if out.Path == "" {
			return res, fmt.Errorf("chain %q: output path is empty", entry.Chain)
		}
		res.Outputs = append(res.Outputs, out.Path)

		written, err := writeIfChanged(r.WorkingDir, out.Path, out.Content)
		if err != nil {
			return res, fmt.Errorf("chain %q: restoring output %q: %w", entry.Chain, out.Path, err)
		}
		if written {
			res.Restored = append(res.Restored, out.Path)
		}
	}
	return res, nil
}

// writeIfChanged writes content to rel under root unless the file already
// holds exactly that content. It reports whether a write happened.
func writeIfChanged(root, rel string, content []byte) (bool, error) {
	target, err := targetPath(root, rel)
	if err != nil {
		return false, err
	}

	haveHash, ok, err := fileSHA256HexIfExists(target)
	if err != nil {
		return false, fmt.Errorf("hashing existing output: %w", err)
	}
	if ok && haveHash == sha256Hex(content) {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return false, fmt.Errorf("creating parent directory: %w", err)
	}
	if err := atomicWriteFile(target, content, 0644); err != nil {
		return false, err
	}
	return true, nil
}

// targetPath resolves a project-relative output path and rejects paths that
// would escape the project root.
func targetPath(root, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output path %q escapes the project root", rel)
	}
	return filepath.Join(root, clean), nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func fileSHA256HexIfExists(path string) (hash string, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", true, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}

// atomicWriteFile writes content to path by writing to a temp file in the same directory
// and then renaming it over the destination.
func atomicWriteFile(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, "."+base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
