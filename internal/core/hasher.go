package core

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
)

// ChainHash is the deterministic identity of one chain run.
//
// Includes: chain name, sorted source patterns, destination, unit names and
// fingerprints (in order), resolved input paths and contents.
// Excludes: timestamps, file metadata, the machine the build runs on.
//
// Two runs with the same ChainHash produce the same outputs, so the second
// one is replayed from cache instead of executed.
type ChainHash string

// String returns the string representation of the ChainHash.
func (h ChainHash) String() string { return string(h) }

// ChainHasher computes ChainHash values.
type ChainHasher struct{}

// NewChainHasher creates a new ChainHasher.
func NewChainHasher() *ChainHasher {
	return &ChainHasher{}
}

// HashInput contains every component that contributes to a ChainHash.
type HashInput struct {
	Chain *Chain

	// Inputs is the resolved AssetSet (already sorted by InputResolver).
	Inputs *AssetSet
}

// ComputeHash hashes the chain definition followed by its resolved inputs.
// All components are length-prefixed to prevent ambiguity.
func (h *ChainHasher) ComputeHash(input HashInput) ChainHash {
	hasher := sha256.New()
	writeField := lengthPrefixed(hasher)

	c := input.Chain
	if c == nil {
		c = &Chain{}
	}

	writeField([]byte(c.Name))
	writeField([]byte(c.Dest))
	if c.Required {
		writeField([]byte{1})
	} else {
		writeField([]byte{0})
	}

	// Sources are a set; their order must not change identity.
	sources := make([]string, len(c.Sources))
	copy(sources, c.Sources)
	sort.Strings(sources)
	writeCount(writeField, len(sources))
	for _, s := range sources {
		writeField([]byte(s))
	}

	// Units are a sequence; order matters.
	writeCount(writeField, len(c.Units))
	for _, u := range c.Units {
		writeField([]byte(u.Name()))
		writeField([]byte(u.Fingerprint()))
	}

	writeCount(writeField, input.Inputs.Len())
	if input.Inputs != nil {
		for _, a := range input.Inputs.Assets {
			writeField([]byte(a.Source))
			writeField([]byte(a.Path))
			writeField(a.Content)
		}
	}

	return ChainHash(hex.EncodeToString(hasher.Sum(nil)))
}

// lengthPrefixed returns a writer that emits an 8-byte big-endian length
// before each field.
func lengthPrefixed(h hash.Hash) func([]byte) {
	return func(data []byte) {
		length := uint64(len(data))
		h.Write([]byte{
			byte(length >> 56),
			byte(length >> 48),
			byte(length >> 40),
			byte(length >> 32),
			byte(length >> 24),
			byte(length >> 16),
			byte(length >> 8),
			byte(length),
		})
		h.Write(data)
	}
}

func writeCount(writeField func([]byte), n int) {
	writeField([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
}
