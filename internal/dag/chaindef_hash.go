package dag

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"assetweaver/internal/core"
)

// computeChainDefHash hashes the declarative fields of a chain: sources
// (as a set), dest, required, remove paths (as a set) and the ordered unit
// names and fingerprints. The name is not part of it; it only breaks ties in
// the canonical order.
func computeChainDefHash(c core.Chain) ChainDefHash {
	h := sha256.New()
	writeField := lengthPrefixed(h)

	writeSet := func(items []string) {
		sorted := make([]string, len(items))
		copy(sorted, items)
		sort.Strings(sorted)
		writeUint(h, uint64(len(sorted)))
		for _, s := range sorted {
			writeField([]byte(s))
		}
	}

	writeSet(c.Sources)
	writeField([]byte(c.Dest))
	if c.Required {
		writeField([]byte{1})
	} else {
		writeField([]byte{0})
	}
	writeSet(c.Remove)

	writeUint(h, uint64(len(c.Units)))
	for _, u := range c.Units {
		writeField([]byte(u.Name()))
		writeField([]byte(u.Fingerprint()))
	}

	return ChainDefHash(hex.EncodeToString(h.Sum(nil)))
}

// lengthPrefixed returns a writer that frames each field with its big-endian
// uint64 length, so adjacent fields cannot be confused.
func lengthPrefixed(h hash.Hash) func([]byte) {
	return func(data []byte) {
		writeUint(h, uint64(len(data)))
		h.Write(data)
	}
}

func writeUint(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}
