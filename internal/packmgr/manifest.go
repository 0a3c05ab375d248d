package packmgr

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/vcslab/packv4/internal/packv4"
)

// Manifest resolves the two lookups §6 of the pack-v4 decoder spec
// explicitly leaves external: finding an object's pack offset by hash, and
// finding the i-th packed object's offset. pack-v4 itself defines no index
// format for this ("object payloads, each addressed by an external index
// not specified here") — this package supplies one: a flat sidecar file,
// one 8-byte big-endian offset per hash-table entry, in the same sorted
// order as the pack's own hash table. A pack named "foo.pack" looks for
// "foo.pack.offsets" alongside it.
type Manifest struct {
	offsets []int64 // offsets[i] is the pack offset of hashTable entry i
}

// loadManifest reads a sidecar offset file. The number of entries must
// match numObjects exactly; anything else means the manifest and pack have
// drifted out of sync and neither can be trusted.
func loadManifest(path string, numObjects int) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	if len(data) != numObjects*8 {
		return nil, fmt.Errorf("manifest %s has %d bytes, want %d for %d objects", path, len(data), numObjects*8, numObjects)
	}
	offsets := make([]int64, numObjects)
	for i := range offsets {
		offsets[i] = int64(binary.BigEndian.Uint64(data[i*8 : i*8+8]))
	}
	return &Manifest{offsets: offsets}, nil
}

// NthOffset implements packv4.NthOffsetFinder.
func (m *Manifest) NthOffset(i int) (int64, error) {
	if i < 0 || i >= len(m.offsets) {
		return 0, fmt.Errorf("manifest index %d out of range [0,%d)", i, len(m.offsets))
	}
	return m.offsets[i], nil
}

// FindOffsetOn binds pack so the result satisfies packv4.OffsetFinder's
// hash-only signature, for passing straight into GetTree.
func (m *Manifest) FindOffsetOn(pack *packv4.PackHandle) packv4.OffsetFinder {
	return func(hash packv4.Hash) (int64, error) {
		return m.FindOffset(pack, hash)
	}
}

// FindOffset implements packv4.OffsetFinder by binary-searching the pack's
// sorted hash table for hash and mapping the matching index through the
// manifest.
func (m *Manifest) FindOffset(pack *packv4.PackHandle, hash packv4.Hash) (int64, error) {
	n := pack.NumObjects()
	idx := sort.Search(n, func(i int) bool {
		h, err := pack.HashAt(i)
		if err != nil {
			return false
		}
		return string(h[:]) >= string(hash[:])
	})
	if idx >= n {
		return 0, fmt.Errorf("hash %s not found in pack", hash)
	}
	h, err := pack.HashAt(idx)
	if err != nil || h != hash {
		return 0, fmt.Errorf("hash %s not found in pack", hash)
	}
	return m.NthOffset(idx)
}
