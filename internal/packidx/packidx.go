// Package packidx reads classic Git pack index (.idx) files, versions 1 and
// 2. It is kept alongside the pack-v4 decoder as an ambient building block:
// the CLI's `cat-object --legacy` mode uses it to read objects from
// legacy-format packs, entirely separate from the pack-v4 decode path in
// internal/packv4 and from the pack manager (internal/packmgr).
package packidx

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

// Pack index v2 magic number bytes: "\377tOc" (\377 = 0xFF in octal)
// See: https://git-scm.com/docs/pack-format#_version_2_pack_idx_files_support_packs_larger_than_4_gib_and
const (
	IndexV2Magic0 byte = 0xFF
	IndexV2Magic1 byte = 0x74 // 't'
	IndexV2Magic2 byte = 0x4F // 'O'
	IndexV2Magic3 byte = 0x63 // 'c'
)

// Pack index v2 large offset constants.
// In version 2 pack indices, a 32-bit offset with the high bit set indicates
// that the actual offset is >= 4 GiB and must be looked up in the large offset table.
const (
	largeOffsetFlag uint32 = 0x80000000 // High bit set = large offset
	largeOffsetMask uint32 = 0x7FFFFFFF // Mask to extract large offset table index
)

// Hash is a 40-character hex-encoded SHA-1 object identifier, as used by
// classic Git pack indices.
type Hash string

// NewHash creates a Hash from a 40-character hex string, returning an error if invalid.
func NewHash(s string) (Hash, error) {
	if len(s) != 40 {
		return "", fmt.Errorf("invalid hash length: %d", len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid hash: %w", err)
	}
	return Hash(s), nil
}

// NewHashFromBytes creates a Hash from a 20-byte array.
func NewHashFromBytes(b [20]byte) (Hash, error) {
	return NewHash(hex.EncodeToString(b[:]))
}

// Index maps object hashes to their byte offsets within a pack file.
type Index struct {
	path       string
	packPath   string
	version    uint32
	numObjects uint32
	fanout     [256]uint32
	offsets    map[Hash]int64
}

// FindObject looks up the byte offset of an object by its hash.
func (idx *Index) FindObject(id Hash) (int64, bool) {
	offset, found := idx.offsets[id]
	return offset, found
}

// PackFile returns the path to the pack file associated with this index.
func (idx *Index) PackFile() string { return idx.packPath }

// Version returns the pack index format version.
func (idx *Index) Version() uint32 { return idx.version }

// NumObjects returns the number of objects stored in the pack file.
func (idx *Index) NumObjects() uint32 { return idx.numObjects }

// Fanout returns the 256-entry fanout table used for binary search within the index.
func (idx *Index) Fanout() [256]uint32 { return idx.fanout }

// Offsets returns a defensive copy of the offset map.
func (idx *Index) Offsets() map[Hash]int64 {
	cp := make(map[Hash]int64, len(idx.offsets))
	for k, v := range idx.offsets {
		cp[k] = v
	}
	return cp
}

// Load reads a single .idx file (given already opened), auto-detecting v1
// vs v2 format from the first four bytes.
func Load(r io.ReadSeeker, idxPath, packPath string) (*Index, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}

	var idx *Index
	var err error
	if header[0] == IndexV2Magic0 && header[1] == IndexV2Magic1 && header[2] == IndexV2Magic2 && header[3] == IndexV2Magic3 {
		idx, err = loadV2(r, packPath)
	} else {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek to beginning: %w", err)
		}
		idx, err = loadV1(r, packPath)
	}
	if err != nil {
		return nil, err
	}
	idx.path = idxPath
	return idx, nil
}

func loadV1(r io.ReadSeeker, packPath string) (*Index, error) {
	idx := &Index{
		packPath: packPath,
		version:  1,
		offsets:  make(map[Hash]int64),
	}

	for i := 0; i < 256; i++ {
		if err := binary.Read(r, binary.BigEndian, &idx.fanout[i]); err != nil {
			return nil, fmt.Errorf("failed to read fanout[%d]: %w", i, err)
		}
	}
	idx.numObjects = idx.fanout[255]

	for i := uint32(0); i < idx.numObjects; i++ {
		var offset uint32
		if err := binary.Read(r, binary.BigEndian, &offset); err != nil {
			return nil, fmt.Errorf("failed to read offset %d: %w", i, err)
		}

		var name [20]byte
		if _, err := io.ReadFull(r, name[:]); err != nil {
			return nil, fmt.Errorf("failed to read object name %d: %w", i, err)
		}

		id, err := NewHashFromBytes(name)
		if err != nil {
			return nil, err
		}
		idx.offsets[id] = int64(offset)
	}

	return idx, nil
}

// loadV2 reads a v2 index. Reader must be positioned after the 4-byte magic.
func loadV2(rs io.ReadSeeker, packPath string) (*Index, error) {
	idx := &Index{
		packPath: packPath,
		version:  2,
		offsets:  make(map[Hash]int64),
	}

	var version uint32
	if err := binary.Read(rs, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != 2 {
		return nil, fmt.Errorf("expected version 2, got %d", version)
	}

	for i := 0; i < 256; i++ {
		if err := binary.Read(rs, binary.BigEndian, &idx.fanout[i]); err != nil {
			return nil, fmt.Errorf("failed to read fanout[%d]: %w", i, err)
		}
	}
	idx.numObjects = idx.fanout[255]

	objectNames := make([][20]byte, idx.numObjects)
	for i := uint32(0); i < idx.numObjects; i++ {
		if _, err := io.ReadFull(rs, objectNames[i][:]); err != nil {
			return nil, fmt.Errorf("failed to read object name %d: %w", i, err)
		}
	}

	if _, err := rs.Seek(int64(idx.numObjects*4), io.SeekCurrent); err != nil {
		return nil, fmt.Errorf("failed to skip CRCs: %w", err)
	}

	offsets := make([]uint32, idx.numObjects)
	for i := uint32(0); i < idx.numObjects; i++ {
		if err := binary.Read(rs, binary.BigEndian, &offsets[i]); err != nil {
			return nil, fmt.Errorf("failed to read offset %d: %w", i, err)
		}
	}

	var largeOffsets []uint64
	for _, offset := range offsets {
		if offset&largeOffsetFlag != 0 {
			if len(largeOffsets) == 0 {
				for {
					var largeOffset uint64
					err := binary.Read(rs, binary.BigEndian, &largeOffset)
					if err == io.EOF {
						break
					}
					if err != nil {
						return nil, fmt.Errorf("failed to read large offset: %w", err)
					}
					largeOffsets = append(largeOffsets, largeOffset)
				}
			}
		}
	}

	for i := uint32(0); i < idx.numObjects; i++ {
		hash, err := NewHashFromBytes(objectNames[i])
		if err != nil {
			return nil, err
		}

		offset := offsets[i]
		if offset&largeOffsetFlag != 0 {
			largeOffsetIdx := offset & largeOffsetMask
			// #nosec G115 -- largeOffsets length is bounded by pack index format (max 2^31 entries)
			if largeOffsetIdx >= uint32(len(largeOffsets)) {
				continue
			}
			idx.offsets[hash] = int64(largeOffsets[largeOffsetIdx])
		} else {
			idx.offsets[hash] = int64(offset)
		}
	}

	return idx, nil
}
