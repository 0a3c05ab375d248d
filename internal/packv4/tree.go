package packv4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

// GetTree reconstructs the canonical concatenated tree entries for the
// object at offset, per §4.6. findOffset and nthOffset supply the
// external hash->offset lookups a cross-object copy range needs; they are
// never consulted unless the tree actually contains a copy range whose
// source-changed flag is set.
func (p *PackHandle) GetTree(offset int64, size int64, findOffset OffsetFinder, nthOffset NthOffsetFinder) ([]byte, error) {
	cur := newCursor(p.win, offset)
	defer cur.close()

	nbEntries, _, err := decodeVarint(cur)
	if err != nil {
		return nil, decodeErr(offset, "tree entry count", err)
	}

	f := &treeFrame{
		pack:       p,
		findOffset: findOffset,
		nthOffset:  nthOffset,
		out:        &bytes.Buffer{},
		size:       size,
	}
	f.out.Grow(int(size))

	if err := f.decodeEntries(cur, offset, 0, int(nbEntries), false); err != nil {
		return nil, decodeErr(offset, "tree decode", err)
	}
	if int64(f.out.Len()) != size {
		return nil, decodeErr(offset, "tree size mismatch", fmt.Errorf("built %d bytes, declared %d", f.out.Len(), size))
	}
	return f.out.Bytes(), nil
}

// treeFrame carries the state shared across a tree reconstruction and its
// recursive copy-range calls: the output buffer being filled and the
// external lookups needed to resolve a copy source.
type treeFrame struct {
	pack       *PackHandle
	findOffset OffsetFinder
	nthOffset  NthOffsetFinder
	out        *bytes.Buffer
	size       int64
}

// decodeEntries re-emits the entries in [start, start+count) of the tree
// object at cursorOffset, per §4.6. cursorOffset only labels errors; all
// reading goes through cur.
//
// When parseHeader is true the caller is resuming mid-range into a
// referenced tree object: decodeEntries first re-parses that tree's
// object header (type/size varint, low 4 bits of the terminating byte must
// be the tree type tag) and its own nb_entries varint, establishing where
// its entry records actually begin, before reading any entries.
//
// When parseHeader is false, cur is the top-level caller's cursor, already
// past the tree's nb_entries varint. When parseHeader is true, cur is a
// fresh cursor the calling frame opened at cursorOffset, because a
// copy-range source is an arbitrary other offset in the pack, unrelated
// to the caller's stream position (§5, "that read does not advance the
// outer cursor").
func (f *treeFrame) decodeEntries(cur *cursor, cursorOffset int64, start, count int, parseHeader bool) error {
	if parseHeader {
		objType, err := skipObjectHeader(cur)
		if err != nil {
			return fmt.Errorf("referenced tree header at %d: %w", cursorOffset, err)
		}
		if objType != packObjectTreeTag {
			return fmt.Errorf("referenced object at %d has type tag %d, want tree (%d)", cursorOffset, objType, packObjectTreeTag)
		}
		if _, _, err := decodeVarint(cur); err != nil {
			return fmt.Errorf("referenced tree entry count at %d: %w", cursorOffset, err)
		}
	}

	var copySourceOffset *int64

	for count > 0 {
		what, _, err := decodeVarint(cur)
		if err != nil {
			return fmt.Errorf("entry tag: %w", err)
		}

		if what&1 == 0 {
			// Inline entry: what>>1 is a path-dictionary index. The hash
			// reference always has to be read — and its cursor cost paid
			// — whether or not this entry falls in the skip region, since
			// its width varies by form (21 bytes inline, a varint indexed).
			pathIdx := int(what >> 1)
			hash, err := readHashRef(cur, f.pack)
			if err != nil {
				return fmt.Errorf("inline entry hashref: %w", err)
			}
			if start > 0 {
				start--
				continue
			}
			if err := f.emitInline(pathIdx, hash); err != nil {
				return err
			}
			count--
			continue
		}

		// Copy range: what>>1 is the entry index inside the source tree
		// at which to begin copying.
		copyStart := int(what >> 1)
		copyCountRaw, _, err := decodeVarint(cur)
		if err != nil {
			return fmt.Errorf("copy count: %w", err)
		}
		if copyCountRaw == 0 {
			return fmt.Errorf("zero copy count")
		}
		sourceChanged := copyCountRaw&1 == 1
		copyCount := int(copyCountRaw >> 1)

		if sourceChanged {
			srcIndex, _, err := decodeVarint(cur)
			if err != nil {
				return fmt.Errorf("copy source index: %w", err)
			}
			var sourceOffset int64
			if srcIndex == 0 {
				b, err := cur.readFull(HashSize)
				if err != nil {
					return fmt.Errorf("copy source literal hash: %w", err)
				}
				var h Hash
				copy(h[:], b)
				sourceOffset, err = f.findOffset(h)
				if err != nil {
					return fmt.Errorf("resolve copy source hash %s: %w", h, err)
				}
			} else {
				sourceOffset, err = f.nthOffset(int(srcIndex - 1))
				if err != nil {
					return fmt.Errorf("resolve copy source index %d: %w", srcIndex-1, err)
				}
			}
			copySourceOffset = &sourceOffset
		} else if copySourceOffset == nil {
			return fmt.Errorf("copy range source-changed flag clear with no prior source in this frame")
		}

		if start >= copyCount {
			start -= copyCount
			continue
		}

		effectiveCount := copyCount - start
		if effectiveCount > count {
			effectiveCount = count
		}
		effectiveStart := copyStart + start
		start = 0
		count -= effectiveCount

		subCur := newCursor(f.pack.win, *copySourceOffset)
		err = f.decodeEntries(subCur, *copySourceOffset, effectiveStart, effectiveCount, true)
		subCur.close()
		if err != nil {
			return fmt.Errorf("copy range recursion at %d: %w", *copySourceOffset, err)
		}

		// The recursive call used an entirely different window
		// acquisition; force this frame's cursor to reacquire at its own
		// current position before continuing, per §9's window
		// invalidation note.
		cur.invalidate()
	}

	return nil
}

// emitInline resolves a path-dictionary index and writes one tree entry
// (octal mode, space, name, NUL, 20 raw hash bytes) to the frame's output.
func (f *treeFrame) emitInline(pathIdx int, hash Hash) error {
	modeBytes, name, err := getPath(f.pack, pathIdx)
	if err != nil {
		return fmt.Errorf("path index %d: %w", pathIdx, err)
	}
	mode := binary.BigEndian.Uint16(modeBytes[:])

	line := strconv.FormatUint(uint64(mode), 8) + " " + string(name) + "\x00"
	need := int64(len(line) + HashSize)
	if int64(f.out.Len())+need > f.size {
		return fmt.Errorf("emitting entry for %q would exceed declared size %d", name, f.size)
	}
	f.out.WriteString(line)
	f.out.Write(hash[:])
	return nil
}

// skipObjectHeader consumes a pack-v4 object header (type/size bytes
// continued with the MSB convention, ending on the first byte whose bit 7
// is clear) and returns the 4-bit type tag held in the low 4 bits of that
// terminating byte. Used only when re-entering a referenced tree object
// mid-copy-range, per §4.6.
func skipObjectHeader(cur *cursor) (byte, error) {
	for {
		b, err := cur.readByte()
		if err != nil {
			return 0, err
		}
		if b&0x80 == 0 {
			return b & 0x0f, nil
		}
	}
}
