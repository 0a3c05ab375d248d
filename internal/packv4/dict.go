package packv4

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// minDictSize is the smallest legal uncompressed dictionary size: one
// empty-string entry, 2 prefix bytes plus a lone NUL terminator.
const minDictSize = 3

// Dictionary is a lazily loaded, immutable lookup table mapping small
// integer indices to (prefix, string) records. Both the identity and path
// dictionaries share this representation; see §3 and §9's note on records
// being zero-copy views into an owned buffer.
type Dictionary struct {
	data    []byte
	entries []int // entries[i] is the byte offset of record i within data
}

// NumEntries returns the dictionary's record count.
func (d *Dictionary) NumEntries() int { return len(d.entries) }

// Record returns the i-th record's 2-byte prefix and NUL-terminated string
// payload (prefix and string as separate slices, both views into the
// dictionary's owned buffer — valid for the life of the pack handle, per
// §9's "dictionary records as view into owned buffer" note).
func (d *Dictionary) Record(i int) (prefix [2]byte, str []byte, err error) {
	if i < 0 || i >= len(d.entries) {
		return prefix, nil, fmt.Errorf("packv4: dictionary index %d out of range [0,%d)", i, len(d.entries))
	}
	start := d.entries[i]
	copy(prefix[:], d.data[start:start+2])
	nul := bytes.IndexByte(d.data[start+2:], 0)
	str = d.data[start+2 : start+2+nul]
	return prefix, str, nil
}

// loadDictionary implements §4.3: read a varint uncompressed size, inflate
// exactly that many bytes, then index the records in two passes. Returns
// the loaded dictionary and the byte offset immediately past the
// compressed stream, so the caller can chain (the path dictionary starts
// where the identity dictionary ends).
func loadDictionary(pack *PackHandle, offset int64) (*Dictionary, int64, error) {
	cur := newCursor(pack.win, offset)
	defer cur.close()

	size, _, err := decodeVarint(cur)
	if err != nil {
		return nil, 0, fmt.Errorf("packv4: dictionary size varint at %d: %w", offset, err)
	}
	if size < minDictSize {
		return nil, 0, fmt.Errorf("packv4: dictionary size %d below minimum %d", size, minDictSize)
	}

	data, err := inflateExact(cursorReader{cur}, int(size))
	if err != nil {
		return nil, 0, fmt.Errorf("packv4: dictionary inflate at %d: %w", offset, err)
	}
	end := cur.offset()

	nbEntries, err := countDictEntries(data)
	if err != nil {
		return nil, 0, fmt.Errorf("packv4: dictionary layout at %d: %w", offset, err)
	}

	entries := make([]int, 0, nbEntries)
	pos := 0
	for i := 0; i < nbEntries; i++ {
		entries = append(entries, pos)
		nul := bytes.IndexByte(data[pos+2:], 0)
		pos += 2 + nul + 1
	}

	return &Dictionary{data: data, entries: entries}, end, nil
}

// countDictEntries performs §4.3's first pass: walk the inflated buffer
// counting 2-prefix + NUL-terminated-string records, and verify the walk
// lands exactly on len(data) with nothing left over.
func countDictEntries(data []byte) (int, error) {
	count := 0
	pos := 0
	for pos < len(data) {
		if pos+2 > len(data) {
			return 0, fmt.Errorf("truncated record prefix at %d", pos)
		}
		nul := bytes.IndexByte(data[pos+2:], 0)
		if nul < 0 {
			return 0, fmt.Errorf("unterminated record string at %d", pos)
		}
		pos += 2 + nul + 1
		count++
	}
	if pos != len(data) {
		return 0, fmt.Errorf("record walk ended at %d, want %d", pos, len(data))
	}
	return count, nil
}

// inflateExact decompresses r with zlib, requiring the output to be
// exactly n bytes and the stream to end cleanly. Used by both the
// dictionary loader and the commit reconstructor's message-tail inflate.
func inflateExact(r io.Reader, n int) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open inflate stream: %w", err)
	}
	defer zr.Close()

	out := make([]byte, n)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("inflate short by expected length %d: %w", n, err)
	}
	// Confirm the stream really ends here: one more byte should yield EOF.
	var extra [1]byte
	if k, err := zr.Read(extra[:]); err != io.EOF || k != 0 {
		return nil, fmt.Errorf("inflate produced more than declared %d bytes", n)
	}
	return out, nil
}

// identDictionary returns the pack's identity dictionary, materializing it on
// first use. Subsequent calls return the same *Dictionary, satisfying the
// at-most-one-construction invariant from §4.4/§5.
func (p *PackHandle) identDictionary() (*Dictionary, error) {
	p.identOnce.Do(func() {
		offset := int64(12) + int64(p.numObjects)*HashSize
		d, end, err := loadDictionary(p, offset)
		if err != nil {
			p.identErr = err
			return
		}
		p.identDict = d
		p.identDictEnd = end
	})
	return p.identDict, p.identErr
}

// pathDictionary returns the pack's path dictionary, materializing it (and
// the identity dictionary, which must load first to learn where the path
// dictionary begins — see §9's open question on dictionary offset
// computation) on first use.
func (p *PackHandle) pathDictionary() (*Dictionary, error) {
	if _, err := p.identDictionary(); err != nil {
		return nil, err
	}
	p.pathOnce.Do(func() {
		d, _, err := loadDictionary(p, p.identDictEnd)
		if err != nil {
			p.pathErr = err
			return
		}
		p.pathDict = d
	})
	return p.pathDict, p.pathErr
}

// WarmIdentDictionary forces the identity dictionary to materialize,
// letting a caller (e.g. the pack manager, right after opening a pack) pay
// the inflate cost up front instead of on the first GetCommit/GetTree call.
func (p *PackHandle) WarmIdentDictionary() error {
	_, err := p.identDictionary()
	return err
}

// WarmPathDictionary forces the path dictionary (and, transitively, the
// identity dictionary) to materialize. See WarmIdentDictionary.
func (p *PackHandle) WarmPathDictionary() error {
	_, err := p.pathDictionary()
	return err
}

// IdentDictionary exposes the pack's identity dictionary for callers that
// need to enumerate its records directly (e.g. a dump-dict CLI command)
// rather than resolve a single already-known index.
func (p *PackHandle) IdentDictionary() (*Dictionary, error) {
	return p.identDictionary()
}

// PathDictionary exposes the pack's path dictionary, analogous to
// IdentDictionary.
func (p *PackHandle) PathDictionary() (*Dictionary, error) {
	return p.pathDictionary()
}

// getIdent decodes a varint index from cur and resolves it against the
// identity dictionary, per §4.4's get_ident.
func getIdent(pack *PackHandle, cur *cursor) (prefix [2]byte, str []byte, err error) {
	dict, err := pack.identDictionary()
	if err != nil {
		return prefix, nil, err
	}
	idx, _, err := decodeVarint(cur)
	if err != nil {
		return prefix, nil, err
	}
	return dict.Record(int(idx))
}

// getPath resolves an already-decoded index against the path dictionary,
// per §4.4's get_path (no varint decode here — the index arrives from the
// caller, typically shifted out of a tree-entry tag).
func getPath(pack *PackHandle, index int) (prefix [2]byte, str []byte, err error) {
	dict, err := pack.pathDictionary()
	if err != nil {
		return prefix, nil, err
	}
	return dict.Record(index)
}
