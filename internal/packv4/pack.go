package packv4

import (
	"fmt"
	"os"
)

// packHeaderSize is the opaque leading header this package does not
// interpret (bytes 0-11; see §6's on-disk layout).
const packHeaderSize = 12

// OpenFile opens path as a file-backed pack and returns a handle ready for
// GetCommit/GetTree calls. numObjects must come from whatever companion
// index accompanies the pack — this package does not define or read one
// (§1 excludes "any higher-level object lookup" as an external
// collaborator) — so callers that only have a raw pack-v4 file and no
// index should use OpenWithWindow against their own Window implementation
// instead. Dictionaries are not touched here; they materialize lazily on
// first use, per §4.4.
func OpenFile(path string, numObjects int) (*PackHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("packv4: open %s: %w", path, err)
	}
	win, err := newFileWindow(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	pack, err := OpenWithWindow(win, numObjects)
	if err != nil {
		f.Close()
		return nil, err
	}
	pack.file = f
	return pack, nil
}

// Close releases the OS file backing a handle opened with OpenFile. It is
// a no-op for handles built with OpenWithWindow over a caller-owned
// Window, since this package does not own that resource.
func (p *PackHandle) Close() error {
	if p.file == nil {
		return nil
	}
	return p.file.Close()
}

// OpenWithWindow constructs a PackHandle over an already-open Window, with
// num_objects supplied by the caller (learned from whatever external
// index framing accompanies the pack — this package does not define or
// read one; see §1, "any higher-level object lookup... external
// collaborators"). It reads just the hash table out of win, bytes 12
// through 12+20*numObjects, per §6.
func OpenWithWindow(win Window, numObjects int) (*PackHandle, error) {
	if numObjects < 0 {
		return nil, fmt.Errorf("packv4: negative num_objects %d", numObjects)
	}
	tableLen := numObjects * HashSize
	view, err := win.Acquire(packHeaderSize, tableLen)
	if err != nil {
		return nil, fmt.Errorf("packv4: read hash table: %w", err)
	}
	data := view.Bytes()
	if len(data) < tableLen {
		return nil, fmt.Errorf("packv4: hash table truncated: want %d bytes, have %d", tableLen, len(data))
	}
	table := make([]byte, tableLen)
	copy(table, data[:tableLen])
	view.Release()

	return &PackHandle{
		win:        win,
		numObjects: numObjects,
		hashTable:  table,
	}, nil
}
