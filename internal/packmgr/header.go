package packmgr

import (
	"encoding/binary"
	"fmt"
	"os"
)

// packMagic is the 4-byte tag pack-v4 files carry in the first 4 of their
// 12 opaque header bytes (§6 of the decoder spec treats the whole header
// as opaque to the core; reading num_objects out of it is this package's
// job, one level up, exactly the way nth_packed_object_offset et al. are
// also this package's job rather than the core's).
var packMagic = [4]byte{'P', 'A', 'C', 'K'}

// readNumObjects reads a pack-v4 file's 12-byte header and returns the
// object count recorded in bytes 8-11, mirroring the classic Git pack
// header layout (4-byte magic, 4-byte version, 4-byte count) that the
// hash table immediately following byte 12 presupposes a reader already
// knows.
func readNumObjects(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var header [12]byte
	if _, err := f.ReadAt(header[:], 0); err != nil {
		return 0, fmt.Errorf("read pack header: %w", err)
	}
	if [4]byte(header[:4]) != packMagic {
		return 0, fmt.Errorf("bad pack magic %q", header[:4])
	}
	return int(binary.BigEndian.Uint32(header[8:12])), nil
}
