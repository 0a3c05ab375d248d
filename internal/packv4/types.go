// Package packv4 decodes objects from a pack-v4 object pack: a
// content-addressed pack format built from a sorted hash table, two shared
// string dictionaries (identity and path), and a run of compressed object
// payloads. Given a pack handle, a byte offset, and the declared size of a
// single object, it reconstructs that object's canonical text or binary
// form.
//
// The package treats mmap-style paging, DEFLATE inflate, and the
// hash-to-offset index as external collaborators (see Window, compress/zlib,
// and the OffsetFinder/NthOffsetFinder lookups passed to GetTree); it does
// not itself open or map the pack file beyond the default fileWindow used by
// OpenFile.
package packv4

import (
	"encoding/hex"
	"fmt"
	"os"
	"sync"
)

// HashSize is the fixed width, in bytes, of every object identifier this
// package understands. pack-v4 does not support hash algorithms other than
// this one.
const HashSize = 20

// Hash is a 20-byte object identifier.
type Hash [HashSize]byte

// String renders the hash as lowercase hex, matching hash_to_hex in the
// external interface.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ObjectKind distinguishes the two pack-v4 object shapes this package
// reconstructs.
type ObjectKind int

const (
	// KindCommit identifies a commit object payload.
	KindCommit ObjectKind = iota
	// KindTree identifies a tree object payload.
	KindTree
)

// packObjectTreeTag is the low-4-bit object type tag a referenced tree's
// header must carry; see the tree reconstructor's cross-object recursion.
const packObjectTreeTag = 2

// DecodeError wraps a corruption detected while reconstructing a single
// object. It never indicates a problem with the pack handle itself.
type DecodeError struct {
	Offset int64
	Op     string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("packv4: %s at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(offset int64, op string, err error) error {
	return &DecodeError{Offset: offset, Op: op, Err: err}
}

// PackHandle is an open pack-v4 pack: a hash table plus two lazily
// materialized dictionaries. Once a dictionary is populated it is immutable
// for the life of the handle, and repeated requests return the same
// mapping (see Dictionary).
type PackHandle struct {
	win  Window
	file *os.File // non-nil only for handles opened via OpenFile

	numObjects int
	hashTable  []byte // numObjects * HashSize bytes, sorted

	identOnce sync.Once
	identDict *Dictionary
	identErr  error

	pathOnce sync.Once
	pathDict *Dictionary
	pathErr  error

	identDictEnd int64 // valid once identOnce has fired successfully
}

// NumObjects returns the number of hashes in the pack's hash table.
func (p *PackHandle) NumObjects() int { return p.numObjects }

// HashAt returns the i-th hash (0-based) in the pack's sorted hash table.
func (p *PackHandle) HashAt(i int) (Hash, error) {
	if i < 0 || i >= p.numObjects {
		return Hash{}, fmt.Errorf("hash index %d out of range [0,%d)", i, p.numObjects)
	}
	var h Hash
	copy(h[:], p.hashTable[i*HashSize:(i+1)*HashSize])
	return h, nil
}

// OffsetFinder looks up an object's pack offset by its hash, using the
// external hash->offset finder. This is supplied by the caller because
// pack-v4's own hash table only proves membership ordering, not offsets;
// see GetTree's findOffset parameter.
type OffsetFinder func(hash Hash) (int64, error)

// NthOffsetFinder looks up the i-th packed object's offset via the external
// offset table. Supplied by the caller, analogous to OffsetFinder.
type NthOffsetFinder func(i int) (int64, error)
