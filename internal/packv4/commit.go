package packv4

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// GetCommit reconstructs the canonical commit text for the object at
// offset, per §4.5. The returned slice is exactly size bytes; any
// mismatch — including running out of room for the header before the
// message tail is reached — is a decode failure, never a partial result.
func (p *PackHandle) GetCommit(offset int64, size int64) ([]byte, error) {
	cur := newCursor(p.win, offset)
	defer cur.close()

	var out bytes.Buffer
	out.Grow(int(size))

	treeHash, err := readHashRef(cur, p)
	if err != nil {
		return nil, decodeErr(offset, "commit tree hashref", err)
	}
	if err := writeLine(&out, size, "tree %s\n", treeHash); err != nil {
		return nil, decodeErr(offset, "commit tree line", err)
	}

	parentCount, _, err := decodeVarint(cur)
	if err != nil {
		return nil, decodeErr(offset, "commit parent count", err)
	}
	parents := make([]Hash, parentCount)
	for i := range parents {
		h, err := readHashRef(cur, p)
		if err != nil {
			return nil, decodeErr(offset, "commit parent hashref", err)
		}
		parents[i] = h
		if err := writeLine(&out, size, "parent %s\n", h); err != nil {
			return nil, decodeErr(offset, "commit parent line", err)
		}
	}

	commitTime, _, err := decodeVarint(cur)
	if err != nil {
		return nil, decodeErr(offset, "commit time varint", err)
	}

	committerTZ, committerStr, err := getIdent(p, cur)
	if err != nil {
		return nil, decodeErr(offset, "committer identity", err)
	}

	authorDelta, _, err := decodeVarint(cur)
	if err != nil {
		return nil, decodeErr(offset, "author time delta", err)
	}
	authorTime := applyAuthorDelta(int64(commitTime), authorDelta)

	authorTZ, authorStr, err := getIdent(p, cur)
	if err != nil {
		return nil, decodeErr(offset, "author identity", err)
	}

	if err := writeLine(&out, size, "author %s %d %s\n", string(authorStr), authorTime, formatTZ(authorTZ)); err != nil {
		return nil, decodeErr(offset, "commit author line", err)
	}
	if err := writeLine(&out, size, "committer %s %d %s\n", string(committerStr), int64(commitTime), formatTZ(committerTZ)); err != nil {
		return nil, decodeErr(offset, "commit committer line", err)
	}

	remaining := int(size) - out.Len()
	if remaining < 0 {
		return nil, decodeErr(offset, "commit header overflow", fmt.Errorf("header alone is %d bytes, declared size %d", out.Len(), size))
	}
	msg, err := inflateExact(cursorReader{cur}, remaining)
	if err != nil {
		return nil, decodeErr(offset, "commit message inflate", err)
	}
	out.Write(msg)

	if out.Len() != int(size) {
		return nil, decodeErr(offset, "commit size mismatch", fmt.Errorf("built %d bytes, declared %d", out.Len(), size))
	}
	return out.Bytes(), nil
}

// applyAuthorDelta reconstructs the absolute author epoch from the commit
// epoch and an encoded delta whose low bit is the sign: 1 means later,
// 0 means earlier, by delta>>1 seconds. A delta of 0 (bit clear, magnitude
// zero) leaves the author time equal to the commit time.
func applyAuthorDelta(commitTime int64, delta uint64) int64 {
	magnitude := int64(delta >> 1)
	if delta&1 == 1 {
		return commitTime + magnitude
	}
	return commitTime - magnitude
}

// formatTZ renders a 2-byte big-endian signed timezone record as the
// signed, zero-padded 4-digit form Git commit headers use (e.g. "+0200",
// "-0530"). The stored integer is already in hhmm form, not raw minutes.
func formatTZ(raw [2]byte) string {
	tz := int16(binary.BigEndian.Uint16(raw[:]))
	return fmt.Sprintf("%+05d", tz)
}

// writeLine appends a formatted line to out, failing if doing so would
// exceed the declared object size — a buffer overflow is corruption, not a
// caller error, per §4.5 and §4.7.
func writeLine(out *bytes.Buffer, size int64, format string, args ...interface{}) error {
	line := fmt.Sprintf(format, args...)
	if int64(out.Len()+len(line)) > size {
		return fmt.Errorf("emitting %q would exceed declared size %d", line, size)
	}
	out.WriteString(line)
	return nil
}
