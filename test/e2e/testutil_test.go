//go:build e2e

package e2e

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var binaryPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "packv4-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "packv4")

	repoRoot, err := findRepoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to find repo root: %v\n", err)
		os.Exit(1)
	}

	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/packv4")
	cmd.Dir = repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build packv4: %v\n%s\n", err, out)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func findRepoRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// runCLI runs the packv4 binary with the given arguments and returns stdout.
func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("packv4 %s failed: %v\nstderr: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String()
}

// runCLIExpectFail runs the packv4 binary expecting a non-zero exit and
// returns stderr.
func runCLIExpectFail(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err == nil {
		t.Fatalf("packv4 %s unexpectedly succeeded, stdout: %s", strings.Join(args, " "), stdout.String())
	}
	return stderr.String()
}

func deflateBytes(b []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(b)
	w.Close()
	return buf.Bytes()
}

// encodeVarint mirrors internal/packv4's bijective base-128 varint
// encoding, re-derived here since the decoder's own test helper is
// unexported. See internal/packv4/commit_test.go for the canonical shape.
func encodeVarint(v uint64) []byte {
	digits := []byte{byte(v & 0x7f)}
	v >>= 7
	for v != 0 {
		v--
		digits = append(digits, 0x80|byte(v&0x7f))
		v >>= 7
	}
	out := make([]byte, len(digits))
	for i, d := range digits {
		out[len(digits)-1-i] = d
	}
	return out
}

func buildDict(records [][2]string) []byte {
	var raw bytes.Buffer
	for _, r := range records {
		raw.WriteString(r[0])
		raw.WriteString(r[1])
		raw.WriteByte(0)
	}
	compressed := deflateBytes(raw.Bytes())
	var out bytes.Buffer
	out.Write(encodeVarint(uint64(raw.Len())))
	out.Write(compressed)
	return out.Bytes()
}

// packFixture is a single-pack, single-commit pack-v4 directory, built
// byte-for-byte the way internal/packv4/commit_test.go and
// internal/packmgr's own tests do, so the compiled CLI can be driven
// against it without any git dependency.
type packFixture struct {
	Dir           string
	PackID        string
	CommitOffset  int64
	CommitSize    int64
	CommitMessage string
}

func writeFixturePack(t *testing.T, message string) packFixture {
	t.Helper()
	dir := t.TempDir()

	treeHash := bytes.Repeat([]byte{0xaa}, 20)
	identDict := buildDict([][2]string{{"\x00\x00", "Alice <a@x> "}})
	pathDict := buildDict([][2]string{{"\x00\x00", ""}})

	var payload bytes.Buffer
	payload.WriteByte(0x00)
	payload.Write(treeHash)
	payload.Write(encodeVarint(0)) // no parents
	payload.Write(encodeVarint(1700000000))
	payload.Write(encodeVarint(0)) // author delta
	payload.Write(encodeVarint(0)) // committer ident index
	payload.Write(encodeVarint(0)) // committer delta
	payload.Write(deflateBytes([]byte(message)))

	var full bytes.Buffer
	header := [12]byte{'P', 'A', 'C', 'K', 0, 0, 0, 1, 0, 0, 0, 0}
	full.Write(header[:])
	full.Write(identDict)
	full.Write(pathDict)
	commitOffset := int64(full.Len())
	full.Write(payload.Bytes())

	path := filepath.Join(dir, "fixture.pack")
	if err := os.WriteFile(path, full.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".offsets", nil, 0o644); err != nil {
		t.Fatal(err)
	}

	expected := "tree " + fmt.Sprintf("%x", treeHash) + "\n" +
		"author Alice <a@x>  1700000000 +0000\n" +
		"committer Alice <a@x>  1700000000 +0000\n" +
		message

	return packFixture{
		Dir:           dir,
		PackID:        "fixture.pack",
		CommitOffset:  commitOffset,
		CommitSize:    int64(len(expected)),
		CommitMessage: message,
	}
}

// treeFixture is a single-pack, single-tree pack-v4 directory, built the
// same way writeFixturePack builds a commit: two inline entries (a blob
// and a nested tree) resolved against a two-record path dictionary.
type treeFixture struct {
	Dir        string
	PackID     string
	TreeOffset int64
	TreeSize   int64
}

func writeTreeFixturePack(t *testing.T) treeFixture {
	t.Helper()
	dir := t.TempDir()

	blobHash := bytes.Repeat([]byte{0xab}, 20)
	treeHash := bytes.Repeat([]byte{0xcd}, 20)

	identDict := buildDict([][2]string{{"\x00\x00", ""}})
	pathDict := buildDict([][2]string{
		{"\x81\xa4", "README.md"}, // mode 100644 (octal) as a big-endian uint16
		{"\x40\x00", "internal"},  // mode 40000 (octal)
	})

	var payload bytes.Buffer
	payload.Write(encodeVarint(2)) // nb_entries
	payload.Write(encodeVarint(0 << 1))
	payload.WriteByte(0) // inline hashref tag
	payload.Write(blobHash)
	payload.Write(encodeVarint(1 << 1))
	payload.WriteByte(0) // inline hashref tag
	payload.Write(treeHash)

	var full bytes.Buffer
	header := [12]byte{'P', 'A', 'C', 'K', 0, 0, 0, 1, 0, 0, 0, 0}
	full.Write(header[:])
	full.Write(identDict)
	full.Write(pathDict)
	treeOffset := int64(full.Len())
	full.Write(payload.Bytes())

	path := filepath.Join(dir, "fixture.pack")
	if err := os.WriteFile(path, full.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+".offsets", nil, 0o644); err != nil {
		t.Fatal(err)
	}

	// GetTree's size argument is the reconstructed record size, not the
	// encoded payload size: "<mode> <name>\0<20-byte hash>" per entry.
	reconstructedSize := int64(len("100644"+" "+"README.md") + 1 + 20 +
		len("40000"+" "+"internal") + 1 + 20)

	return treeFixture{
		Dir:        dir,
		PackID:     "fixture.pack",
		TreeOffset: treeOffset,
		TreeSize:   reconstructedSize,
	}
}

// legacyFixture is a minimal classic (non-pack-v4) .idx/.pack pair: a
// single, non-delta commit object, addressed by a hand-picked hash (its
// bytes need not actually hash the content — internal/packidx.NewHash only
// validates hex shape, and FindObject is a plain lookup, not a verifier).
type legacyFixture struct {
	IdxPath string
	Hash    string
	Content string
}

func writeLegacyFixture(t *testing.T, dir string) legacyFixture {
	t.Helper()

	const content = "hello pack idx\n" // len 15, fits the header's 4-bit size field
	const hash = "0000000000000000000000000000000000000a"

	var hashBytes [20]byte
	hashBytes[19] = 0x0a

	var pack bytes.Buffer
	pack.Write([]byte{'P', 'A', 'C', 'K', 0, 0, 0, 2, 0, 0, 0, 1})
	objOffset := int64(pack.Len())
	pack.WriteByte(byte(0x10 | len(content))) // type=1 (commit), size=len(content)
	pack.Write(deflateBytes([]byte(content)))

	packPath := filepath.Join(dir, "legacy.pack")
	if err := os.WriteFile(packPath, pack.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	var idx bytes.Buffer
	var fanout [256]uint32
	for i := hashBytes[0]; i < 255; i++ {
		fanout[i] = 1
	}
	fanout[255] = 1
	for _, f := range fanout {
		binary.Write(&idx, binary.BigEndian, f)
	}
	binary.Write(&idx, binary.BigEndian, uint32(objOffset))
	idx.Write(hashBytes[:])

	idxPath := filepath.Join(dir, "legacy.idx")
	if err := os.WriteFile(idxPath, idx.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	return legacyFixture{IdxPath: idxPath, Hash: hash, Content: content}
}
