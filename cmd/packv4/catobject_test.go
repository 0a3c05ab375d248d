package main

import (
	"bytes"
	"testing"

	"github.com/vcslab/packv4/internal/packv4"
)

func TestParseTreeEntries(t *testing.T) {
	blobHash := bytes.Repeat([]byte{0xab}, packv4.HashSize)
	treeHash := bytes.Repeat([]byte{0xcd}, packv4.HashSize)

	var raw bytes.Buffer
	raw.WriteString("100644 README.md\x00")
	raw.Write(blobHash)
	raw.WriteString("40000 internal\x00")
	raw.Write(treeHash)

	entries, err := parseTreeEntries(raw.Bytes())
	if err != nil {
		t.Fatalf("parseTreeEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if entries[0].mode != "100644" || entries[0].kind != "blob" || entries[0].name != "README.md" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].mode != "40000" || entries[1].kind != "tree" || entries[1].name != "internal" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
	if entries[0].hash != "abababababababababababababababababababab"[:packv4.HashSize*2] {
		t.Errorf("unexpected first hash: %s", entries[0].hash)
	}
}

func TestParseTreeEntriesTruncated(t *testing.T) {
	if _, err := parseTreeEntries([]byte("100644 a.txt")); err == nil {
		t.Fatal("expected error for record missing NUL terminator")
	}
	if _, err := parseTreeEntries([]byte("100644 a.txt\x00\x01\x02")); err == nil {
		t.Fatal("expected error for record missing full hash")
	}
}

func TestTreeEntryKind(t *testing.T) {
	cases := map[string]string{
		"40000":  "tree",
		"160000": "commit",
		"100644": "blob",
		"100755": "blob",
		"120000": "blob",
	}
	for mode, want := range cases {
		if got := treeEntryKind(mode); got != want {
			t.Errorf("treeEntryKind(%q) = %q, want %q", mode, got, want)
		}
	}
}
