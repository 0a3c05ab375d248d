package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/vcslab/packv4/internal/packidx"
	"github.com/vcslab/packv4/internal/packmgr"
	"github.com/vcslab/packv4/internal/packv4"
	"github.com/vcslab/packv4/internal/termcolor"
)

func runCatObject(args []string, cw *termcolor.Writer) int {
	legacyIdx, args := flagValue(args, "--legacy")
	if legacyIdx != "" {
		return runCatObjectLegacy(legacyIdx, args)
	}

	dir, args := flagValue(args, "--dir")
	if dir == "" {
		fmt.Fprintln(os.Stderr, "usage: packv4 cat-object --dir <pack-dir> <pack-id> <offset> <size> (commit|tree)")
		fmt.Fprintln(os.Stderr, "   or: packv4 cat-object --legacy <idx-path> <hash>")
		return 1
	}
	if len(args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: packv4 cat-object --dir <pack-dir> <pack-id> <offset> <size> (commit|tree)")
		return 1
	}

	id, offsetArg, sizeArg, kindArg := args[0], args[1], args[2], args[3]

	offset, err := strconv.ParseInt(offsetArg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid offset %q: %v\n", offsetArg, err)
		return 1
	}
	size, err := strconv.ParseInt(sizeArg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid size %q: %v\n", sizeArg, err)
		return 1
	}

	var kind packv4.ObjectKind
	switch kindArg {
	case "commit":
		kind = packv4.KindCommit
	case "tree":
		kind = packv4.KindTree
	default:
		fmt.Fprintf(os.Stderr, "fatal: unknown object kind %q (want commit or tree)\n", kindArg)
		return 1
	}

	mgr, err := openPackDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	defer mgr.Close()

	out, err := mgr.Decode(id, offset, size, kind)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	switch kind {
	case packv4.KindCommit:
		os.Stdout.Write(out)
	case packv4.KindTree:
		return printTree(out, cw)
	}
	return 0
}

// printTree renders the concatenated tree entries GetTree returns (octal
// mode, space, name, NUL, 20 raw hash bytes, repeated) as a pterm table
// when stdout is a terminal, or writes the raw record bytes unchanged
// otherwise.
func printTree(out []byte, cw *termcolor.Writer) int {
	if !termcolor.IsTerminal(os.Stdout.Fd()) {
		os.Stdout.Write(out)
		return 0
	}

	entries, err := parseTreeEntries(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	rows := pterm.TableData{{"mode", "type", "hash", "name"}}
	for _, e := range entries {
		rows = append(rows, []string{e.mode, e.kind, e.hash, e.name})
	}

	if !cw.Enabled() {
		pterm.DisableColor()
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: rendering table: %v\n", err)
		return 1
	}
	return 0
}

type treeEntry struct {
	mode string
	kind string
	hash string
	name string
}

// parseTreeEntries splits GetTree's concatenated "<mode> <name>\0<20-byte
// hash>" records into individual entries, classifying each by its mode
// the way `git ls-tree` does: 040000 is a tree, 160000 is a commit
// (submodule gitlink), everything else is a blob.
func parseTreeEntries(out []byte) ([]treeEntry, error) {
	var entries []treeEntry
	rest := out
	for len(rest) > 0 {
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, fmt.Errorf("truncated tree record: missing NUL terminator")
		}
		header := string(rest[:nul])
		sp := strings.IndexByte(header, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("truncated tree record: missing mode separator")
		}
		mode, name := header[:sp], header[sp+1:]

		rest = rest[nul+1:]
		if len(rest) < packv4.HashSize {
			return nil, fmt.Errorf("truncated tree record: missing hash bytes")
		}
		hash := rest[:packv4.HashSize]
		rest = rest[packv4.HashSize:]

		entries = append(entries, treeEntry{
			mode: mode,
			kind: treeEntryKind(mode),
			hash: fmt.Sprintf("%x", hash),
			name: name,
		})
	}
	return entries, nil
}

func treeEntryKind(mode string) string {
	switch mode {
	case "40000":
		return "tree"
	case "160000":
		return "commit"
	default:
		return "blob"
	}
}

// openPackDir builds a pack manager over dir and blocks (via New's own
// scan+warm) until every pack present at startup has been discovered.
func openPackDir(dir string) (*packmgr.Manager, error) {
	return packmgr.New(context.Background(), packmgr.Config{Dir: dir})
}

// runCatObjectLegacy serves SPEC_FULL.md §4.8's ambient legacy-pack path:
// decode a classic Git pack object (with delta resolution) through
// internal/packidx instead of the pack-v4 decoder, for an operator who
// points the inspector CLI at ordinary .idx/.pack pairs rather than
// pack-v4 packs.
func runCatObjectLegacy(idxPath string, args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: packv4 cat-object --legacy <idx-path> <hash>")
		return 1
	}
	hash, err := packidx.NewHash(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 1
	}

	packPath := strings.TrimSuffix(idxPath, ".idx") + ".pack"

	idxFile, err := os.Open(idxPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	defer idxFile.Close()

	idx, err := packidx.Load(idxFile, idxPath, packPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: reading index: %v\n", err)
		return 128
	}

	packFile, err := os.Open(packPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	defer packFile.Close()

	var resolve packidx.Resolver
	resolve = func(id packidx.Hash) ([]byte, byte, error) {
		off, ok := idx.FindObject(id)
		if !ok {
			return nil, 0, fmt.Errorf("base object %s not found in index", id)
		}
		if _, err := packFile.Seek(off, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return packidx.ReadObject(packFile, resolve)
	}

	offset, ok := idx.FindObject(hash)
	if !ok {
		fmt.Fprintf(os.Stderr, "fatal: object %s not found in index\n", hash)
		return 128
	}
	if _, err := packFile.Seek(offset, io.SeekStart); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	data, objType, err := packidx.ReadObject(packFile, resolve)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	fmt.Printf("%s\n", legacyTypeName(objType))
	os.Stdout.Write(data)
	return 0
}

func legacyTypeName(t byte) string {
	switch t {
	case packidx.ObjectCommit:
		return "commit"
	case packidx.ObjectTree:
		return "tree"
	case packidx.ObjectBlob:
		return "blob"
	case packidx.ObjectTag:
		return "tag"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}
