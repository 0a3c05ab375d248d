package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pterm/pterm"

	"github.com/vcslab/packv4/internal/packv4"
	"github.com/vcslab/packv4/internal/termcolor"
)

func runDumpDict(args []string, cw *termcolor.Writer) int {
	dir, args := flagValue(args, "--dir")
	grep, args := flagValue(args, "--grep")
	if dir == "" || len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: packv4 dump-dict --dir <pack-dir> <pack-id> (ident|path) [--grep <term>]")
		return 1
	}

	id, which := args[0], args[1]

	mgr, err := openPackDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	defer mgr.Close()

	pack, _, err := mgr.Open(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	var dict *packv4.Dictionary
	switch which {
	case "ident":
		dict, err = pack.IdentDictionary()
	case "path":
		dict, err = pack.PathDictionary()
	default:
		fmt.Fprintf(os.Stderr, "fatal: unknown dictionary %q (want ident or path)\n", which)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}

	rows := pterm.TableData{{"#", "prefix", "string"}}
	matched := 0
	for i := 0; i < dict.NumEntries(); i++ {
		prefix, str, recErr := dict.Record(i)
		if recErr != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", recErr)
			return 128
		}
		s := string(str)
		if grep != "" && !fuzzy.MatchFold(grep, s) {
			continue
		}
		matched++
		rows = append(rows, []string{strconv.Itoa(i), fmt.Sprintf("%02x%02x", prefix[0], prefix[1]), s})
	}

	if !cw.Enabled() {
		pterm.DisableColor()
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: rendering table: %v\n", err)
		return 1
	}
	pterm.Info.Printfln("%d of %d entries matched", matched, dict.NumEntries())
	return 0
}
