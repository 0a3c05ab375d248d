package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/vcslab/packv4/internal/cli"
	"github.com/vcslab/packv4/internal/termcolor"
)

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])

	// --version is handled before app.Run because "--" prefixed args
	// would be treated as unknown commands by the dispatcher.
	for _, a := range args {
		if a == "--version" {
			printVersion()
			os.Exit(0)
		}
	}

	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)

	app := cli.NewApp("packv4", version)
	app.Stderr = os.Stderr

	app.Register(&cli.Command{
		Name:    "cat-object",
		Summary: "Decode a single object from a pack",
		Usage:   "packv4 cat-object --dir <pack-dir> <pack-id> <offset> <size> (commit|tree)\n         packv4 cat-object --legacy <idx-path> <hash>",
		Examples: []string{
			"packv4 cat-object --dir ./packs main.pack 12 200 commit",
			"packv4 cat-object --legacy ./repo.idx 4b825dc642cb6eb9a060e54bf8d69288fbee4904",
		},
		Run: func(args []string) int { return runCatObject(args, cw) },
	})

	app.Register(&cli.Command{
		Name:    "dump-dict",
		Summary: "List entries in a pack's identity or path dictionary",
		Usage:   "packv4 dump-dict --dir <pack-dir> <pack-id> (ident|path) [--grep <term>]",
		Examples: []string{
			"packv4 dump-dict --dir ./packs main.pack ident",
			"packv4 dump-dict --dir ./packs main.pack path --grep internal",
		},
		Run: func(args []string) int { return runDumpDict(args, cw) },
	})

	app.Register(&cli.Command{
		Name:    "watch",
		Summary: "Watch a directory and print pack change events",
		Usage:   "packv4 watch <dir>",
		Run:     func(args []string) int { return runWatch(args, cw) },
	})

	app.Register(&cli.Command{
		Name:    "serve",
		Summary: "Serve a pack directory over the inspector HTTP API",
		Usage:   "packv4 serve --dir <pack-dir> [--addr :8080]",
		Examples: []string{
			"packv4 serve --dir ./packs",
			"packv4 serve --dir ./packs --addr :9090",
		},
		Run: func(args []string) int { return runServe(args, cw) },
	})

	app.Register(&cli.Command{
		Name:    "update",
		Summary: "Update to the latest release",
		Usage:   "packv4 update [--check]",
		Examples: []string{
			"packv4 update",
			"packv4 update --check",
		},
		Run: func(args []string) int { return runUpdate(args) },
	})

	app.Register(&cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Usage:   "packv4 version",
		Run:     func([]string) int { printVersion(); return 0 },
	})

	os.Exit(app.Run(args, cw))
}

func printVersion() {
	fmt.Printf("packv4 %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  built:      %s\n", buildDate)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
