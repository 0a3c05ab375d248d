package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/vcslab/packv4/internal/inspector"
	"github.com/vcslab/packv4/internal/packmgr"
	"github.com/vcslab/packv4/internal/progress"
	"github.com/vcslab/packv4/internal/termcolor"
)

func runServe(args []string, cw *termcolor.Writer) int {
	dir, args := flagValue(args, "--dir")
	addr, _ := flagValue(args, "--addr")
	if dir == "" {
		fmt.Fprintln(os.Stderr, "usage: packv4 serve --dir <pack-dir> [--addr :8080]")
		return 1
	}
	if addr == "" {
		addr = ":8080"
	}

	if !cw.Enabled() {
		pterm.DisableColor()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sp := progress.New("discovering packs in " + dir)
	sp.Start()
	mgr, err := packmgr.New(ctx, packmgr.Config{Dir: dir})
	sp.Stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		return 128
	}
	defer mgr.Close()

	srv := inspector.New(mgr, addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	pterm.Info.Printfln("serving %s on %s", dir, addr)

	select {
	case <-ctx.Done():
		pterm.Info.Println("shutting down")
		srv.Shutdown()
		return 0
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			return 1
		}
		return 0
	}
}
