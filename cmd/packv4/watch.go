package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/vcslab/packv4/internal/packmgr"
	"github.com/vcslab/packv4/internal/progress"
	"github.com/vcslab/packv4/internal/termcolor"
)

func runWatch(args []string, cw *termcolor.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: packv4 watch <dir>")
		return 1
	}
	dir := args[0]

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

	for _, p := range mgr.List() {
		pterm.Info.Printfln("discovered %s (%s)", p.ID, p.State)
	}

	mgr.Subscribe(func(ev packmgr.PackChangeEvent) {
		switch ev.Op {
		case packmgr.PackRemoved:
			pterm.Warning.Printfln("%s removed", ev.ID)
		default:
			pterm.Success.Printfln("%s changed", ev.ID)
		}
	})

	pterm.Info.Printfln("watching %s, press Ctrl+C to stop", dir)
	<-ctx.Done()
	pterm.Info.Println("stopping")
	return 0
}
