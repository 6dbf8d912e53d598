package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	freelan "github.com/wippyai/freelan-binding"
	"github.com/wippyai/freelan-binding/memtrace"
)

func main() {
	var (
		configFile  = flag.String("config", "freelan.toml", "Path to TOML configuration")
		typeName    = flag.String("type", "", "Native value type (see -list)")
		list        = flag.Bool("list", false, "List value types and exit")
		leaks       = flag.Bool("leaks", false, "Track native memory and print the ledger report")
		stacks      = flag.Bool("stacks", false, "Record Go stacks with tracked allocations")
		verbose     = flag.Bool("v", false, "Log binding and native activity to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := freelan.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *leaks || *interactive {
		cfg.Memory.Track = true
	}
	if *stacks {
		cfg.Memory.Track = true
		cfg.Memory.Stacks = true
	}

	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer l.Sync()
		setLoggers(l)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg, *typeName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if !*list && (*typeName == "" || flag.NArg() == 0) {
		fmt.Fprintln(os.Stderr, "Usage: freelan-values -type <name> [-leaks] value...")
		fmt.Fprintln(os.Stderr, "       freelan-values -list")
		fmt.Fprintln(os.Stderr, "       freelan-values -i [-type <name>]  (interactive mode)")
		os.Exit(1)
	}

	if err := run(cfg, *typeName, flag.Args(), *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *freelan.Config, typeName string, texts []string, listOnly bool) (err error) {
	ctx := context.Background()

	b, err := freelan.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open binding: %w", err)
	}
	defer func() {
		err = multierr.Append(err, b.Close(ctx))
	}()

	if listOnly {
		for _, name := range b.Values().TypeNames() {
			typ, _ := b.Values().Type(name)
			if parts := typ.Parts(); len(parts) > 0 {
				fmt.Printf("  %s(%s)\n", name, strings.Join(parts, ", "))
			} else {
				fmt.Printf("  %s\n", name)
			}
		}
		return nil
	}

	var snap memtrace.Snapshot
	if b.Ledger() != nil {
		snap = b.Ledger().Snapshot()
	}

	// Values are parsed concurrently; each result keeps its input position.
	results := make([]description, len(texts))
	var g errgroup.Group
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			d, err := describe(b.Values(), typeName, text)
			results[i] = d
			return err
		})
	}
	parseErr := g.Wait()

	for _, d := range results {
		fmt.Print(d.String())
	}

	if b.Ledger() != nil {
		b.Quiesce()
		report := b.Ledger().Diff(snap)
		fmt.Printf("\n%s", report)
		parseErr = multierr.Append(parseErr, report.Err())
	}

	return parseErr
}
