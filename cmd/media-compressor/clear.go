package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"media-compressor/internal/logging"
)

func cmdClearIndex(args []string) int {
	return clearCommand("clear-index", args,
		"Delete every catalog record and everything below both output directories?",
		func(ctx context.Context, a *app) error {
			n, err := a.ctrl.ClearIndex(ctx)
			if err == nil {
				logging.Info("Removed %d catalog records", n)
			}
			return err
		})
}

func cmdClearOutput(args []string) int {
	return clearCommand("clear-output", args,
		"Delete everything below both output directories? The catalog is kept, so the next run converts everything again.",
		func(_ context.Context, a *app) error {
			return a.ctrl.ClearOutputDirs()
		})
}

// clearCommand asks for confirmation unless --yes is given. Without a
// terminal on stdin, --yes is required.
func clearCommand(name string, args []string, question string, fn func(context.Context, *app) error) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if !*yes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintf(os.Stderr, "Error: %s needs --yes when stdin is not a terminal\n", name)
			return exitUsage
		}
		if !confirm(os.Stdin, os.Stdout, question) {
			fmt.Println("Aborted.")
			return exitFailure
		}
	}

	config, flush, err := initProcess(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	defer flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, config)
	if err != nil {
		logging.Error("%v", err)
		return exitFailure
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		logging.Error("%s failed: %v", name, err)
		return exitFailure
	}
	return exitOK
}

// confirm reads a yes/no answer; anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
