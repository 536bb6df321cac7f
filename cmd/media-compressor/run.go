package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"media-compressor/internal/logging"
	"media-compressor/internal/pipeline"
)

// cmdRun performs one synchronous run. The first interrupt requests a stop
// at the next task boundary; the second kills the running encoders.
func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: media-compressor run [-debug] [path ...]")
		fmt.Fprintln(fs.Output(), "")
		fmt.Fprintln(fs.Output(), "Without paths every file below the monitored directory is considered.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	config, flush, err := initProcess(*debug)
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

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for i := 0; ; i++ {
			select {
			case <-sigChan:
			case <-ctx.Done():
				return
			}
			if i == 0 {
				logging.Warn("Interrupted, stopping after the current tasks (interrupt again to abort)")
				a.ctrl.RequestStop()
				continue
			}
			logging.Warn("Interrupted again, aborting running conversions")
			cancel()
			return
		}
	}()

	var (
		res    pipeline.RunResult
		runErr error
	)
	if fs.NArg() > 0 {
		paths, err := absPaths(fs.Args())
		if err != nil {
			logging.Error("%v", err)
			return exitUsage
		}
		res, runErr = a.ctrl.RunPaths(ctx, pipeline.TriggerManual, paths)
	} else {
		res, runErr = a.ctrl.Run(ctx, pipeline.TriggerManual)
	}

	printRunSummary(res)
	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		return exitFailure
	case res.Outcome == pipeline.OutcomeStopped || errors.Is(runErr, context.Canceled):
		return exitStopped
	default:
		return exitOK
	}
}

func absPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		p, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", arg, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// printRunSummary logs the counters of a finished run whatever the level.
func printRunSummary(res pipeline.RunResult) {
	logging.Printf("Run %s: %s", res.ID, res.Outcome)
	logging.Printf("  Indexing:   %d scanned, %d new, %d re-indexed, %d unchanged, %d rejected, %d failed, %d stale removed",
		res.Index.Scanned, res.Index.Indexed, res.Index.Reindexed, res.Index.Unchanged,
		res.Index.Rejected, res.Index.Failed, res.Index.StaleRemoved)
	logging.Printf("  Conversion: %d converted, %d up to date, %d unknown date, %d failed",
		res.Conversion.Converted, res.Conversion.Skipped, res.Conversion.UnknownDate, res.Conversion.Failed)
	if res.EmptyDirsRemoved > 0 {
		logging.Printf("  Removed %d empty output directories", res.EmptyDirsRemoved)
	}
	if res.Error != "" {
		logging.Error("  %s", res.Error)
	}
}
