package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"media-compressor/internal/logging"
	"media-compressor/internal/memory"
	"media-compressor/internal/metrics"
	"media-compressor/internal/startup"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	exitStopped = 130
)

type command struct {
	name    string
	summary string
	run     func(args []string) int
}

func commands() []command {
	return []command{
		{"run", "Index and convert once, then exit (paths limit the run to those files)", cmdRun},
		{"serve", "Start the control server, scheduled runs and the change watcher", cmdServe},
		{"clear-index", "Delete every catalog record and the converted files", cmdClearIndex},
		{"clear-output", "Delete everything below both output directories", cmdClearOutput},
		{"settings", "Print the effective settings and validate them", cmdSettings},
		{"version", "Print version and build information", cmdVersion},
	}
}

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return exitUsage
	}

	name := args[0]
	switch name {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return exitOK
	}
	for _, c := range commands() {
		if c.name == name {
			return c.run(args[1:])
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", sanitizeCommand(name))
	printUsage(os.Stderr)
	return exitUsage
}

// sanitizeCommand returns a safe representation of a command string for display.
// Any character that is not alphanumeric, a hyphen, or an underscore becomes '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "media-compressor - incremental photo and video compression")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: media-compressor <command> [flags] [args]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands() {
		fmt.Fprintf(w, "  %-13s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  APP_DATA_DIR   Directory holding settings.yaml and the catalog")
	fmt.Fprintln(w, "  CONTROL_ADDR   Control server listen address (serve)")
	fmt.Fprintln(w, "  LOG_FILE       Optional file receiving JSON log records")
	fmt.Fprintln(w, "  LOG_LEVEL      debug, info, warn or error")
	fmt.Fprintln(w, "  MEMORY_LIMIT   Container memory limit used to derive GOMEMLIMIT")
}

// initProcess prepares logging, memory limits and metrics shared by the
// commands that touch the catalog. The returned func flushes the log.
func initProcess(debug bool) (*startup.Config, func(), error) {
	config, err := startup.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Configure(logging.Options{FilePath: config.LogFile}); err != nil {
		return nil, nil, err
	}
	if debug {
		logging.SetLevel(logging.LevelDebug)
	}
	logging.StartCollector(logging.DefaultBufferSize, logging.DefaultHistorySize)

	memory.ConfigureFromEnv()
	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	return config, logging.Shutdown, nil
}
