package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"media-compressor/internal/converter"
	"media-compressor/internal/logging"
	"media-compressor/internal/settings"
	"media-compressor/internal/startup"
	"media-compressor/internal/transcoder"
)

// cmdSettings prints the effective settings as YAML. Loading backfills
// missing keys into the file. Log output goes to stderr.
func cmdSettings(args []string) int {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	checkTools := fs.Bool("tools", false, "also check that ffmpeg, magick and exiftool can be run")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	config, err := startup.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	if err := logging.Configure(logging.Options{Writer: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	st, err := settings.NewStore(config.SettingsPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	fmt.Printf("# %s\n", config.SettingsPath)
	out, err := yaml.Marshal(st)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}
	_, _ = os.Stdout.Write(out)

	code := exitOK
	if err := st.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "\nSettings are not valid:\n%v\n", err)
		code = exitFailure
	}

	if *checkTools {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		statuses := transcoder.CheckTools(ctx, converter.Tools(st))
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(statuses)
		for _, s := range statuses {
			if !s.Available {
				code = exitFailure
			}
		}
	}
	return code
}
