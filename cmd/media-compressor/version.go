package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"media-compressor/internal/startup"
)

func cmdVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print build information as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	info := startup.GetBuildInfo()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			return exitFailure
		}
		return exitOK
	}
	fmt.Printf("media-compressor %s (commit %s, built %s, %s %s/%s)\n",
		info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
	return exitOK
}
