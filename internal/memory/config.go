package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"media-compressor/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit used for the Go heap.
const DefaultMemoryRatio = 0.5

// Configuration sources reported in ConfigResult.Source.
const (
	SourceGOMEMLIMIT  = "GOMEMLIMIT"
	SourceMemoryLimit = "MEMORY_LIMIT"
	SourceNone        = "none"
)

// ConfigResult holds the result of memory configuration
type ConfigResult struct {
	// Configured indicates whether a limit is in effect
	Configured bool
	Source     string

	// ContainerLimit is the parsed MEMORY_LIMIT in bytes (0 if not set)
	ContainerLimit int64
	// GoMemLimit is the limit in effect in bytes (0 if not set)
	GoMemLimit int64
	Ratio      float64
}

var log = logging.WithSource("Memory")

// ConfigureFromEnv applies GOMEMLIMIT derived from MEMORY_LIMIT and
// MEMORY_RATIO unless GOMEMLIMIT is already set.
func ConfigureFromEnv() ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: SourceGOMEMLIMIT}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		log.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	raw := os.Getenv("MEMORY_LIMIT")
	if raw == "" {
		log.Debug("MEMORY_LIMIT not set, GOMEMLIMIT left unconfigured")
		return ConfigResult{Source: SourceNone}
	}
	memLimit, err := parseLimit(raw)
	if err != nil {
		log.Warn("Failed to parse MEMORY_LIMIT %q: %v", raw, err)
		return ConfigResult{Source: SourceNone}
	}

	ratio := parseRatio(os.Getenv("MEMORY_RATIO"))
	goMemLimit := int64(float64(memLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	log.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s container limit)",
		humanize.IBytes(uint64(goMemLimit)), ratio*100, humanize.IBytes(uint64(memLimit)))

	return ConfigResult{
		Configured:     true,
		Source:         SourceMemoryLimit,
		ContainerLimit: memLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

// parseLimit accepts plain bytes or a size with a unit, including
// Kubernetes quantities such as "512Mi".
func parseLimit(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n == 0 || n > math.MaxInt64 {
		return 0, strconv.ErrRange
	}
	return int64(n), nil
}

func parseRatio(s string) float64 {
	if s == "" {
		return DefaultMemoryRatio
	}
	ratio, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Warn("Failed to parse MEMORY_RATIO %q: %v, using default %.2f", s, err, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	if ratio <= 0 || ratio > 1 {
		log.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using default %.2f", s, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return ratio
}
