package startup

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"media-compressor/internal/catalog"
	"media-compressor/internal/logging"
	"media-compressor/internal/transcoder"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

const (
	appName            = "media-compressor"
	settingsFileName   = "settings.yaml"
	defaultControlAddr = "127.0.0.1:9898"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds the process-level configuration. User settings live in
// SettingsPath and are loaded per run.
type Config struct {
	DataDir     string
	LogFile     string
	ControlAddr string

	// Derived paths
	SettingsPath string
	CatalogPath  string
}

// LoadConfig reads the environment and prepares the app data directory.
func LoadConfig() (*Config, error) {
	dataDir := getEnv("APP_DATA_DIR", "")
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate user config directory (set APP_DATA_DIR): %w", err)
		}
		dataDir = filepath.Join(base, appName)
	}

	dataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := ensureDirectory(dataDir, "data"); err != nil {
		return nil, fmt.Errorf("data directory error: %w", err)
	}
	if err := testWriteAccess(dataDir); err != nil {
		return nil, fmt.Errorf("data directory is not writable (required for the catalog): %w", err)
	}

	return &Config{
		DataDir:      dataDir,
		LogFile:      getEnv("LOG_FILE", ""),
		ControlAddr:  getEnv("CONTROL_ADDR", defaultControlAddr),
		SettingsPath: filepath.Join(dataDir, settingsFileName),
		CatalogPath:  filepath.Join(dataDir, catalog.FileName),
	}, nil
}

// rule separates the sections of the startup log.
const rule = "------------------------------------------------------------"

// section starts a titled block of the startup log.
func section(format string, args ...any) {
	logging.Info("")
	logging.Info(rule)
	logging.Info(format, args...)
	logging.Info(rule)
}

// LogStartup prints the banner, system information and configuration.
func LogStartup(config *Config) {
	printBanner()
	logSystemInfo()

	section("CONFIGURATION")
	for _, kv := range [][2]string{
		{"APP_DATA_DIR", config.DataDir},
		{"CONTROL_ADDR", config.ControlAddr},
		{"LOG_FILE", orNone(config.LogFile)},
		{"LOG_LEVEL", logging.GetLevel().String()},
		{"Settings", config.SettingsPath},
		{"Catalog", config.CatalogPath},
	} {
		logging.Info("  %-14s %s", kv[0]+":", kv[1])
	}
}

// LogCatalogInit reports how long opening the catalog took.
func LogCatalogInit(took time.Duration, records int) {
	section("CATALOG")
	logging.Info("  [OK] Opened in %v, %d records", took, records)
}

// LogToolCheck logs the external tool check and reports whether every
// tool was found.
func LogToolCheck(statuses []transcoder.ToolStatus) bool {
	section("EXTERNAL TOOLS")

	missing := 0
	for _, s := range statuses {
		if !s.Available {
			missing++
			logging.Warn("  %-9s unavailable: %s", s.Tool, s.Error)
			continue
		}
		logging.Info("  [OK] %-9s %s", s.Tool, s.Version)
		logging.Debug("       path: %s", s.Path)
	}
	if missing > 0 {
		logging.Warn("  %d tool(s) missing; conversions that need them will fail", missing)
	}
	return missing == 0
}

// LogSchedule logs the cron expression and the next run it yields.
func LogSchedule(expr string, next *time.Time) {
	switch {
	case expr == "":
		logging.Info("  Scheduled runs:  off")
	case next == nil:
		logging.Info("  Scheduled runs:  %q", expr)
	default:
		logging.Info("  Scheduled runs:  %q, next at %s", expr, next.Format(time.RFC1123))
	}
}

// LogWatcher logs whether changes below root trigger targeted runs.
func LogWatcher(enabled bool, root string) {
	if !enabled {
		logging.Info("  Change watcher:  off")
		return
	}
	logging.Info("  Change watcher:  %s", root)
}

// LogHTTPRoutes opens the control server section and, at debug level,
// lists the registered routes by group.
func LogHTTPRoutes(router *mux.Router) {
	section("CONTROL SERVER")
	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	byGroup := make(map[string][]RouteInfo)
	for _, route := range routes {
		group := getRouteGroup(route.Path)
		byGroup[group] = append(byGroup[group], route)
	}

	logging.Debug("  %d routes:", len(routes))
	for _, group := range slices.Sorted(maps.Keys(byGroup)) {
		logging.Debug("  [%s]", group)
		for _, route := range byGroup[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup groups "/api/x/..." under "api/x" and everything else under
// its first segment.
func getRouteGroup(path string) string {
	first, rest, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	switch {
	case first == "":
		return "root"
	case first == "api" && rest != "":
		sub, _, _ := strings.Cut(rest, "/")
		return "api/" + sub
	}
	return first
}

// LogServerStarted logs the control endpoints once the listener is up.
func LogServerStarted(addr string, took time.Duration) {
	section("READY")
	logging.Info("  Startup time:    %v", took)
	logging.Info("  Status:          http://%s/api/status", addr)
	logging.Info("  Metrics:         http://%s/metrics", addr)
	logging.Info("  Interrupt to stop; a running conversion finishes its current files first")
	logging.Info(rule)
}

// LogShutdownInitiated opens the shutdown section.
func LogShutdownInitiated(signal string) {
	section("SHUTDOWN (%s)", signal)
}

// LogShutdownStep logs the start of a shutdown step.
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a finished shutdown step.
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs the end of the shutdown.
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	fmt.Println(rule)
	fmt.Println(`  __  __ ___ ___ ___   _       ___ ___  __  __ ___
 |  \/  | __|   \_ _| /_\     / __/ _ \|  \/  | _ \
 | |\/| | _|| |) | | / _ \   | (_| (_) | |\/| |  _/
 |_|  |_|___|___/___/_/ \_\   \___\___/|_|  |_|_|
  compressor`)
	fmt.Println(rule)
	logging.Info("  Version:    %s (%s)", Version, Commit)
	logging.Info("  Built:      %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM")
	procs, cpus := runtime.GOMAXPROCS(0), runtime.NumCPU()
	logging.Info("  Go:          %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if procs < cpus {
		logging.Info("  CPUs:        %d of %d (container limit)", procs, cpus)
	} else {
		logging.Info("  CPUs:        %d", cpus)
	}
	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir: %s", wd)
		}
		if host, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:    %s", host)
		}
	}
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
