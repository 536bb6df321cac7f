package filesystem

import (
	"cmp"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"media-compressor/internal/logging"
	"media-compressor/internal/metrics"
)

const unknownVolume = "unknown"

// VolumeResolver names the library root a path lives under, so retry
// metrics can tell the monitored tree from the output trees.
type VolumeResolver struct {
	// longest prefix first
	roots []volumeRoot
}

type volumeRoot struct {
	prefix string
	name   string
}

// NewVolumeResolver builds a resolver from volume name to directory.
// Entries with an empty directory are skipped.
func NewVolumeResolver(volumes map[string]string) *VolumeResolver {
	vr := &VolumeResolver{}
	for name, dir := range volumes {
		if dir == "" {
			continue
		}
		vr.roots = append(vr.roots, volumeRoot{prefix: withSeparator(absOrSelf(dir)), name: name})
	}
	slices.SortFunc(vr.roots, func(a, b volumeRoot) int {
		return cmp.Compare(len(b.prefix), len(a.prefix))
	})
	return vr
}

// Resolve returns the volume containing path, or "unknown".
func (vr *VolumeResolver) Resolve(path string) string {
	if vr == nil {
		return unknownVolume
	}
	candidate := withSeparator(absOrSelf(path))
	for _, root := range vr.roots {
		if strings.HasPrefix(candidate, root.prefix) {
			return root.name
		}
	}
	return unknownVolume
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func withSeparator(path string) string {
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return path
	}
	return path + string(filepath.Separator)
}

var defaultResolver *VolumeResolver

// SetDefaultVolumeResolver replaces the resolver used when a RetryConfig
// carries none. The pipeline sets it at the start of each run.
func SetDefaultVolumeResolver(vr *VolumeResolver) {
	defaultResolver = vr
}

// RetryConfig bounds the retries of a filesystem call that failed with a
// stale NFS handle.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// VolumeResolver labels metrics; nil uses the default resolver.
	VolumeResolver *VolumeResolver
}

// DefaultRetryConfig allows three retries, backing off from 50ms to 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (c RetryConfig) volume(path string) string {
	if c.VolumeResolver != nil {
		return c.VolumeResolver.Resolve(path)
	}
	return defaultResolver.Resolve(path)
}

func (c RetryConfig) nextBackoff(current time.Duration) time.Duration {
	return min(current*2, c.MaxBackoff)
}

// isNFSStaleError reports an ESTALE anywhere in the error chain.
func isNFSStaleError(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// withRetry calls fn until it succeeds, fails with anything but ESTALE,
// or the retries are used up. The last error is returned.
func withRetry(op, path string, config RetryConfig, fn func() error) error {
	volume := config.volume(path)
	started := time.Now()
	defer func() {
		metrics.FilesystemRetryDuration.WithLabelValues(op, volume).Observe(time.Since(started).Seconds())
	}()

	wait := config.InitialBackoff
	err := fn()
	for attempt := 1; isNFSStaleError(err); attempt++ {
		metrics.FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
		if attempt > config.MaxRetries {
			logging.Warn("Giving up on %s of %s after %d retries: %v", op, path, config.MaxRetries, err)
			metrics.FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
			return err
		}

		metrics.FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
		logging.Debug("Stale handle on %s of %s, retry %d/%d in %v", op, path, attempt, config.MaxRetries, wait)
		time.Sleep(wait)
		wait = config.nextBackoff(wait)

		if err = fn(); err == nil {
			logging.Info("%s of %s succeeded on retry %d", op, path, attempt)
			metrics.FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
		}
	}
	return err
}

// StatWithRetry is os.Stat with stale handle retries.
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	var info os.FileInfo
	err := withRetry("stat", path, config, func() (err error) {
		info, err = os.Stat(path)
		return err
	})
	return info, err
}

// OpenWithRetry is os.Open with stale handle retries.
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	var f *os.File
	err := withRetry("open", path, config, func() (err error) {
		f, err = os.Open(path)
		return err
	})
	return f, err
}

// ReadDirWithRetry is os.ReadDir with stale handle retries.
func ReadDirWithRetry(dir string, config RetryConfig) ([]os.DirEntry, error) {
	var entries []os.DirEntry
	err := withRetry("readdir", dir, config, func() (err error) {
		entries, err = os.ReadDir(dir)
		return err
	})
	return entries, err
}
