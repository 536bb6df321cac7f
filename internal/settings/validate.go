package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-compressor/internal/filesystem"
)

// ConfigError reports settings that make a run impossible. A run that
// fails validation is refused before any stage starts.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid settings: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Validate checks the settings needed for a run. Output roots may be
// missing; the controller creates them before scanning.
func (s *Settings) Validate() error {
	cerr := &ConfigError{}

	if s.MonitoredDir == "" {
		cerr.add("monitored_dir is not set")
	} else if info, err := os.Stat(s.MonitoredDir); err != nil || !info.IsDir() {
		cerr.add("monitored_dir %q is not a directory", s.MonitoredDir)
	} else if !filepath.IsAbs(s.MonitoredDir) {
		cerr.add("monitored_dir %q must be an absolute path", s.MonitoredDir)
	}

	s.checkOutputDir(cerr, "output_dir", s.OutputDir)
	s.checkOutputDir(cerr, "unknown_output_dir", s.UnknownOutputDir)

	for name, layout := range map[string]*PathLayout{
		"output_dir_path_type":         &s.OutputDirPathType,
		"unknown_output_dir_path_type": &s.UnknownOutputDirPathType,
	} {
		parsed, err := ParseLayout(string(*layout))
		if err != nil {
			cerr.add("%s: %v", name, err)
			continue
		}
		*layout = parsed
	}

	if s.IndexingWorkers < 1 {
		cerr.add("indexing_workers must be at least 1")
	}
	if s.ConversionWorkers < 1 {
		cerr.add("conversion_workers must be at least 1")
	}
	if s.GPUCount < 0 {
		cerr.add("gpu_count must not be negative")
	}
	if s.GPUCount > 0 && s.GPUWorkers < 1 {
		cerr.add("gpu_workers must be at least 1 when gpu_count is set")
	}
	if s.ImageCompressionQuality < 1 || s.ImageCompressionQuality > 100 {
		cerr.add("image_compression_quality must be between 1 and 100")
	}
	if s.ImageMaxDimension < 1 {
		cerr.add("image_max_dimension must be positive")
	}
	if s.VideoMaxDimension < 1 {
		cerr.add("video_max_dimension must be positive")
	}
	if s.VideoCRF < 0 || s.VideoCRF > 51 {
		cerr.add("video_crf must be between 0 and 51")
	}
	if s.VideoAudioBitrate < 1 {
		cerr.add("video_audio_bitrate must be positive")
	}
	if s.MetadataProbe != ProbeExiftool && s.MetadataProbe != ProbeNative {
		cerr.add("metadata_probe must be %q or %q", ProbeExiftool, ProbeNative)
	}
	if _, err := s.Location(); err != nil {
		cerr.add("capture_time_zone: %v", err)
	}

	if len(cerr.Problems) > 0 {
		return cerr
	}
	return nil
}

func (s *Settings) checkOutputDir(cerr *ConfigError, name, dir string) {
	if dir == "" {
		cerr.add("%s is not set", name)
		return
	}
	if !filepath.IsAbs(dir) {
		cerr.add("%s %q must be an absolute path", name, dir)
		return
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		cerr.add("%s %q is not a directory", name, dir)
		return
	}
	if s.MonitoredDir != "" && filesystem.IsWithin(s.MonitoredDir, dir) && !s.IsExcluded(dir) {
		cerr.add("%s %q is inside monitored_dir and not excluded", name, dir)
	}
}

// IsExcluded reports whether dir equals or is a descendant of any excluded
// directory. Matching is by path components, not string prefix.
func (s *Settings) IsExcluded(dir string) bool {
	for _, excluded := range s.DirsToExclude {
		if excluded != "" && filesystem.IsWithin(excluded, dir) {
			return true
		}
	}
	return false
}
