// Package settings holds the user-configurable settings record and its
// persistence. Settings are loaded once per run and never mutated while a
// run is in progress.
package settings

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"media-compressor/internal/mediatypes"
	"media-compressor/internal/workers"
)

// PathLayout selects how output directories are derived.
type PathLayout string

const (
	// OriginalPaths mirrors the source directory structure under the output root.
	OriginalPaths PathLayout = "OriginalPaths"
	// SortByDate places outputs under root/year/month/day.
	SortByDate PathLayout = "SortByDate"
)

// ParseLayout accepts the canonical names and the labels older settings
// files used.
func ParseLayout(s string) (PathLayout, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "originalpaths", "useoriginalpaths":
		return OriginalPaths, nil
	case "sortbydate":
		return SortByDate, nil
	default:
		return "", fmt.Errorf("unknown path layout %q", s)
	}
}

// Metadata probe implementations.
const (
	ProbeExiftool = "exiftool"
	ProbeNative   = "native"
)

// Settings is the singleton configuration record.
type Settings struct {
	MonitoredDir             string     `yaml:"monitored_dir" mapstructure:"monitored_dir"`
	DirsToExclude            []string   `yaml:"dirs_to_exclude" mapstructure:"dirs_to_exclude"`
	OutputDir                string     `yaml:"output_dir" mapstructure:"output_dir"`
	UnknownOutputDir         string     `yaml:"unknown_output_dir" mapstructure:"unknown_output_dir"`
	OutputDirPathType        PathLayout `yaml:"output_dir_path_type" mapstructure:"output_dir_path_type"`
	UnknownOutputDirPathType PathLayout `yaml:"unknown_output_dir_path_type" mapstructure:"unknown_output_dir_path_type"`

	SkipSameNameVideo    bool `yaml:"skip_same_name_video" mapstructure:"skip_same_name_video"`
	SkipSameNameRaw      bool `yaml:"skip_same_name_raw" mapstructure:"skip_same_name_raw"`
	ConvertUnknown       bool `yaml:"convert_unknown" mapstructure:"convert_unknown"`
	OverwriteOutputFiles bool `yaml:"overwrite_output_files" mapstructure:"overwrite_output_files"`

	IndexingWorkers   int `yaml:"indexing_workers" mapstructure:"indexing_workers"`
	ConversionWorkers int `yaml:"conversion_workers" mapstructure:"conversion_workers"`
	GPUWorkers        int `yaml:"gpu_workers" mapstructure:"gpu_workers"`
	GPUCount          int `yaml:"gpu_count" mapstructure:"gpu_count"`

	ImageCompressionQuality int    `yaml:"image_compression_quality" mapstructure:"image_compression_quality"`
	ImageMaxDimension       int    `yaml:"image_max_dimension" mapstructure:"image_max_dimension"`
	VideoMaxDimension       int    `yaml:"video_max_dimension" mapstructure:"video_max_dimension"`
	VideoCRF                int    `yaml:"video_crf" mapstructure:"video_crf"`
	VideoNVENCPreset        string `yaml:"video_nvenc_preset" mapstructure:"video_nvenc_preset"`
	VideoAudioBitrate       int    `yaml:"video_audio_bitrate" mapstructure:"video_audio_bitrate"`

	PathFFmpeg   string `yaml:"path_ffmpeg" mapstructure:"path_ffmpeg"`
	PathMagick   string `yaml:"path_magick" mapstructure:"path_magick"`
	PathExiftool string `yaml:"path_exiftool" mapstructure:"path_exiftool"`

	// MetadataProbe is "exiftool" or "native".
	MetadataProbe string `yaml:"metadata_probe" mapstructure:"metadata_probe"`
	// CaptureTimeZone is applied to capture timestamps that carry no offset.
	// "Local", "UTC" or an IANA zone name.
	CaptureTimeZone string `yaml:"capture_time_zone" mapstructure:"capture_time_zone"`

	ImageExtensions []string `yaml:"image_extensions" mapstructure:"image_extensions"`
	RawExtensions   []string `yaml:"raw_extensions" mapstructure:"raw_extensions"`
	VideoExtensions []string `yaml:"video_extensions" mapstructure:"video_extensions"`

	// Schedule is a cron expression for periodic runs; empty disables it.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
	// WatchChanges starts targeted runs when files under the monitored dir change.
	WatchChanges bool `yaml:"watch_changes" mapstructure:"watch_changes"`
}

// Defaults returns the documented default settings. Directories have no
// default and must be configured before a run.
func Defaults() Settings {
	cpus := workers.ForCPU(0)
	return Settings{
		DirsToExclude:            []string{},
		OutputDirPathType:        SortByDate,
		UnknownOutputDirPathType: OriginalPaths,
		SkipSameNameVideo:        true,
		SkipSameNameRaw:          true,
		ConvertUnknown:           false,
		OverwriteOutputFiles:     false,
		IndexingWorkers:          cpus,
		ConversionWorkers:        cpus,
		GPUWorkers:               1,
		GPUCount:                 0,
		ImageCompressionQuality:  75,
		ImageMaxDimension:        1920,
		VideoMaxDimension:        1920,
		VideoCRF:                 28,
		VideoNVENCPreset:         "fast",
		VideoAudioBitrate:        128,
		PathFFmpeg:               "ffmpeg",
		PathMagick:               "magick",
		PathExiftool:             "exiftool",
		MetadataProbe:            ProbeExiftool,
		CaptureTimeZone:          "Local",
		ImageExtensions:          append([]string(nil), mediatypes.DefaultImageExtensions...),
		RawExtensions:            append([]string(nil), mediatypes.DefaultRawExtensions...),
		VideoExtensions:          append([]string(nil), mediatypes.DefaultVideoExtensions...),
		Schedule:                 "",
		WatchChanges:             false,
	}
}

// Classifier builds the extension classifier from the configured tables.
func (s *Settings) Classifier() *mediatypes.Classifier {
	return mediatypes.NewClassifier(s.ImageExtensions, s.RawExtensions, s.VideoExtensions)
}

// Location resolves CaptureTimeZone.
func (s *Settings) Location() (*time.Location, error) {
	switch strings.TrimSpace(s.CaptureTimeZone) {
	case "", "Local", "local":
		return time.Local, nil
	case "UTC", "utc":
		return time.UTC, nil
	default:
		return time.LoadLocation(s.CaptureTimeZone)
	}
}

// OutputRoot returns the output root and layout for a record depending on
// whether its capture date is known.
func (s *Settings) OutputRoot(hasCaptureDate bool) (string, PathLayout) {
	if hasCaptureDate {
		return s.OutputDir, s.OutputDirPathType
	}
	return s.UnknownOutputDir, s.UnknownOutputDirPathType
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.DirsToExclude = append([]string(nil), s.DirsToExclude...)
	c.ImageExtensions = append([]string(nil), s.ImageExtensions...)
	c.RawExtensions = append([]string(nil), s.RawExtensions...)
	c.VideoExtensions = append([]string(nil), s.VideoExtensions...)
	return &c
}

// OutputPath resolves a record's stored output-relative path against the
// root selected by hasCaptureDate. It returns "" when rel is empty.
func (s *Settings) OutputPath(hasCaptureDate bool, rel string) string {
	if rel == "" {
		return ""
	}
	root, _ := s.OutputRoot(hasCaptureDate)
	return filepath.Join(root, filepath.FromSlash(rel))
}
