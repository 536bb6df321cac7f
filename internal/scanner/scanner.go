// Package scanner walks the monitored directory and produces the list of
// candidate media files for indexing.
//
// Files are grouped per directory by their name without extension so that
// companion files (a JPG shot alongside its raw or a live-photo MOV) can be
// filtered out before any metadata is read.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"media-compressor/internal/filesystem"
	"media-compressor/internal/logging"
	"media-compressor/internal/mediatypes"
	"media-compressor/internal/metrics"
	"media-compressor/internal/settings"
	"media-compressor/internal/workers"
)

// ScannedFile is a media file found on disk, before its metadata is read.
type ScannedFile struct {
	Path             string          `json:"path"`
	ParentDir        string          `json:"parentDir"`
	Extension        string          `json:"extension"`
	Kind             mediatypes.Kind `json:"kind"`
	IsRaw            bool            `json:"isRaw"`
	CreationTime     time.Time       `json:"creationTime"`
	ModificationTime time.Time       `json:"modificationTime"`
	// Hash is filled lazily, only when the change detector needed it.
	Hash string `json:"hash,omitempty"`

	AlreadyIndexed bool `json:"alreadyIndexed"`
	NeedsReindex   bool `json:"needsReindex"`
}

// NeedsIndexing reports whether the file has to go through extraction.
func (f *ScannedFile) NeedsIndexing() bool {
	return !f.AlreadyIndexed || f.NeedsReindex
}

// Scanner finds media files.
type Scanner struct {
	classifier        *mediatypes.Classifier
	exclusions        []string
	skipSameNameVideo bool
	skipSameNameRaw   bool
	stop              *workers.StopFlag
	log               *logging.Logger
}

// New creates a scanner configured from st. stop may be nil.
func New(st *settings.Settings, stop *workers.StopFlag) *Scanner {
	return &Scanner{
		classifier:        st.Classifier(),
		exclusions:        append([]string(nil), st.DirsToExclude...),
		skipSameNameVideo: st.SkipSameNameVideo,
		skipSameNameRaw:   st.SkipSameNameRaw,
		stop:              stop,
		log:               logging.WithSource("Scanner"),
	}
}

// readDir lists a directory; tests replace it to simulate I/O failures.
var readDir = func(dir string) ([]os.DirEntry, error) {
	return filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())
}

// Scan walks root recursively. Symbolic links to directories are not
// followed. Subdirectories that cannot be read are logged, skipped and
// returned as unreadable: their files are unknown, not gone. Only a
// failure to read root itself is an error.
func (s *Scanner) Scan(root string) (files []*ScannedFile, unreadable []string, err error) {
	start := time.Now()
	defer func() {
		metrics.ScannerDuration.WithLabelValues("full").Observe(time.Since(start).Seconds())
	}()

	s.log.Info("BEGIN:: Scanning DIR: %s", root)
	info, err := filesystem.StatWithRetry(root, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%s is not a directory", root)
	}

	w := &walkState{}
	if err := s.walk(root, true, w); err != nil {
		return nil, nil, err
	}
	if len(w.unreadable) > 0 {
		s.log.Warn("%d directories could not be read; their records are kept", len(w.unreadable))
	}
	s.log.Info("END:: Scanning DIR: %s (%d files)", root, len(w.files))
	return w.files, w.unreadable, nil
}

type walkState struct {
	files      []*ScannedFile
	unreadable []string
}

func (s *Scanner) walk(dir string, isRoot bool, w *walkState) error {
	if s.stop.IsSet() {
		return nil
	}

	if s.isExcluded(dir) {
		// Descendants of an excluded directory are excluded too.
		s.log.Info("Skipping Directory Scan: %s", dir)
		return nil
	}

	entries, err := readDir(dir)
	if err != nil {
		if isRoot {
			return fmt.Errorf("failed to read %s: %w", dir, err)
		}
		s.log.Warn("Failed to read directory %s: %v", dir, err)
		w.unreadable = append(w.unreadable, dir)
		return nil
	}

	var names, subdirs []string
	for _, entry := range entries {
		switch {
		case entry.IsDir():
			subdirs = append(subdirs, entry.Name())
		case entry.Type().IsRegular():
			names = append(names, entry.Name())
		case entry.Type()&os.ModeSymlink != 0:
			if filesystem.IsFile(filepath.Join(dir, entry.Name())) {
				names = append(names, entry.Name())
			}
		}
	}

	w.files = append(w.files, s.scanDir(dir, names)...)

	for _, sub := range subdirs {
		if err := s.walk(filepath.Join(dir, sub), false, w); err != nil {
			return err
		}
	}
	return nil
}

// ScanPaths rescans the directories of the given candidate paths. Every
// file sharing a candidate's name prefix is picked up, so that companion
// files are filtered the same way a full scan would. Candidates with no
// matching file at all are returned as deleted.
func (s *Scanner) ScanPaths(candidates []string) (files []*ScannedFile, deleted []string, err error) {
	start := time.Now()
	defer func() {
		metrics.ScannerDuration.WithLabelValues("targeted").Observe(time.Since(start).Seconds())
	}()

	namesByDir := make(map[string]map[string]bool)
	for _, candidate := range candidates {
		matches, err := matchPrefix(candidate)
		if err != nil {
			return nil, nil, err
		}
		if len(matches) == 0 {
			deleted = append(deleted, candidate)
			continue
		}
		dir := filepath.Dir(candidate)
		if namesByDir[dir] == nil {
			namesByDir[dir] = make(map[string]bool)
		}
		for _, name := range matches {
			namesByDir[dir][name] = true
		}
	}
	metrics.ScannerDeletedPaths.Add(float64(len(deleted)))

	dirs := make([]string, 0, len(namesByDir))
	for dir := range namesByDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		if s.stop.IsSet() {
			break
		}
		names := make([]string, 0, len(namesByDir[dir]))
		for name := range namesByDir[dir] {
			names = append(names, name)
		}
		s.log.Info("BEGIN:: Scanning DIR: %s", dir)
		files = append(files, s.scanDir(dir, names)...)
		s.log.Info("END:: Scanning DIR: %s", dir)
	}
	return files, deleted, nil
}

// matchPrefix returns the names of the regular files next to path whose
// name starts with path's name minus its extension.
func matchPrefix(path string) ([]string, error) {
	dir := filepath.Dir(path)
	prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	entries, err := readDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

func (s *Scanner) isExcluded(dir string) bool {
	for _, excluded := range s.exclusions {
		if excluded != "" && filesystem.IsWithin(excluded, dir) {
			return true
		}
	}
	return false
}

// scanDir classifies the given files of one directory and applies the
// same-name filters.
func (s *Scanner) scanDir(dir string, names []string) []*ScannedFile {
	if s.isExcluded(dir) {
		s.log.Info("Skipping Directory Scan: %s", dir)
		metrics.ScannerFilesTotal.WithLabelValues("excluded").Add(float64(len(names)))
		return nil
	}

	sort.Strings(names)
	groups := make(map[string][]*ScannedFile)
	var order []string

	for _, name := range names {
		path := filepath.Join(dir, name)
		ext := mediatypes.Extension(name)
		kind, isRaw := s.classifier.Classify(ext)
		if kind == mediatypes.KindUnknown {
			s.log.Debug("File Skipped (UNKNOWN_TYPE): %s", path)
			metrics.ScannerFilesTotal.WithLabelValues("unknown_extension").Inc()
			continue
		}

		info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
		if err != nil {
			s.log.Warn("File Skipped (STAT_FAILED): %s: %v", path, err)
			continue
		}
		created, modified := filesystem.FileTimes(info)

		base := mediatypes.BaseName(name)
		if _, ok := groups[base]; !ok {
			order = append(order, base)
		}
		groups[base] = append(groups[base], &ScannedFile{
			Path:             path,
			ParentDir:        dir,
			Extension:        ext,
			Kind:             kind,
			IsRaw:            isRaw,
			CreationTime:     created,
			ModificationTime: modified,
		})
	}

	var out []*ScannedFile
	for _, base := range order {
		group := groups[base]
		for _, f := range group {
			if reason := s.skipReason(f, group); reason != "" {
				s.log.Info("File Skipped (%s): %s", reason, f.Path)
				metrics.ScannerFilesTotal.WithLabelValues("sibling_skipped").Inc()
				continue
			}
			s.log.Debug("File Scanned: %s", f.Path)
			metrics.ScannerFilesTotal.WithLabelValues("accepted").Inc()
			out = append(out, f)
		}
	}
	return out
}

// skipReason applies the same-name filters: a video is dropped when an
// image with the same name exists, and a raw image is dropped when a
// non-raw image with the same name exists. Raw siblings do not count
// against each other, so IMG_1.CR2 next to IMG_1.DNG keeps both rather
// than dropping both.
func (s *Scanner) skipReason(f *ScannedFile, group []*ScannedFile) string {
	if len(group) < 2 {
		return ""
	}

	var hasImage, hasProcessedImage bool
	for _, other := range group {
		if other == f || other.Kind != mediatypes.KindImage {
			continue
		}
		hasImage = true
		if !other.IsRaw {
			hasProcessedImage = true
		}
	}

	switch {
	case s.skipSameNameVideo && f.Kind == mediatypes.KindVideo && hasImage:
		return "SAME_NAME_VIDEO"
	case s.skipSameNameRaw && f.IsRaw && hasProcessedImage:
		return "SAME_NAME_RAW"
	default:
		return ""
	}
}
