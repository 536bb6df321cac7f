package converter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"media-compressor/internal/catalog"
	"media-compressor/internal/mediatypes"
	"media-compressor/internal/settings"
)

// suffixDigits is the width of the collision counter in "base_00001.JPG".
const suffixDigits = 5

// saveDir returns the directory an output for rec is placed in. Records
// without a capture date cannot be sorted by date and always mirror their
// source directory.
func saveDir(st *settings.Settings, rec *catalog.Record) string {
	root, layout := st.OutputRoot(rec.HasCaptureDate())
	if layout == settings.SortByDate && rec.HasCaptureDate() {
		d := rec.CaptureDate.UTC()
		return filepath.Join(root, strconv.Itoa(d.Year()), strconv.Itoa(int(d.Month())), strconv.Itoa(d.Day()))
	}

	rel, err := filepath.Rel(st.MonitoredDir, rec.ParentDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.Base(rec.ParentDir)
	}
	return filepath.Join(root, rel)
}

// baseName is the output file name without extension: the capture time
// as HHMMSS when sorting by date, else the original name.
func baseName(st *settings.Settings, rec *catalog.Record) string {
	_, layout := st.OutputRoot(rec.HasCaptureDate())
	if layout == settings.SortByDate && rec.HasCaptureDate() {
		return rec.CaptureDate.UTC().Format("150405")
	}
	return mediatypes.BaseName(rec.Path)
}

// freeName returns base+ext when that name is free in dir, else the next
// free name in the base_NNNNN+ext sequence. A name is taken when a regular
// file has it or when owned reports it as another record's output, which
// covers outputs deleted from disk but still held in the catalog. owned
// may be nil. The caller must hold the allocation lock until the chosen
// name is reserved on disk.
func freeName(dir, base, ext string, owned func(name string) (bool, error)) (string, error) {
	taken := func(name string) (bool, error) {
		info, err := os.Stat(filepath.Join(dir, name))
		switch {
		case err == nil && info.Mode().IsRegular():
			return true, nil
		case err != nil && !os.IsNotExist(err):
			return false, fmt.Errorf("failed to stat %s: %w", filepath.Join(dir, name), err)
		case owned == nil:
			return false, nil
		}
		return owned(name)
	}

	ideal := base + ext
	if ok, err := taken(ideal); err != nil || !ok {
		return ideal, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sequence := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `(?:_(\d{` + strconv.Itoa(suffixDigits) + `}))?` + regexp.QuoteMeta(ext) + `$`)

	var matches []string
	for _, entry := range entries {
		if !entry.IsDir() && sequence.MatchString(entry.Name()) {
			matches = append(matches, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	// The counter only starts once base+ext and one numbered file exist.
	next := 1
	if len(matches) > 1 {
		if m := sequence.FindStringSubmatch(matches[0]); m != nil && m[1] != "" {
			n, _ := strconv.Atoi(m[1])
			next = n + 1
		}
	}
	for {
		name := fmt.Sprintf("%s_%0*d%s", base, suffixDigits, next, ext)
		ok, err := taken(name)
		if err != nil {
			return "", err
		}
		if !ok {
			return name, nil
		}
		next++
	}
}
