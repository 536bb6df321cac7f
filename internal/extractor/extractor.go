// Package extractor turns a scanned file into a catalog record by probing
// its metadata and normalizing the result.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"media-compressor/internal/catalog"
	"media-compressor/internal/filesystem"
	"media-compressor/internal/logging"
	"media-compressor/internal/mediatypes"
	"media-compressor/internal/metrics"
	"media-compressor/internal/probe"
	"media-compressor/internal/scanner"
)

var (
	// ErrSkippableFile means the probe reported the file as empty, corrupt
	// or not media at all. The file is left out of the catalog.
	ErrSkippableFile = errors.New("skippable file")

	// ErrUnknownFormat means a metadata value did not match any format the
	// extractor understands.
	ErrUnknownFormat = errors.New("unknown metadata format")
)

// Extractor builds records. It is bound to one prober and logger, so each
// indexing worker creates its own.
type Extractor struct {
	prober probe.Prober
	loc    *time.Location
	log    *logging.Logger
}

// New creates an extractor. loc is applied to capture timestamps that
// carry no zone offset; nil means time.Local.
func New(prober probe.Prober, loc *time.Location, log *logging.Logger) *Extractor {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logging.WithSource("Extractor")
	}
	return &Extractor{prober: prober, loc: loc, log: log}
}

// CreateRecord probes sf and returns its record. When existing is not nil
// it is updated in place of a new record, keeping its UUID and output
// path. Rejected files return an error wrapping ErrSkippableFile.
func (e *Extractor) CreateRecord(ctx context.Context, indexTime time.Time, sf *scanner.ScannedFile, existing *catalog.Record) (*catalog.Record, error) {
	start := time.Now()
	defer func() {
		metrics.ExtractionDuration.WithLabelValues(string(sf.Kind)).Observe(time.Since(start).Seconds())
	}()

	tags, err := e.prober.Probe(ctx, sf.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", sf.Path, err)
	}
	if err := e.checkUsable(sf.Path, tags); err != nil {
		return nil, err
	}

	info, err := filesystem.StatWithRetry(sf.Path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", sf.Path, err)
	}

	hash := sf.Hash
	if hash == "" {
		if hash, err = filesystem.HashFile(sf.Path); err != nil {
			return nil, err
		}
	}

	rec := &catalog.Record{}
	if existing != nil {
		rec = existing.Clone()
	}
	hadCaptureDate := existing != nil && existing.HasCaptureDate()

	rec.Path = sf.Path
	rec.ParentDir = sf.ParentDir
	rec.Extension = sf.Extension
	rec.Kind = sf.Kind
	rec.IsRaw = sf.IsRaw
	rec.MimeType = mimeType(sf, tags)
	rec.OriginalSize = info.Size()
	rec.CreationTime = sf.CreationTime
	rec.ModificationTime = sf.ModificationTime
	rec.OriginalHash = hash
	rec.ConvertedHash = ""
	rec.SettingsHash = ""
	rec.IndexTime = indexTime

	rec.Width, rec.Height = e.dimensions(sf.Path, tags)
	rec.CaptureDate = e.captureDate(sf, tags)
	rec.CameraMake = tags.Get("Make")
	rec.CameraModel = tags.Get("CameraModelName", "Model")
	rec.LensModel = tags.Get("LensModel", "LensType", "LensInfo")

	rec.GPSLatitude, rec.GPSLongitude, rec.GPSAltitude = gpsInfo(tags)

	rec.ImageOrientation = tags.Get("Orientation", "CameraOrientation")
	rec.ViewRotation = "0"
	if sf.Kind != mediatypes.KindVideo {
		rec.ViewRotation = ViewRotation(rec.ImageOrientation)
	}

	rec.VideoDurationMS = nil
	if d := tags.Get("Duration", "MediaDuration", "TrackDuration"); d != "" {
		ms, err := ParseDuration(d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sf.Path, err)
		}
		rec.VideoDurationMS = &ms
	}
	rec.VideoRotation = tags.Get("Rotation")

	// An output path chosen for the dated tree is meaningless in the
	// unknown-date tree and vice versa.
	if existing != nil && hadCaptureDate != rec.HasCaptureDate() {
		rec.OutputRelPath = ""
	}
	return rec, nil
}

func (e *Extractor) checkUsable(path string, tags probe.Tags) error {
	if msg := tags.Get("Error"); msg != "" {
		e.log.Error("Error processing file %s: %s", path, msg)
		if msg == "File is empty" || msg == "File format error" || strings.Contains(msg, "file is binary") {
			return fmt.Errorf("%w: %s: %s", ErrSkippableFile, path, msg)
		}
	}
	if tags.Get("FileType") == "TXT" {
		e.log.Error("Possibly corrupt file %s: probe identified it as text", path)
		return fmt.Errorf("%w: %s: identified as text", ErrSkippableFile, path)
	}
	return nil
}

func mimeType(sf *scanner.ScannedFile, tags probe.Tags) string {
	if m := tags.Get("MIMEType"); m != "" {
		return m
	}
	return mediatypes.GuessMimeType(sf.Extension)
}

// dimensions prefers the raw crop rectangle over the stored image size.
func (e *Extractor) dimensions(path string, tags probe.Tags) (int, int) {
	var width, height string
	if crop := strings.Fields(tags.Get("DefaultCropSize")); len(crop) == 2 {
		width, height = crop[0], crop[1]
	} else {
		width = tags.Get("ImageWidth", "ExifImageWidth")
		height = tags.Get("ImageHeight", "ExifImageHeight")
	}

	w, okW := parseDimension(width)
	h, okH := parseDimension(height)
	if !okW || !okH {
		e.log.Warn("No usable dimensions for %s (width %q, height %q)", path, width, height)
	}
	return w, h
}

func (e *Extractor) captureDate(sf *scanner.ScannedFile, tags probe.Tags) *time.Time {
	var raw string
	switch sf.Kind {
	case mediatypes.KindImage:
		raw = tags.Get("DateTimeOriginal")
	case mediatypes.KindVideo:
		raw = tags.Get("MediaCreateDate", "TrackCreateDate")
	}
	if raw == "" {
		return nil
	}

	t, ok := ParseCaptureDate(raw, e.loc)
	if !ok {
		e.log.Debug("Ignoring capture date %q of %s", raw, sf.Path)
		return nil
	}
	return &t
}

// gpsInfo keeps latitude and longitude only when both parse.
func gpsInfo(tags probe.Tags) (lat, lon, alt *float64) {
	if v, ok := ParseAltitude(tags.Get("GPSAltitude"), tags.Get("GPSAltitudeRef")); ok {
		alt = &v
	}
	la, okLat := ParseCoordinate(tags.Get("GPSLatitude"))
	lo, okLon := ParseCoordinate(tags.Get("GPSLongitude"))
	if okLat && okLon {
		lat, lon = &la, &lo
	}
	return lat, lon, alt
}
