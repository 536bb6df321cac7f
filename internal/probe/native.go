package probe

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"media-compressor/internal/filesystem"
)

// Native probes files in-process with goexif and the image header
// decoders. It understands still images, including TIFF-based raw formats,
// but not video containers; it emits the same keys exiftool would so the
// extractor treats both alike.
type Native struct{}

// NewNative creates a native prober.
func NewNative() *Native {
	return &Native{}
}

var orientationNames = map[int]string{
	1: "Horizontal (normal)",
	2: "Mirror horizontal",
	3: "Rotate 180",
	4: "Mirror vertical",
	5: "Mirror horizontal and rotate 270 CW",
	6: "Rotate 90 CW",
	7: "Mirror horizontal and rotate 90 CW",
	8: "Rotate 270 CW",
}

// Probe reads the file header and EXIF block.
func (n *Native) Probe(ctx context.Context, path string) (Tags, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	tags := Tags{"SourceFile": path}
	if info.Size() == 0 {
		tags["Error"] = "File is empty"
		return tags, nil
	}

	if cfg, format, err := image.DecodeConfig(f); err == nil {
		tags["FileType"] = strings.ToUpper(format)
		tags["MIMEType"] = "image/" + format
		tags["ImageWidth"] = strconv.Itoa(cfg.Width)
		tags["ImageHeight"] = strconv.Itoa(cfg.Height)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", path, err)
	}
	x, err := exif.Decode(f)
	if err != nil {
		if _, ok := tags["FileType"]; !ok {
			tags["Warning"] = "No header or EXIF data found"
		}
		return tags, nil
	}

	appendEXIF(tags, x)
	return tags, nil
}

func appendEXIF(tags Tags, x *exif.Exif) {
	for key, field := range map[string]exif.FieldName{
		"Make":             exif.Make,
		"Model":            exif.Model,
		"LensModel":        exif.LensModel,
		"DateTimeOriginal": exif.DateTimeOriginal,
	} {
		if v := exifString(x, field); v != "" {
			tags[key] = v
		}
	}

	if _, ok := tags["ImageWidth"]; !ok {
		if w, ok := exifInt(x, exif.ImageWidth); ok {
			tags["ImageWidth"] = strconv.Itoa(w)
		}
		if h, ok := exifInt(x, exif.ImageLength); ok {
			tags["ImageHeight"] = strconv.Itoa(h)
		}
	}
	if w, ok := exifInt(x, exif.PixelXDimension); ok {
		tags["ExifImageWidth"] = strconv.Itoa(w)
	}
	if h, ok := exifInt(x, exif.PixelYDimension); ok {
		tags["ExifImageHeight"] = strconv.Itoa(h)
	}

	if o, ok := exifInt(x, exif.Orientation); ok {
		if name, known := orientationNames[o]; known {
			tags["Orientation"] = name
		}
	}

	if lat, lon, err := x.LatLong(); err == nil && !math.IsNaN(lat) && !math.IsNaN(lon) {
		tags["GPSLatitude"] = formatDMS(lat, "N", "S")
		tags["GPSLongitude"] = formatDMS(lon, "E", "W")
	}

	if alt, err := x.Get(exif.GPSAltitude); err == nil {
		if num, den, err := alt.Rat2(0); err == nil && den != 0 {
			ref := "Above Sea Level"
			if r, ok := exifInt(x, exif.GPSAltitudeRef); ok && r == 1 {
				ref = "Below Sea Level"
			}
			tags["GPSAltitude"] = fmt.Sprintf("%.1f m", float64(num)/float64(den))
			tags["GPSAltitudeRef"] = ref
		}
	}
}

// formatDMS renders a decimal coordinate the way exiftool prints it,
// e.g. 47 deg 36' 27.90" N.
func formatDMS(v float64, positive, negative string) string {
	dir := positive
	if v < 0 {
		dir = negative
		v = -v
	}
	deg := math.Floor(v)
	minFloat := (v - deg) * 60
	minutes := math.Floor(minFloat)
	seconds := (minFloat - minutes) * 60
	if seconds >= 59.995 {
		seconds = 0
		minutes++
	}
	if minutes >= 60 {
		minutes = 0
		deg++
	}
	return fmt.Sprintf("%d deg %d' %.2f\" %s", int(deg), int(minutes), seconds, dir)
}

func exifString(x *exif.Exif, field exif.FieldName) string {
	tag, err := x.Get(field)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func exifInt(x *exif.Exif, field exif.FieldName) (int, bool) {
	tag, err := x.Get(field)
	if err != nil {
		return 0, false
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0, false
	}
	return v, true
}
