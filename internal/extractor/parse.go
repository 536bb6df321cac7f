package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	invalidDatePattern = regexp.MustCompile(`: +:|0000:00:00 00:00:00`)
	subSecondZulu      = regexp.MustCompile(`^(.+)\.\d{1,2}Z$`)

	hmsDuration     = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})$`)
	secondsDuration = regexp.MustCompile(`^(\d+)(?:\.(\d{1,3}))? s$`)

	coordinateDecorations = strings.NewReplacer("deg ", "", "'", "", `"`, "")
)

// Layouts tried in order after the date part has been normalized to
// yyyy.MM.dd. Layouts without a zone are interpreted in the configured
// capture location.
var captureLayouts = []string{
	"2006.01.02 15:04:05.999999999Z07:00",
	"2006.01.02 15:04:05.999999999-0700",
	"2006.01.02 15:04:05.999999999",
	"2006.01.02 15:04Z07:00",
	"2006.01.02 15:04",
	"2006.01.02",
}

// normalizeCaptureDate rewrites a probe timestamp so that its date part
// uses dots and a two-digit sub-second before a trailing Z is dropped,
// e.g. "2013:02:17 11:05:42.55Z" becomes "2013.02.17 11:05:42Z". It
// returns "" for zeroed or malformed values.
func normalizeCaptureDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || invalidDatePattern.MatchString(s) {
		return ""
	}
	parts := strings.Split(s, " ")
	if len(parts) > 1 {
		parts[0] = strings.ReplaceAll(parts[0], ":", ".")
		if m := subSecondZulu.FindStringSubmatch(parts[1]); m != nil {
			parts[1] = strings.SplitN(m[1], ".", 2)[0] + "Z"
		}
	}
	return strings.Join(parts, " ")
}

// ParseCaptureDate parses a probe timestamp and returns it in UTC. Values
// without an offset are taken to be in loc. ok is false when the value is
// absent, zeroed or unparseable.
func ParseCaptureDate(s string, loc *time.Location) (time.Time, bool) {
	normalized := normalizeCaptureDate(s)
	if normalized == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range captureLayouts {
		if t, err := time.ParseInLocation(layout, normalized, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseCoordinate converts "D M S [dir]" (optionally decorated as
// 47 deg 36' 27.90" N) into decimal degrees. Missing minute or second
// components count as zero. S and W negate the result.
func ParseCoordinate(s string) (float64, bool) {
	fields := strings.Fields(coordinateDecorations.Replace(s))
	if len(fields) == 0 {
		return 0, false
	}

	var dir string
	if last := fields[len(fields)-1]; last == "N" || last == "S" || last == "E" || last == "W" {
		dir = last
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 0 || len(fields) > 3 {
		return 0, false
	}

	var value float64
	for i, divisor := range []float64{1, 60, 3600}[:len(fields)] {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return 0, false
		}
		value += v / divisor
	}
	if dir == "S" || dir == "W" {
		value = -value
	}
	return value, true
}

// ParseAltitude reads the leading number of a value such as
// "12.3 m Above Sea Level". The result is negative when either the value
// or ref mentions "Below Sea Level".
func ParseAltitude(value, ref string) (float64, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, false
	}
	alt, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	const below = "Below Sea Level"
	if strings.Contains(value, below) || strings.Contains(ref, below) {
		alt = -alt
	}
	return alt, true
}

// ParseDuration converts "H:MM:SS" or "S[.fff] s" into milliseconds.
// Any other non-empty value is an ErrUnknownFormat.
func ParseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if m := hmsDuration.FindStringSubmatch(s); m != nil {
		h, _ := strconv.ParseInt(m[1], 10, 64)
		mins, _ := strconv.ParseInt(m[2], 10, 64)
		sec, _ := strconv.ParseInt(m[3], 10, 64)
		return (h*3600 + mins*60 + sec) * 1000, nil
	}
	if m := secondsDuration.FindStringSubmatch(s); m != nil {
		sec, _ := strconv.ParseInt(m[1], 10, 64)
		// The fraction is a decimal fraction: ".5" is 500ms.
		frac := m[2] + strings.Repeat("0", 3-len(m[2]))
		ms, _ := strconv.ParseInt(frac, 10, 64)
		return sec*1000 + ms, nil
	}
	return 0, fmt.Errorf("%w: video duration %q", ErrUnknownFormat, s)
}

var viewRotations = map[string]string{
	"Horizontal (normal)":                 "0",
	"Mirror horizontal":                   "!0",
	"Rotate 180":                          "180",
	"Mirror vertical":                     "!180",
	"Mirror horizontal and rotate 270 CW": "!270",
	"Rotate 90 CW":                        "90",
	"Mirror horizontal and rotate 90 CW":  "!90",
	"Rotate 270 CW":                       "270",
}

// ViewRotation maps an EXIF orientation name to a rotation code. A leading
// "!" marks a mirrored orientation. Unknown names map to "0".
func ViewRotation(orientation string) string {
	if code, ok := viewRotations[orientation]; ok {
		return code
	}
	return "0"
}

// parseDimension reads an integer that may be printed as a float.
func parseDimension(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
