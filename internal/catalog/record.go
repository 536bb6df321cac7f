package catalog

import (
	"database/sql"
	"path/filepath"
	"time"

	"media-compressor/internal/mediatypes"
)

// Record is the durable metadata of one original file. Nullable columns are
// pointers, except the hash and output path columns where "" means NULL.
type Record struct {
	Path             string          `json:"path"`
	UUID             string          `json:"uuid"`
	ParentDir        string          `json:"parentDir"`
	Extension        string          `json:"extension"`
	Kind             mediatypes.Kind `json:"kind"`
	IsRaw            bool            `json:"isRaw"`
	MimeType         string          `json:"mimeType"`
	OriginalSize     int64           `json:"originalSize"`
	CreationTime     time.Time       `json:"creationTime"`
	ModificationTime time.Time       `json:"modificationTime"`
	OriginalHash     string          `json:"originalHash"`
	// ConvertedHash is empty until a conversion has fully succeeded.
	ConvertedHash string `json:"convertedHash,omitempty"`
	// SettingsHash is the digest of the conversion parameters used for
	// ConvertedHash.
	SettingsHash string    `json:"settingsHash,omitempty"`
	IndexTime    time.Time `json:"indexTime"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	// CaptureDate is nil for unknown-date files.
	CaptureDate      *time.Time `json:"captureDate,omitempty"`
	CameraMake       string     `json:"cameraMake,omitempty"`
	CameraModel      string     `json:"cameraModel,omitempty"`
	LensModel        string     `json:"lensModel,omitempty"`
	GPSLatitude      *float64   `json:"gpsLatitude,omitempty"`
	GPSLongitude     *float64   `json:"gpsLongitude,omitempty"`
	GPSAltitude      *float64   `json:"gpsAltitude,omitempty"`
	ViewRotation     string     `json:"viewRotation"`
	ImageOrientation string     `json:"imageOrientation,omitempty"`
	VideoDurationMS  *int64     `json:"videoDurationMs,omitempty"`
	VideoRotation    string     `json:"videoRotation,omitempty"`
	// OutputRelPath is relative to the output root selected by HasCaptureDate.
	OutputRelPath string `json:"outputRelPath,omitempty"`
}

// HasCaptureDate reports whether the record routes to the dated output tree.
func (r *Record) HasCaptureDate() bool {
	return r.CaptureDate != nil
}

// Name returns the file name of the original.
func (r *Record) Name() string {
	return filepath.Base(r.Path)
}

// Clone returns a copy that shares no pointers with r.
func (r *Record) Clone() *Record {
	c := *r
	if r.CaptureDate != nil {
		t := *r.CaptureDate
		c.CaptureDate = &t
	}
	c.GPSLatitude = clonePtr(r.GPSLatitude)
	c.GPSLongitude = clonePtr(r.GPSLongitude)
	c.GPSAltitude = clonePtr(r.GPSAltitude)
	c.VideoDurationMS = clonePtr(r.VideoDurationMS)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

const recordColumns = `path, uuid, parent_dir, extension, kind, is_raw, mime_type, original_size,
	creation_time, modification_time, original_hash, converted_hash, settings_hash, index_time,
	width, height, capture_date, camera_make, camera_model, lens_model,
	gps_latitude, gps_longitude, gps_altitude, view_rotation, image_orientation,
	video_duration_ms, video_rotation, output_rel_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r                                   Record
		kind                                string
		isRaw                               int
		created, modified, indexed          int64
		convertedHash, settingsHash, outRel sql.NullString
		captureDate, durationMS             sql.NullInt64
		lat, lon, alt                       sql.NullFloat64
	)

	err := row.Scan(
		&r.Path, &r.UUID, &r.ParentDir, &r.Extension, &kind, &isRaw, &r.MimeType, &r.OriginalSize,
		&created, &modified, &r.OriginalHash, &convertedHash, &settingsHash, &indexed,
		&r.Width, &r.Height, &captureDate, &r.CameraMake, &r.CameraModel, &r.LensModel,
		&lat, &lon, &alt, &r.ViewRotation, &r.ImageOrientation,
		&durationMS, &r.VideoRotation, &outRel,
	)
	if err != nil {
		return nil, err
	}

	r.Kind = mediatypes.ParseKind(kind)
	r.IsRaw = isRaw != 0
	r.CreationTime = fromUnixNano(created)
	r.ModificationTime = fromUnixNano(modified)
	r.IndexTime = fromUnixNano(indexed)
	r.ConvertedHash = convertedHash.String
	r.SettingsHash = settingsHash.String
	r.OutputRelPath = outRel.String
	if captureDate.Valid {
		t := fromUnixNano(captureDate.Int64)
		r.CaptureDate = &t
	}
	if durationMS.Valid {
		r.VideoDurationMS = &durationMS.Int64
	}
	if lat.Valid && lon.Valid {
		r.GPSLatitude = &lat.Float64
		r.GPSLongitude = &lon.Float64
	}
	if alt.Valid {
		r.GPSAltitude = &alt.Float64
	}
	return &r, nil
}

func (r *Record) args() []any {
	var captureDate sql.NullInt64
	if r.CaptureDate != nil {
		captureDate = sql.NullInt64{Int64: toUnixNano(*r.CaptureDate), Valid: true}
	}
	var durationMS sql.NullInt64
	if r.VideoDurationMS != nil {
		durationMS = sql.NullInt64{Int64: *r.VideoDurationMS, Valid: true}
	}

	isRaw := 0
	if r.IsRaw {
		isRaw = 1
	}

	return []any{
		r.Path, r.UUID, r.ParentDir, r.Extension, string(r.Kind), isRaw, r.MimeType, r.OriginalSize,
		toUnixNano(r.CreationTime), toUnixNano(r.ModificationTime), r.OriginalHash,
		nullString(r.ConvertedHash), nullString(r.SettingsHash), toUnixNano(r.IndexTime),
		r.Width, r.Height, captureDate, r.CameraMake, r.CameraModel, r.LensModel,
		nullFloat(r.GPSLatitude), nullFloat(r.GPSLongitude), nullFloat(r.GPSAltitude),
		r.ViewRotation, r.ImageOrientation, durationMS, r.VideoRotation, nullString(r.OutputRelPath),
	}
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
