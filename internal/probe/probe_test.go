package probe

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-compressor/internal/transcoder"
)

type fakeRunner struct {
	stdout []byte
	err    error
	last   transcoder.Command
}

func (f *fakeRunner) Run(_ context.Context, cmd transcoder.Command) ([]byte, error) {
	f.last = cmd
	return f.stdout, f.err
}

func TestFlattenKey(t *testing.T) {
	tests := map[string]string{
		"EXIF:Make":                 "Make",
		"QuickTime:MediaCreateDate": "MediaCreateDate",
		"SourceFile":                "SourceFile",
		"Composite:GPS:Latitude":    "Latitude",
	}
	for in, want := range tests {
		assert.Equal(t, want, FlattenKey(in), in)
	}
}

func TestTagsGet(t *testing.T) {
	tags := Tags{"Model": "EOS R5", "LensType": ""}

	assert.Equal(t, "EOS R5", tags.Get("CameraModelName", "Model"))
	assert.Equal(t, "", tags.Get("LensType", "LensModel"), "first present key wins even when empty")
	assert.Equal(t, "", tags.Get("Missing"))
}

func TestParseJSON(t *testing.T) {
	data := []byte(`[{
		"SourceFile": "/p/IMG_1.JPG",
		"File:FileType": "JPEG",
		"EXIF:ImageWidth": 4000,
		"File:ImageWidth": 4032,
		"EXIF:ExposureTime": "1/60",
		"XMP:Subject": ["a", "b", 3],
		"EXIF:GPSLatitude": "47 deg 36' 27.90\" N",
		"Composite:Rotation": 90,
		"EXIF:Flag": true,
		"EXIF:Nothing": null,
		"EXIF:FNumber": 2.8
	}]`)

	tags, err := ParseJSON(data)
	require.NoError(t, err)

	assert.Equal(t, "/p/IMG_1.JPG", tags["SourceFile"])
	assert.Equal(t, "JPEG", tags["FileType"])
	assert.Equal(t, "4032", tags["ImageWidth"], "later duplicate key wins")
	assert.Equal(t, "1/60", tags["ExposureTime"])
	assert.Equal(t, "a, b, 3", tags["Subject"])
	assert.Equal(t, `47 deg 36' 27.90" N`, tags["GPSLatitude"])
	assert.Equal(t, "90", tags["Rotation"])
	assert.Equal(t, "true", tags["Flag"])
	assert.Equal(t, "", tags["Nothing"])
	assert.Equal(t, "2.8", tags["FNumber"])
}

func TestParseJSON_Invalid(t *testing.T) {
	for name, data := range map[string]string{
		"empty array": `[]`,
		"not array":   `{"a": 1}`,
		"truncated":   `[{"a": `,
		"garbage":     `Error: File not found`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJSON([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestExiftoolProbe(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(`[{"SourceFile":"/p/a.JPG","EXIF:Make":"Canon"}]`)}
	e := NewExiftool("/usr/bin/exiftool", runner)

	tags, err := e.Probe(context.Background(), "/p/a.JPG")
	require.NoError(t, err)
	assert.Equal(t, "Canon", tags["Make"])
	assert.Equal(t, []string{"-j", "-G", "/p/a.JPG"}, runner.last.Args)
	assert.Equal(t, "/usr/bin/exiftool", runner.last.Path)
}

func TestExiftoolProbe_ErrorTagWithNonZeroExit(t *testing.T) {
	runner := &fakeRunner{
		stdout: []byte(`[{"SourceFile":"/p/a.JPG","ExifTool:Error":"File is empty"}]`),
		err:    &transcoder.ToolError{Message: "exiftool failed", Err: errors.New("exit status 1")},
	}
	e := NewExiftool("exiftool", runner)

	tags, err := e.Probe(context.Background(), "/p/a.JPG")
	require.NoError(t, err)
	assert.Equal(t, "File is empty", tags["Error"])
}

func TestExiftoolProbe_NoOutput(t *testing.T) {
	toolErr := &transcoder.ToolError{Message: "exiftool failed", Stderr: "Error: File not found", Err: errors.New("exit status 1")}
	e := NewExiftool("exiftool", &fakeRunner{err: toolErr})

	_, err := e.Probe(context.Background(), "/p/missing.JPG")
	var te *transcoder.ToolError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Stderr, "File not found")

	_, err = NewExiftool("exiftool", &fakeRunner{}).Probe(context.Background(), "/p/a.JPG")
	require.ErrorAs(t, err, &te)
}

func TestOpenSession_WrapsPlainProbers(t *testing.T) {
	s, err := OpenSession(context.Background(), NewNative())
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestExiftoolSession(t *testing.T) {
	path, err := exec.LookPath("exiftool")
	if err != nil {
		t.Skip("exiftool not available")
	}

	dir := t.TempDir()
	img := writePNG(t, dir, "a.png", 40, 30)

	s, err := OpenSession(context.Background(), NewExiftool(path, transcoder.NewExecRunner()))
	require.NoError(t, err)
	defer s.Close()

	for range 2 {
		tags, err := s.Probe(context.Background(), img)
		require.NoError(t, err)
		assert.Equal(t, "PNG", tags["FileType"])
		assert.Equal(t, "40", tags["ImageWidth"])
	}

	require.NoError(t, s.Close())
	_, err = s.Probe(context.Background(), img)
	assert.Error(t, err, "probing a closed session should fail")
}

// =============================================================================
// Native prober
// =============================================================================

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
	return path
}

func TestNativeProbe_PNG(t *testing.T) {
	path := writePNG(t, t.TempDir(), "a.png", 64, 48)

	tags, err := NewNative().Probe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "PNG", tags["FileType"])
	assert.Equal(t, "image/png", tags["MIMEType"])
	assert.Equal(t, "64", tags["ImageWidth"])
	assert.Equal(t, "48", tags["ImageHeight"])
	assert.Empty(t, tags["Error"])
}

func TestNativeProbe_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.JPG")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	tags, err := NewNative().Probe(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "File is empty", tags["Error"])
}

func TestNativeProbe_Unrecognized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.MOV")
	require.NoError(t, os.WriteFile(path, []byte("not really a movie"), 0o644))

	tags, err := NewNative().Probe(context.Background(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, tags["Warning"])
	assert.Empty(t, tags["Error"])
}

func TestNativeProbe_Missing(t *testing.T) {
	_, err := NewNative().Probe(context.Background(), filepath.Join(t.TempDir(), "nope.JPG"))
	assert.Error(t, err)
}

func TestFormatDMS(t *testing.T) {
	assert.Equal(t, `47 deg 36' 27.90" N`, formatDMS(47.60775, "N", "S"))
	assert.Equal(t, `122 deg 19' 48.00" W`, formatDMS(-122.33, "E", "W"))
	assert.Equal(t, `10 deg 0' 0.00" E`, formatDMS(9.9999999, "E", "W"))
}
