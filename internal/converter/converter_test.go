package converter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"media-compressor/internal/catalog"
	"media-compressor/internal/mediatypes"
	"media-compressor/internal/settings"
	"media-compressor/internal/transcoder"
	"media-compressor/internal/workers"
)

// fakeRunner writes the encoder destination like the real tools would and
// records every command.
type fakeRunner struct {
	mu       sync.Mutex
	commands []transcoder.Command
	fail     map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{fail: map[string]bool{}}
}

func (f *fakeRunner) Run(_ context.Context, cmd transcoder.Command) ([]byte, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()

	if cmd.Tool == transcoder.ToolExiftool {
		return nil, nil
	}
	src := cmd.Args[slices.Index(cmd.Args, "-i")+1]
	if cmd.Tool == transcoder.ToolMagick {
		src = cmd.Args[len(cmd.Args)-2]
	}
	if f.fail[filepath.Base(src)] {
		return nil, &transcoder.ToolError{Message: "boom", CommandLine: cmd.CommandLine(), Stderr: "encoder exploded"}
	}
	dst := cmd.Args[len(cmd.Args)-1]
	return nil, os.WriteFile(dst, []byte("converted "+strings.Join(cmd.Args, " ")), 0o644)
}

func (f *fakeRunner) count(tool string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c.Tool == tool {
			n++
		}
	}
	return n
}

type testEnv struct {
	settings *settings.Settings
	catalog  *catalog.Catalog
	runner   *fakeRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	st := settings.Defaults()
	st.MonitoredDir = filepath.Join(root, "monitored")
	st.OutputDir = filepath.Join(root, "output")
	st.UnknownOutputDir = filepath.Join(root, "unknown")
	st.ConversionWorkers = 2
	for _, dir := range []string{st.MonitoredDir, st.OutputDir, st.UnknownOutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
	}

	cat, err := catalog.Open(context.Background(), filepath.Join(root, catalog.FileName))
	if err != nil {
		t.Fatalf("Open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	return &testEnv{settings: &st, catalog: cat, runner: newFakeRunner()}
}

func (e *testEnv) engine(stop *workers.StopFlag) *Engine {
	return New(e.catalog, e.settings, e.runner, stop)
}

// add writes an original file and catalogs it. A zero captured time means
// the capture date is unknown.
func (e *testEnv) add(t *testing.T, rel string, kind mediatypes.Kind, captured time.Time) *catalog.Record {
	t.Helper()
	path := filepath.Join(e.settings.MonitoredDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := "original " + rel + strings.Repeat(".", 100)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rec := &catalog.Record{
		Path:         path,
		ParentDir:    filepath.Dir(path),
		Extension:    mediatypes.Extension(path),
		Kind:         kind,
		OriginalSize: int64(len(content)),
		Width:        4000,
		Height:       3000,
		ViewRotation: "0",
	}
	if !captured.IsZero() {
		rec.CaptureDate = &captured
	}
	if err := e.catalog.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return rec
}

func (e *testEnv) get(t *testing.T, path string) *catalog.Record {
	t.Helper()
	rec, err := e.catalog.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get(%s): %v", path, err)
	}
	return rec
}

func (e *testEnv) run(t *testing.T, paths []string) Result {
	t.Helper()
	res, err := e.engine(nil).SaveProcessedFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("SaveProcessedFiles: %v", err)
	}
	return res
}

var captured = time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)

// =============================================================================
// Output path allocation
// =============================================================================

func TestFreeName_Sequence(t *testing.T) {
	dir := t.TempDir()
	want := []string{"100000.JPG", "100000_00001.JPG", "100000_00002.JPG", "100000_00003.JPG"}

	for _, w := range want {
		got, err := freeName(dir, "100000", ".JPG", nil)
		if err != nil {
			t.Fatalf("freeName: %v", err)
		}
		if got != w {
			t.Fatalf("freeName = %q, want %q", got, w)
		}
		if err := os.WriteFile(filepath.Join(dir, got), nil, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func TestFreeName_IgnoresUnrelatedNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"100000.JPG", "1000001.JPG", "100000_00009.MP4", "100000_abc.JPG", "100000_0000007.JPG"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	got, err := freeName(dir, "100000", ".JPG", nil)
	if err != nil {
		t.Fatalf("freeName: %v", err)
	}
	if got != "100000_00001.JPG" {
		t.Errorf("freeName = %q, want 100000_00001.JPG", got)
	}
}

func TestFreeName_BaseWithRegexpCharacters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a+b (1).JPG", "a+b (1)_00004.JPG"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	got, err := freeName(dir, "a+b (1)", ".JPG", nil)
	if err != nil {
		t.Fatalf("freeName: %v", err)
	}
	if got != "a+b (1)_00005.JPG" {
		t.Errorf("freeName = %q, want a+b (1)_00005.JPG", got)
	}
}

func TestFreeName_SkipsNamesOwnedElsewhere(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "100000_00002.JPG"), nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	owned := map[string]bool{"100000.JPG": true, "100000_00001.JPG": true, "100000_00003.JPG": true}

	got, err := freeName(dir, "100000", ".JPG", func(name string) (bool, error) { return owned[name], nil })
	if err != nil {
		t.Fatalf("freeName: %v", err)
	}
	if got != "100000_00004.JPG" {
		t.Errorf("freeName = %q, want 100000_00004.JPG", got)
	}
}

func TestFreeName_OwnershipError(t *testing.T) {
	boom := errors.New("catalog down")
	_, err := freeName(t.TempDir(), "100000", ".JPG", func(string) (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Errorf("freeName error = %v, want %v", err, boom)
	}
}

func TestSaveDir(t *testing.T) {
	st := settings.Defaults()
	st.MonitoredDir = "/media/in"
	st.OutputDir = "/media/out"
	st.UnknownOutputDir = "/media/unknown"
	date := time.Date(2023, 12, 1, 8, 9, 10, 0, time.UTC)

	tests := []struct {
		name      string
		dated     settings.PathLayout
		unknown   settings.PathLayout
		parent    string
		date      *time.Time
		wantDir   string
		wantBase  string
		sourceExt string
	}{
		{"dated by date", settings.SortByDate, settings.OriginalPaths, "/media/in/a/b", &date, "/media/out/2023/12/1", "080910", ".jpg"},
		{"dated mirrored", settings.OriginalPaths, settings.OriginalPaths, "/media/in/a/b", &date, "/media/out/a/b", "IMG_1", ".jpg"},
		{"unknown mirrored", settings.SortByDate, settings.OriginalPaths, "/media/in/a", nil, "/media/unknown/a", "IMG_1", ".jpg"},
		{"unknown by date falls back", settings.SortByDate, settings.SortByDate, "/media/in/a", nil, "/media/unknown/a", "IMG_1", ".jpg"},
		{"monitored root", settings.OriginalPaths, settings.OriginalPaths, "/media/in", &date, "/media/out", "IMG_1", ".jpg"},
		{"outside monitored", settings.OriginalPaths, settings.OriginalPaths, "/elsewhere/x", nil, "/media/unknown/x", "IMG_1", ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st.OutputDirPathType = tt.dated
			st.UnknownOutputDirPathType = tt.unknown
			rec := &catalog.Record{
				Path:        filepath.Join(tt.parent, "IMG_1"+tt.sourceExt),
				ParentDir:   tt.parent,
				CaptureDate: tt.date,
			}
			if got := saveDir(&st, rec); got != filepath.FromSlash(tt.wantDir) {
				t.Errorf("saveDir = %q, want %q", got, tt.wantDir)
			}
			if got := baseName(&st, rec); got != tt.wantBase {
				t.Errorf("baseName = %q, want %q", got, tt.wantBase)
			}
		})
	}
}

// =============================================================================
// Settings hash
// =============================================================================

func TestSettingsHash(t *testing.T) {
	p := transcoder.Params{ImageQuality: 75, ImageMaxDimension: 1920, VideoMaxDimension: 1920, VideoCRF: 28, NVENCPreset: "fast", AudioBitrate: 128}

	image := SettingsHash(mediatypes.KindImage, p, false)
	if image == "" || image != SettingsHash(mediatypes.KindImage, p, false) {
		t.Fatalf("image hash not stable: %q", image)
	}
	if image != SettingsHash(mediatypes.KindImage, p, true) {
		t.Error("image hash should not depend on the device")
	}

	changed := p
	changed.ImageQuality = 80
	if SettingsHash(mediatypes.KindImage, changed, false) == image {
		t.Error("image hash should change with quality")
	}
	changed = p
	changed.VideoCRF = 20
	if SettingsHash(mediatypes.KindImage, changed, false) != image {
		t.Error("image hash should ignore video parameters")
	}

	cpu := SettingsHash(mediatypes.KindVideo, p, false)
	gpu := SettingsHash(mediatypes.KindVideo, p, true)
	if cpu == gpu {
		t.Error("cpu and gpu video hashes should differ")
	}
	if SettingsHash(mediatypes.KindVideo, changed, false) == cpu {
		t.Error("video hash should change with crf")
	}
	if SettingsHash(mediatypes.KindVideo, changed, true) != gpu {
		t.Error("gpu video hash should ignore crf")
	}
	if SettingsHash(mediatypes.KindUnknown, p, false) != "" {
		t.Error("unknown kind should have no hash")
	}
}

// =============================================================================
// SaveProcessedFiles
// =============================================================================

func TestSaveProcessedFiles_ConvertsAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	img := env.add(t, "trip/IMG_1.jpg", mediatypes.KindImage, captured)
	vid := env.add(t, "trip/VID_1.mov", mediatypes.KindVideo, captured.Add(time.Minute))

	res := env.run(t, nil)
	if res.Converted != 2 || res.Failed != 0 {
		t.Fatalf("first run = %+v, want 2 converted", res)
	}

	gotImg := env.get(t, img.Path)
	if gotImg.OutputRelPath != "2024/5/3/100000.JPG" {
		t.Errorf("image OutputRelPath = %q", gotImg.OutputRelPath)
	}
	if gotImg.ConvertedHash == "" || gotImg.SettingsHash == "" {
		t.Errorf("image hashes not stored: %+v", gotImg)
	}
	gotVid := env.get(t, vid.Path)
	if gotVid.OutputRelPath != "2024/5/3/100100.MP4" {
		t.Errorf("video OutputRelPath = %q", gotVid.OutputRelPath)
	}
	for _, rel := range []string{gotImg.OutputRelPath, gotVid.OutputRelPath} {
		if _, err := os.Stat(env.settings.OutputPath(true, rel)); err != nil {
			t.Errorf("output %s missing: %v", rel, err)
		}
	}
	if n := env.runner.count(transcoder.ToolExiftool); n != 2 {
		t.Errorf("metadata copies = %d, want 2", n)
	}

	commands := len(env.runner.commands)
	res = env.run(t, nil)
	if res.Converted != 0 || res.Skipped != 2 {
		t.Errorf("second run = %+v, want 2 skipped", res)
	}
	if len(env.runner.commands) != commands {
		t.Errorf("second run invoked %d tools", len(env.runner.commands)-commands)
	}
	if again := env.get(t, img.Path); again.ConvertedHash != gotImg.ConvertedHash || again.OutputRelPath != gotImg.OutputRelPath {
		t.Errorf("second run changed the record: %+v", again)
	}
}

func TestSaveProcessedFiles_CollisionSafeNaming(t *testing.T) {
	env := newTestEnv(t)
	env.settings.ConversionWorkers = 3
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		env.add(t, name, mediatypes.KindImage, captured)
	}

	res := env.run(t, nil)
	if res.Converted != 3 {
		t.Fatalf("run = %+v, want 3 converted", res)
	}

	records, err := env.catalog.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var rels []string
	for _, rec := range records {
		rels = append(rels, rec.OutputRelPath)
	}
	slices.Sort(rels)
	want := []string{"2024/5/3/100000.JPG", "2024/5/3/100000_00001.JPG", "2024/5/3/100000_00002.JPG"}
	if !slices.Equal(rels, want) {
		t.Errorf("output paths = %v, want %v", rels, want)
	}
}

func TestSaveProcessedFiles_PathOwnedByRecordIsNotReused(t *testing.T) {
	env := newTestEnv(t)
	env.settings.ConversionWorkers = 1
	z := env.add(t, "z.jpg", mediatypes.KindImage, captured)
	env.run(t, nil)
	if got := env.get(t, z.Path).OutputRelPath; got != "2024/5/3/100000.JPG" {
		t.Fatalf("OutputRelPath = %q, want 2024/5/3/100000.JPG", got)
	}

	// The output is gone from disk but z still owns its name.
	if err := os.Remove(env.settings.OutputPath(true, "2024/5/3/100000.JPG")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	a := env.add(t, "a.jpg", mediatypes.KindImage, captured)

	if res := env.run(t, nil); res.Converted != 2 {
		t.Fatalf("run = %+v, want 2 converted", res)
	}
	if got := env.get(t, z.Path).OutputRelPath; got != "2024/5/3/100000.JPG" {
		t.Errorf("z moved to %q", got)
	}
	if got := env.get(t, a.Path).OutputRelPath; got != "2024/5/3/100000_00001.JPG" {
		t.Errorf("a got %q, want 2024/5/3/100000_00001.JPG", got)
	}
	if res := env.run(t, nil); res.Converted != 0 {
		t.Errorf("third run = %+v, want nothing converted", res)
	}
}

func TestSaveProcessedFiles_StickyOutputPath(t *testing.T) {
	env := newTestEnv(t)
	rec := env.add(t, "IMG_1.jpg", mediatypes.KindImage, captured)
	rec.OutputRelPath = "kept/elsewhere.JPG"
	if err := env.catalog.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	env.run(t, nil)

	if got := env.get(t, rec.Path).OutputRelPath; got != "kept/elsewhere.JPG" {
		t.Errorf("OutputRelPath = %q, want the stored path", got)
	}
	if _, err := os.Stat(filepath.Join(env.settings.OutputDir, "kept", "elsewhere.JPG")); err != nil {
		t.Errorf("output not written to the stored path: %v", err)
	}
}

func TestSaveProcessedFiles_SettingsChangeForcesReconversion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.add(t, "IMG_1.jpg", mediatypes.KindImage, captured)
	env.run(t, nil)
	first := env.get(t, rec.Path)

	env.settings.ImageCompressionQuality = 90
	res := env.run(t, nil)
	if res.Converted != 1 {
		t.Fatalf("run after settings change = %+v, want 1 converted", res)
	}

	second := env.get(t, rec.Path)
	if second.SettingsHash == first.SettingsHash {
		t.Error("settings hash not updated")
	}
	if second.OutputRelPath != first.OutputRelPath {
		t.Errorf("output path moved from %q to %q", first.OutputRelPath, second.OutputRelPath)
	}
	if n := env.runner.count(transcoder.ToolMagick); n != 2 {
		t.Errorf("image encodes = %d, want 2", n)
	}
}

func TestSaveProcessedFiles_ModifiedOutputForcesReconversion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.add(t, "IMG_1.jpg", mediatypes.KindImage, captured)
	env.run(t, nil)

	output := env.settings.OutputPath(true, env.get(t, rec.Path).OutputRelPath)
	if err := os.WriteFile(output, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if res := env.run(t, nil); res.Converted != 1 {
		t.Errorf("run after output change = %+v, want 1 converted", res)
	}
}

func TestSaveProcessedFiles_MissingOutputForcesReconversion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.add(t, "IMG_1.jpg", mediatypes.KindImage, captured)
	env.run(t, nil)

	output := env.settings.OutputPath(true, env.get(t, rec.Path).OutputRelPath)
	if err := os.Remove(output); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if res := env.run(t, nil); res.Converted != 1 {
		t.Errorf("run after output removal = %+v, want 1 converted", res)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output not recreated at its sticky path: %v", err)
	}
}

func TestSaveProcessedFiles_OverwriteOutputFiles(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "IMG_1.jpg", mediatypes.KindImage, captured)
	env.run(t, nil)

	env.settings.OverwriteOutputFiles = true
	if res := env.run(t, nil); res.Converted != 1 {
		t.Errorf("overwrite run = %+v, want 1 converted", res)
	}
}

func TestSaveProcessedFiles_UnknownDateGating(t *testing.T) {
	env := newTestEnv(t)
	rec := env.add(t, "old/IMG_2.jpg", mediatypes.KindImage, time.Time{})

	res := env.run(t, nil)
	if res.UnknownDate != 1 || res.Converted != 0 {
		t.Fatalf("gated run = %+v, want 1 unknown date", res)
	}
	if got := env.get(t, rec.Path).OutputRelPath; got != "" {
		t.Errorf("gated record got an output path %q", got)
	}
	if env.runner.count(transcoder.ToolMagick) != 0 {
		t.Error("gated record was encoded")
	}

	env.settings.ConvertUnknown = true
	if res := env.run(t, nil); res.Converted != 1 {
		t.Fatalf("opt-in run = %+v, want 1 converted", res)
	}
	converted := env.get(t, rec.Path)
	if converted.OutputRelPath != "old/IMG_2.JPG" {
		t.Errorf("OutputRelPath = %q, want old/IMG_2.JPG", converted.OutputRelPath)
	}
	output := filepath.Join(env.settings.UnknownOutputDir, "old", "IMG_2.JPG")
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("unknown-date output missing: %v", err)
	}

	env.settings.ConvertUnknown = false
	env.run(t, nil)
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("gated output should be deleted, stat err = %v", err)
	}
}

func TestSaveProcessedFiles_FailureLeavesHashesUnchanged(t *testing.T) {
	env := newTestEnv(t)
	bad := env.add(t, "bad.jpg", mediatypes.KindImage, captured)
	good := env.add(t, "good.jpg", mediatypes.KindImage, captured.Add(time.Second))
	env.runner.fail["bad.jpg"] = true

	res := env.run(t, nil)
	if res.Converted != 1 || res.Failed != 1 {
		t.Fatalf("run = %+v, want 1 converted and 1 failed", res)
	}

	got := env.get(t, bad.Path)
	if got.ConvertedHash != "" || got.SettingsHash != "" {
		t.Errorf("failed conversion stored hashes: %+v", got)
	}
	if got.OutputRelPath == "" {
		t.Error("allocated path should be persisted before conversion")
	}
	if env.get(t, good.Path).ConvertedHash == "" {
		t.Error("good file should be converted")
	}

	delete(env.runner.fail, "bad.jpg")
	if res := env.run(t, nil); res.Converted != 1 || res.Skipped != 1 {
		t.Errorf("retry run = %+v, want the failed file converted", res)
	}
	if env.get(t, bad.Path).OutputRelPath != got.OutputRelPath {
		t.Error("retry should reuse the allocated path")
	}
}

func TestSaveProcessedFiles_GPUSplit(t *testing.T) {
	env := newTestEnv(t)
	env.settings.GPUCount = 2
	env.settings.GPUWorkers = 1
	env.add(t, "IMG_1.jpg", mediatypes.KindImage, captured)
	for i, name := range []string{"v1.mov", "v2.mov", "v3.mov", "v4.mov"} {
		env.add(t, name, mediatypes.KindVideo, captured.Add(time.Duration(i+1)*time.Second))
	}

	res := env.run(t, nil)
	if res.Converted != 5 {
		t.Fatalf("run = %+v, want 5 converted", res)
	}

	devices := map[string]int{}
	for _, cmd := range env.runner.commands {
		switch cmd.Tool {
		case transcoder.ToolFFmpeg:
			i := slices.Index(cmd.Args, "-gpu")
			if i < 0 {
				t.Fatalf("video used the CPU template: %v", cmd.Args)
			}
			devices[cmd.Args[i+1]]++
		case transcoder.ToolMagick:
			devices["cpu"]++
		}
	}
	if devices["0"] != 2 || devices["1"] != 2 || devices["cpu"] != 1 {
		t.Errorf("device distribution = %v", devices)
	}
}

func TestSaveProcessedFiles_CPUOnlyVideos(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "v1.mov", mediatypes.KindVideo, captured)
	env.run(t, nil)

	for _, cmd := range env.runner.commands {
		if cmd.Tool == transcoder.ToolFFmpeg && !slices.Contains(cmd.Args, "libx265") {
			t.Errorf("expected libx265 without GPUs: %v", cmd.Args)
		}
	}
}

func TestSaveProcessedFiles_GPUCountWithoutWorkers(t *testing.T) {
	env := newTestEnv(t)
	env.settings.GPUCount = 1
	env.settings.GPUWorkers = 0
	env.add(t, "v1.mov", mediatypes.KindVideo, captured)

	if res := env.run(t, nil); res.Converted != 1 {
		t.Fatalf("run = %+v, want 1 converted", res)
	}
	for _, cmd := range env.runner.commands {
		if cmd.Tool == transcoder.ToolFFmpeg && slices.Contains(cmd.Args, "-gpu") {
			t.Errorf("video sent to a GPU pool with no workers: %v", cmd.Args)
		}
	}
}

func TestSaveProcessedFiles_TargetedPaths(t *testing.T) {
	env := newTestEnv(t)
	a := env.add(t, "a.jpg", mediatypes.KindImage, captured)
	b := env.add(t, "b.jpg", mediatypes.KindImage, captured.Add(time.Second))

	res := env.run(t, []string{b.Path})
	if res.Converted != 1 {
		t.Fatalf("targeted run = %+v, want 1 converted", res)
	}
	if env.get(t, a.Path).OutputRelPath != "" {
		t.Error("untargeted record was converted")
	}
	if env.get(t, b.Path).ConvertedHash == "" {
		t.Error("targeted record was not converted")
	}
}

func TestSaveProcessedFiles_Empty(t *testing.T) {
	env := newTestEnv(t)
	if res := env.run(t, nil); res != (Result{}) {
		t.Errorf("empty catalog run = %+v", res)
	}
}

func TestSaveProcessedFiles_Stopped(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "a.jpg", mediatypes.KindImage, captured)
	stop := workers.NewStopFlag()
	stop.Set()

	res, err := env.engine(stop).SaveProcessedFiles(context.Background(), nil)
	if err != nil {
		t.Fatalf("SaveProcessedFiles: %v", err)
	}
	if res.Converted != 0 || len(env.runner.commands) != 0 {
		t.Errorf("stopped run converted files: %+v", res)
	}
}

func TestSaveProcessedFiles_CatalogFailureAborts(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "a.jpg", mediatypes.KindImage, captured)
	env.catalog.Close()

	_, err := env.engine(nil).SaveProcessedFiles(context.Background(), nil)
	var storeErr *catalog.StoreError
	if !errors.As(err, &storeErr) {
		t.Errorf("err = %v, want a StoreError", err)
	}
}
