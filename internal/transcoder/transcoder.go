package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"media-compressor/internal/logging"
)

// CPUDevice is the device index meaning "no hardware acceleration".
const CPUDevice = -1

// Tools holds the executable paths of the external tools.
type Tools struct {
	FFmpeg   string
	Magick   string
	Exiftool string
}

// Params are the conversion parameters that shape the output.
type Params struct {
	ImageQuality      int
	ImageMaxDimension int
	VideoMaxDimension int
	VideoCRF          int
	NVENCPreset       string
	// AudioBitrate is in kbit/s.
	AudioBitrate int
}

// Transcoder builds and runs encoder and metadata-copy commands.
type Transcoder struct {
	runner Runner
	tools  Tools
	params Params
}

// New creates a Transcoder.
func New(runner Runner, tools Tools, params Params) *Transcoder {
	return &Transcoder{runner: runner, tools: tools, params: params}
}

// ScaleDimensions fits width x height within maxDimension, preserving the
// aspect ratio and flooring both sides. ok is false when no scaling is
// needed.
func ScaleDimensions(width, height, maxDimension int) (w, h int, ok bool) {
	if max(height, width) <= maxDimension {
		return 0, 0, false
	}
	if height > width {
		h = maxDimension
		w = h * width / height
	} else {
		w = maxDimension
		h = height * w / width
	}
	return w, h, true
}

// ImageCommand converts src to a JPEG at dst.
func (t *Transcoder) ImageCommand(src, dst string, width, height int) Command {
	args := []string{"-quality", strconv.Itoa(t.params.ImageQuality)}
	if w, h, ok := ScaleDimensions(width, height, t.params.ImageMaxDimension); ok {
		args = append([]string{"-resize", fmt.Sprintf("%dx%d", w, h)}, args...)
	}
	args = append(args, src, dst)
	return Command{Tool: ToolMagick, Path: t.tools.Magick, Args: args}
}

// VideoCommand converts src to HEVC in an MP4 container at dst. A device
// index of CPUDevice selects libx265; any other index selects NVENC on that
// GPU.
func (t *Transcoder) VideoCommand(src, dst string, width, height, device int) Command {
	w, h, scale := ScaleDimensions(width, height, t.params.VideoMaxDimension)
	audio := strconv.Itoa(t.params.AudioBitrate) + "k"

	var args []string
	if device < 0 {
		args = []string{"-noautorotate", "-i", src,
			"-c:v", "libx265", "-crf", strconv.Itoa(t.params.VideoCRF),
			"-c:a", "aac", "-b:a", audio}
		if scale {
			args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", w, h))
		}
	} else {
		gpu := strconv.Itoa(device)
		args = []string{"-noautorotate", "-hwaccel", "nvdec", "-hwaccel_device", gpu, "-i", src,
			"-c:v", "hevc_nvenc", "-preset", t.params.NVENCPreset, "-gpu", gpu,
			"-c:a", "aac", "-b:a", audio}
		if scale {
			args = append(args, "-vf", fmt.Sprintf("hwupload_cuda,scale_npp=w=%d:h=%d:format=yuv420p", w, h))
		}
	}
	args = append(args, "-y", dst)
	return Command{Tool: ToolFFmpeg, Path: t.tools.FFmpeg, Args: args}
}

// CopyMetadataCommand copies all tags from src onto dst in place. A
// non-empty rotation overrides the rotation tag.
func (t *Transcoder) CopyMetadataCommand(src, dst, rotation string) Command {
	args := []string{"-overwrite_original", "-tagsFromFile", src}
	if rotation != "" {
		args = append(args, "-rotation="+rotation)
	}
	args = append(args, dst)
	return Command{Tool: ToolExiftool, Path: t.tools.Exiftool, Args: args}
}

// ConvertImage runs the image encoder.
func (t *Transcoder) ConvertImage(ctx context.Context, src, dst string, width, height int) error {
	return t.run(ctx, t.ImageCommand(src, dst, width, height), "Image conversion failed")
}

// ConvertVideo runs the video encoder on the given device.
func (t *Transcoder) ConvertVideo(ctx context.Context, src, dst string, width, height, device int) error {
	return t.run(ctx, t.VideoCommand(src, dst, width, height, device), "Video conversion failed")
}

// CopyMetadata runs the metadata-copy tool.
func (t *Transcoder) CopyMetadata(ctx context.Context, src, dst, rotation string) error {
	return t.run(ctx, t.CopyMetadataCommand(src, dst, rotation), "EXIF copy failed")
}

func (t *Transcoder) run(ctx context.Context, cmd Command, message string) error {
	logging.Debug("Running: %s", cmd.CommandLine())
	if _, err := t.runner.Run(ctx, cmd); err != nil {
		var te *ToolError
		if errors.As(err, &te) {
			te.Message = message
			return te
		}
		return &ToolError{Message: message, CommandLine: cmd.CommandLine(), Err: err}
	}
	return nil
}

// ToolStatus is the result of probing one external tool.
type ToolStatus struct {
	Tool      string `json:"tool"`
	Path      string `json:"path"`
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CheckTools verifies every configured tool can be found and reports its
// version line.
func CheckTools(ctx context.Context, tools Tools) []ToolStatus {
	checks := []struct {
		tool, path string
		args       []string
	}{
		{ToolFFmpeg, tools.FFmpeg, []string{"-version"}},
		{ToolMagick, tools.Magick, []string{"-version"}},
		{ToolExiftool, tools.Exiftool, []string{"-ver"}},
	}

	statuses := make([]ToolStatus, 0, len(checks))
	for _, c := range checks {
		statuses = append(statuses, checkTool(ctx, c.tool, c.path, c.args...))
	}
	return statuses
}

func checkTool(ctx context.Context, tool, path string, args ...string) ToolStatus {
	status := ToolStatus{Tool: tool, Path: path}

	resolved, err := exec.LookPath(path)
	if err != nil {
		status.Error = fmt.Sprintf("%s not found in PATH", path)
		return status
	}
	status.Path = resolved

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, resolved, args...).Output()
	if err != nil {
		status.Error = fmt.Sprintf("failed to get %s version: %v", tool, err)
		return status
	}

	status.Available = true
	if lines := strings.Split(string(output), "\n"); len(lines) > 0 {
		status.Version = strings.TrimSpace(lines[0])
	}
	return status
}
