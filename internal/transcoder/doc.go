// Package transcoder runs the external command-line tools that do the
// pixel-level work: ImageMagick for images, FFmpeg for videos (CPU or
// NVENC on a selected GPU) and ExifTool for metadata.
//
// Commands are built from fixed argument templates and executed through a
// Runner. The default ExecRunner tracks live processes so they can be
// killed on shutdown; tests substitute a fake Runner.
//
// A tool that exits non-zero yields a *ToolError carrying the full command
// line and captured stderr.
package transcoder
