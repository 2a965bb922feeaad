package video

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/courtside-data/rallycut/internal/rally"
)

// tempExt is appended to the output path while ffmpeg runs, so the final
// path appears only after a successful export.
const tempExt = ".temp"

// ExportError reports an ffmpeg invocation failure with the tool's output.
type ExportError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("ffmpeg export failed: %v (stderr: %s)", e.Err, e.Stderr)
}

func (e *ExportError) Unwrap() error { return e.Err }

// FFmpegExporter trims a video to a keep-list by re-encoding through an
// ffmpeg select/concat filter graph. It implements rally.Exporter.
type FFmpegExporter struct {
	// FFmpegPath is the binary to invoke; "ffmpeg" resolves via PATH.
	FFmpegPath string
	// OutputDir receives the trimmed file; empty keeps it next to the source.
	OutputDir string
	// Suffix is inserted before the extension of the output name.
	Suffix string
}

// NewFFmpegExporter creates an exporter with the given output directory.
func NewFFmpegExporter(outputDir string) *FFmpegExporter {
	return &FFmpegExporter{
		FFmpegPath: "ffmpeg",
		OutputDir:  outputDir,
		Suffix:     "_rallies",
	}
}

// Export writes a new video containing only the keep-list ranges. On any
// failure the partially written temporary file is removed; the final output
// path never holds an incomplete file.
func (e *FFmpegExporter) Export(ctx context.Context, srcPath string, keep []rally.TimeRange) (string, error) {
	if len(keep) == 0 {
		return "", fmt.Errorf("export requires at least one keep range")
	}
	if _, err := exec.LookPath(e.FFmpegPath); err != nil {
		return "", fmt.Errorf("ffmpeg not available: %w", err)
	}

	outPath := e.outputPath(srcPath)
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	tempPath := outPath + tempExt

	args := e.buildArgs(srcPath, tempPath, keep)
	rally.Diagf("[Export] %s %s", e.FFmpegPath, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, e.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tempPath)
		return "", &ExportError{Args: args, Stderr: tail(stderr.String(), 2000), Err: err}
	}

	if err := os.Rename(tempPath, outPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to finalize export: %w", err)
	}

	rally.Opsf("[Export] wrote %s (%d segments)", outPath, len(keep))
	return outPath, nil
}

// buildArgs assembles the trim/concat filter graph. Each keep range becomes
// a trimmed video and audio leg; the legs are concatenated in order.
func (e *FFmpegExporter) buildArgs(srcPath, tempPath string, keep []rally.TimeRange) []string {
	var filter strings.Builder
	for i, r := range keep {
		fmt.Fprintf(&filter, "[0:v]trim=start=%.3f:end=%.3f,setpts=PTS-STARTPTS[v%d];", r.Start, r.End, i)
		fmt.Fprintf(&filter, "[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS[a%d];", r.Start, r.End, i)
	}
	for i := range keep {
		fmt.Fprintf(&filter, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[outv][outa]", len(keep))

	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", srcPath,
		"-filter_complex", filter.String(),
		"-map", "[outv]",
		"-map", "[outa]",
		"-f", containerFormat(tempPath),
		tempPath,
	}
}

// outputPath derives the trimmed file's final path from the source name.
func (e *FFmpegExporter) outputPath(srcPath string) string {
	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext) + e.Suffix + ext

	dir := e.OutputDir
	if dir == "" {
		dir = filepath.Dir(srcPath)
	}
	return filepath.Join(dir, name)
}

// containerFormat maps the output extension to an ffmpeg muxer name, since
// the temporary extension hides it from ffmpeg's own detection.
func containerFormat(path string) string {
	base := strings.TrimSuffix(path, tempExt)
	switch strings.ToLower(filepath.Ext(base)) {
	case ".mov":
		return "mov"
	case ".mkv":
		return "matroska"
	default:
		return "mp4"
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
