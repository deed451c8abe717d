package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// GenerateHLS packages the input video as an HLS stream inside outputDir,
// remuxing without re-encoding. The returned path is the playlist file.
func (t *Transcoder) GenerateHLS(ctx context.Context, inputPath string, outputDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout())
	defer cancel()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	playlistPath := filepath.Join(outputDir, "index.m3u8")
	cmd := exec.CommandContext(ctx, t.config.FfmpegBinPath,
		"-i", inputPath,
		"-codec", "copy",
		"-hls_time", "10",
		"-hls_list_size", "0",
		"-f", "hls",
		playlistPath,
	)

	if err := runFfmpegCommand(cmd); err != nil {
		return "", fmt.Errorf("HLS packaging of %s failed: %w", inputPath, err)
	}

	return playlistPath, nil
}

// GenerateThumbnail extracts a single frame one second in to the video.
func (t *Transcoder) GenerateThumbnail(ctx context.Context, inputPath string, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout())
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, t.config.FfmpegBinPath,
		"-ss", "1",
		"-i", inputPath,
		"-frames:v", "1",
		"-y",
		outputPath,
	)

	if err := runFfmpegCommand(cmd); err != nil {
		return fmt.Errorf("thumbnail extraction from %s failed: %w", inputPath, err)
	}

	return nil
}

func runFfmpegCommand(cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// ffmpeg writes its banner and errors to stderr; keep the tail,
		// which is where the actual failure reason lives.
		message := stderr.String()
		if len(message) > 512 {
			message = message[len(message)-512:]
		}

		return fmt.Errorf("%w: %s", err, message)
	}

	return nil
}
