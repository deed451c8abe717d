// Package ffmpeg wraps the ffmpeg/ffprobe binaries for the handful of
// operations the importer needs: probing media, transcoding resolution
// variants, packaging HLS streams and grabbing thumbnail frames.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/floostack/transcoder"
	"github.com/floostack/transcoder/ffmpeg"

	"github.com/gramvault/gramvault/pkg/logger"
)

var log = logger.Get("FFmpeg")

type (
	// VariantConfig describes one named transcode target (e.g. 720p).
	VariantConfig struct {
		Name         string `yaml:"name"`
		Height       int    `yaml:"height"`
		VideoBitrate string `yaml:"video_bitrate"`
	}

	Config struct {
		FfmpegBinPath           string `yaml:"ffmpeg_bin_path" env:"FFMPEG_BIN" env-default:"/usr/bin/ffmpeg"`
		FfprobeBinPath          string `yaml:"ffprobe_bin_path" env:"FFPROBE_BIN" env-default:"/usr/bin/ffprobe"`
		TranscodeTimeoutMinutes int    `yaml:"transcode_timeout_minutes" env:"FFMPEG_TIMEOUT" env-default:"30"`
	}

	// Transcoder runs ffmpeg work with the configured binaries. All methods
	// honour the supplied context and the configured timeout, whichever
	// expires first.
	Transcoder struct {
		config Config
	}

	// FfmpegProgress is a trimmed view of the underlying transcode progress.
	FfmpegProgress struct {
		FramesProcessed string
		CurrentTime     string
		Progress        float64
		Speed           string
	}

	ProgressHandler func(FfmpegProgress)
)

func New(config Config) *Transcoder {
	return &Transcoder{config: config}
}

func (t *Transcoder) timeout() time.Duration {
	return time.Duration(t.config.TranscodeTimeoutMinutes) * time.Minute
}

// ProbeFile extracts stream/format metadata from the file using ffprobe.
func (t *Transcoder) ProbeFile(path string) (transcoder.Metadata, error) {
	cfg := ffmpeg.Config{
		FfmpegBinPath:  t.config.FfmpegBinPath,
		FfprobeBinPath: t.config.FfprobeBinPath,
	}

	metadata, err := ffmpeg.New(&cfg).Input(path).GetMetadata()
	if err != nil {
		return nil, fmt.Errorf("ffprobe of %s failed: %w", path, err)
	}

	return metadata, nil
}

// SourceHeight returns the height of the first stream that reports one, or
// 0 when the probed metadata contains no sized stream.
func SourceHeight(metadata transcoder.Metadata) int {
	for _, stream := range metadata.GetStreams() {
		if stream.GetHeight() > 0 {
			return stream.GetHeight()
		}
	}

	return 0
}

// UpscalesFrom reports whether producing this variant from a source of the
// given height would upscale it. An unknown source height (0) never counts
// as upscaling.
func (v VariantConfig) UpscalesFrom(sourceHeight int) bool {
	return sourceHeight > 0 && v.Height > sourceHeight
}

// TranscodeVariant runs one named variant transcode of the input file,
// delivering progress updates to the handler (which may be nil).
func (t *Transcoder) TranscodeVariant(ctx context.Context, inputPath string, outputPath string, variant VariantConfig, onProgress ProgressHandler) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout())
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}

	instance := ffmpeg.
		New(&ffmpeg.Config{
			ProgressEnabled: true,
			FfmpegBinPath:   t.config.FfmpegBinPath,
			FfprobeBinPath:  t.config.FfprobeBinPath,
		}).
		Input(inputPath).
		Output(outputPath).
		WithContext(&ctx)

	progressChannel, err := instance.Start(variant.transcodeOptions())
	if err != nil {
		return parseFfmpegError(err)
	}

	for {
		prog, ok := <-progressChannel
		if !ok {
			log.Emit(logger.DEBUG, "variant %s of %s finished\n", variant.Name, inputPath)
			return ctx.Err()
		}

		if onProgress != nil {
			onProgress(FfmpegProgress{
				FramesProcessed: prog.GetFramesProcessed(),
				CurrentTime:     prog.GetCurrentTime(),
				Progress:        prog.GetProgress(),
				Speed:           prog.GetSpeed(),
			})
		}
	}
}

func (v VariantConfig) transcodeOptions() transcoder.Options {
	outputFormat := "mp4"
	overwrite := true
	videoFilter := fmt.Sprintf("scale=-2:%d", v.Height)

	opts := ffmpeg.Options{
		OutputFormat: &outputFormat,
		Overwrite:    &overwrite,
		VideoFilter:  &videoFilter,
	}
	if v.VideoBitrate != "" {
		opts.VideoBitRate = &v.VideoBitrate
	}

	return opts
}

// parseFfmpegError digs the actual error message out of the enormous
// ffmpeg startup banner that the transcoder library returns verbatim.
func parseFfmpegError(err error) error {
	messageMatcher := regexp.MustCompile(`(?s)message: ({.*})`)
	groups := messageMatcher.FindStringSubmatch(err.Error())
	if len(groups) == 0 {
		return err
	}

	var out map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(groups[1]), &out); jsonErr != nil {
		return errors.New(groups[1])
	}

	if exception, ok := out["error"].(map[string]interface{}); ok {
		if str, ok := exception["string"].(string); ok {
			return errors.New(str)
		}
	}

	return err
}
