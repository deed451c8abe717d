package ffmpeg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFfmpegErrorExtractsMessage(t *testing.T) {
	raw := errors.New(`ffmpeg version 6.0 ... lots of banner ... message: {"error":{"string":"No such file or directory"}}`)
	parsed := parseFfmpegError(raw)
	assert.EqualError(t, parsed, "No such file or directory")
}

func TestParseFfmpegErrorPassthroughWhenNoMessage(t *testing.T) {
	raw := errors.New("exit status 1")
	assert.Equal(t, raw, parseFfmpegError(raw))
}

func TestParseFfmpegErrorMalformedJSON(t *testing.T) {
	raw := errors.New(`message: {not json}`)
	assert.EqualError(t, parseFfmpegError(raw), "{not json}")
}

func TestVariantTranscodeOptions(t *testing.T) {
	variant := VariantConfig{Name: "720p", Height: 720, VideoBitrate: "2M"}
	opts := variant.transcodeOptions()

	args := opts.GetStrArguments()
	assert.Contains(t, args, "scale=-2:720")
	assert.Contains(t, args, "2M")
}

func TestVariantUpscaleDetection(t *testing.T) {
	variant := VariantConfig{Name: "720p", Height: 720}

	assert.True(t, variant.UpscalesFrom(480))
	assert.False(t, variant.UpscalesFrom(720))
	assert.False(t, variant.UpscalesFrom(1080))

	// Probe failures leave the source height unknown; every variant runs.
	assert.False(t, variant.UpscalesFrom(0))
}
