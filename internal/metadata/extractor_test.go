package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDispatchesByMime(t *testing.T) {
	extractor := NewExtractor(Config{})

	jpeg := buildJpegWithIptc(t, []iptcDataset{{record: 2, dataset: 5, value: []byte("pier")}})
	meta := extractor.Extract(jpeg, "", "image/jpeg")
	assert.Equal(t, "pier", meta.Subject)

	webp := buildWebpWithChunk(t, "EXIF", buildTiffWithDescription(t, "still water"))
	meta = extractor.Extract(webp, "", "image/webp")
	assert.Equal(t, "still water", meta.Description)

	mp4 := buildMp4WithUserData(t, mp4Box(t, "\xa9cmt", mp4DataBox(t, "clip comment")))
	meta = extractor.Extract(mp4, "", "video/mp4")
	assert.Equal(t, "clip comment", meta.Comment)
}

func TestExtractUnknownMimeYieldsEmpty(t *testing.T) {
	extractor := NewExtractor(Config{})
	meta := extractor.Extract([]byte("anything"), "", "application/pdf")
	assert.True(t, meta.IsZero())
}

func TestExtractNeverPanicsOnGarbage(t *testing.T) {
	extractor := NewExtractor(Config{})
	garbage := []byte{0xFF, 0xD8, 0xFF, 0xED, 0x00, 0x05, 'x', 'y', 0xFF}

	for _, mime := range []string{"image/jpeg", "image/webp", "video/mp4", "application/rdf+xml"} {
		meta := extractor.Extract(garbage, "", mime)
		assert.True(t, meta.IsZero())
	}
}

func TestGuessMime(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	assert.Equal(t, "image/jpeg", GuessMime("whatever.bin", jpeg))

	webp := []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
	assert.Equal(t, "image/webp", GuessMime("x", webp))

	mp4 := []byte("\x00\x00\x00\x18ftypisom")
	assert.Equal(t, "video/mp4", GuessMime("x", mp4))

	assert.Equal(t, "image/jpeg", GuessMime("photo.JPG", nil))
	assert.Equal(t, "video/mp4", GuessMime("clip.mp4", nil))
	assert.Equal(t, "application/octet-stream", GuessMime("notes.txt", nil))
}

func TestMapFields(t *testing.T) {
	meta := ExtractedMetadata{Subject: "subj", Description: "desc", Comment: "cmt"}

	image := MapFields(meta, "image/jpeg")
	assert.Equal(t, "subj", image.Caption)
	assert.Equal(t, "desc", image.AlternativeText)

	webp := MapFields(meta, "image/webp")
	assert.Equal(t, "subj", webp.Caption)

	video := MapFields(meta, "video/mp4")
	assert.Equal(t, "cmt", video.Caption)
	assert.Equal(t, "desc", video.AlternativeText)

	other := MapFields(meta, "image/png")
	assert.Empty(t, other.Caption)
	assert.Empty(t, other.AlternativeText)
}
