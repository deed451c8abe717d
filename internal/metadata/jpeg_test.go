package metadata

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

type iptcDataset struct {
	record  byte
	dataset byte
	value   []byte
}

// buildJpegWithIptc assembles a minimal but structurally valid JPEG carrying
// a single APP13 segment with one Photoshop IPTC resource block.
func buildJpegWithIptc(t *testing.T, datasets []iptcDataset) []byte {
	t.Helper()

	iptc := &bytes.Buffer{}
	for _, ds := range datasets {
		iptc.WriteByte(0x1C)
		iptc.WriteByte(ds.record)
		iptc.WriteByte(ds.dataset)
		binary.Write(iptc, binary.BigEndian, uint16(len(ds.value)))
		iptc.Write(ds.value)
	}

	resource := &bytes.Buffer{}
	resource.Write([]byte("8BIM"))
	binary.Write(resource, binary.BigEndian, uint16(0x0404))
	resource.Write([]byte{0x00, 0x00}) // empty pascal name, padded to even
	binary.Write(resource, binary.BigEndian, uint32(iptc.Len()))
	resource.Write(iptc.Bytes())
	if iptc.Len()%2 == 1 {
		resource.WriteByte(0x00)
	}

	segment := &bytes.Buffer{}
	segment.Write([]byte("Photoshop 3.0\x00"))
	segment.Write(resource.Bytes())

	jpeg := &bytes.Buffer{}
	jpeg.Write([]byte{0xFF, 0xD8})
	jpeg.Write([]byte{0xFF, 0xED})
	binary.Write(jpeg, binary.BigEndian, uint16(segment.Len()+2))
	jpeg.Write(segment.Bytes())
	jpeg.Write([]byte{0xFF, 0xD9})

	return jpeg.Bytes()
}

func TestJpegIptcCaptionExtraction(t *testing.T) {
	buf := buildJpegWithIptc(t, []iptcDataset{
		{record: 2, dataset: 120, value: []byte("Sunset over the harbour")},
	})

	meta := extractJpeg(buf)
	assert.Equal(t, "Sunset over the harbour", meta.Description)
	assert.Empty(t, meta.Subject)
	assert.Empty(t, meta.Comment)
}

func TestJpegIptcAllDatasets(t *testing.T) {
	buf := buildJpegWithIptc(t, []iptcDataset{
		{record: 2, dataset: 5, value: []byte("Harbour")},
		{record: 2, dataset: 120, value: []byte("Sunset over the harbour")},
		{record: 2, dataset: 116, value: []byte("shot on film")},
	})

	meta := extractJpeg(buf)
	assert.Equal(t, "Harbour", meta.Subject)
	assert.Equal(t, "Sunset over the harbour", meta.Description)
	assert.Equal(t, "shot on film", meta.Comment)
}

func TestJpegIptcLatinOneFallback(t *testing.T) {
	// 0xE9 is 'é' in Windows-1252/Latin-1 and invalid on its own in UTF-8.
	buf := buildJpegWithIptc(t, []iptcDataset{
		{record: 2, dataset: 120, value: []byte("caf\xE9 tables")},
	})

	meta := extractJpeg(buf)
	assert.Equal(t, "café tables", meta.Description)
}

func TestJpegIptcIgnoresOtherRecords(t *testing.T) {
	buf := buildJpegWithIptc(t, []iptcDataset{
		{record: 1, dataset: 120, value: []byte("envelope record, not application")},
		{record: 2, dataset: 120, value: []byte("the real caption")},
	})

	meta := extractJpeg(buf)
	assert.Equal(t, "the real caption", meta.Description)
}

func TestJpegMalformedInputYieldsEmpty(t *testing.T) {
	cases := map[string][]byte{
		"empty":             {},
		"not a jpeg":        []byte("definitely not an image"),
		"bare SOI":          {0xFF, 0xD8},
		"truncated segment": {0xFF, 0xD8, 0xFF, 0xED, 0xFF, 0xFF, 0x00},
	}

	for name, buf := range cases {
		meta := extractJpeg(buf)
		assert.True(t, meta.IsZero(), "case %q should yield empty metadata", name)
	}
}

func TestDecodeLegacyTextMojibake(t *testing.T) {
	assert.Equal(t, "plain ascii", decodeLegacyText([]byte("plain ascii")))
	assert.Equal(t, "café", decodeLegacyText([]byte{'c', 'a', 'f', 0xE9}))
	// Valid UTF-8 passes through untouched.
	assert.Equal(t, "naïve", decodeLegacyText([]byte("naïve")))
	// Trailing NULs are always trimmed.
	assert.Equal(t, "padded", decodeLegacyText([]byte("padded\x00\x00")))
}
