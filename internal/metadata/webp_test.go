package metadata

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildTiffWithDescription assembles a little-endian TIFF blob with an
// ImageDescription tag whose value lives past the IFD (non-inline form).
func buildTiffWithDescription(t *testing.T, description string) []byte {
	t.Helper()

	value := append([]byte(description), 0x00)

	buf := &bytes.Buffer{}
	buf.Write([]byte("II"))
	binary.Write(buf, binary.LittleEndian, uint16(0x2A))
	binary.Write(buf, binary.LittleEndian, uint32(8)) // IFD0 offset

	// IFD0: one entry, then the next-IFD terminator. Value data begins at
	// 8 (IFD start) + 2 (count) + 12 (entry) + 4 (next IFD) = 26.
	valueOffset := uint32(26)
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(tiffTagImageDescription))
	binary.Write(buf, binary.LittleEndian, uint16(2)) // ASCII
	binary.Write(buf, binary.LittleEndian, uint32(len(value)))
	binary.Write(buf, binary.LittleEndian, valueOffset)
	binary.Write(buf, binary.LittleEndian, uint32(0)) // next IFD
	buf.Write(value)

	return buf.Bytes()
}

func buildWebpWithChunk(t *testing.T, chunkType string, payload []byte) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(4+8+len(payload)))
	buf.Write([]byte("WEBP"))
	buf.Write([]byte(chunkType))
	binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	if len(payload)%2 == 1 {
		buf.WriteByte(0x00)
	}

	return buf.Bytes()
}

func TestWebpExifImageDescription(t *testing.T) {
	tiff := buildTiffWithDescription(t, "A lovely view of the bay")
	buf := buildWebpWithChunk(t, "EXIF", tiff)

	meta := extractWebp(buf)
	assert.Equal(t, "A lovely view of the bay", meta.Description)
}

func TestWebpExifWithJpegStylePrefix(t *testing.T) {
	tiff := buildTiffWithDescription(t, "prefixed body")
	buf := buildWebpWithChunk(t, "EXIF", append([]byte("Exif\x00\x00"), tiff...))

	meta := extractWebp(buf)
	assert.Equal(t, "prefixed body", meta.Description)
}

func TestWebpXmpChunk(t *testing.T) {
	xmp := []byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF>
		<dc:description><rdf:Alt><rdf:li xml:lang="x-default">from xmp</rdf:li></rdf:Alt></dc:description>
	</rdf:RDF></x:xmpmeta>`)
	buf := buildWebpWithChunk(t, "XMP ", xmp)

	meta := extractWebp(buf)
	assert.Equal(t, "from xmp", meta.Description)
}

func TestWebpMalformedHeaderYieldsEmpty(t *testing.T) {
	buf := []byte("JUNK....WEBP")
	meta := extractWebp(buf)
	assert.True(t, meta.IsZero())
}

func TestTiffXpSubjectUtf16(t *testing.T) {
	// XPSubject value: "Beach" in UTF-16LE with trailing NUL.
	value := []byte{'B', 0, 'e', 0, 'a', 0, 'c', 0, 'h', 0, 0, 0}

	buf := &bytes.Buffer{}
	buf.Write([]byte("II"))
	binary.Write(buf, binary.LittleEndian, uint16(0x2A))
	binary.Write(buf, binary.LittleEndian, uint32(8))

	valueOffset := uint32(26)
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(tiffTagXPSubject))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // BYTE
	binary.Write(buf, binary.LittleEndian, uint32(len(value)))
	binary.Write(buf, binary.LittleEndian, valueOffset)
	binary.Write(buf, binary.LittleEndian, uint32(0))
	buf.Write(value)

	meta := extractTiff(buf.Bytes())
	assert.Equal(t, "Beach", meta.Subject)
}

func TestTiffBigEndianInlineValue(t *testing.T) {
	// Big-endian TIFF with a short inline ImageDescription ("Hi\0").
	buf := &bytes.Buffer{}
	buf.Write([]byte("MM"))
	binary.Write(buf, binary.BigEndian, uint16(0x2A))
	binary.Write(buf, binary.BigEndian, uint32(8))

	binary.Write(buf, binary.BigEndian, uint16(1))
	binary.Write(buf, binary.BigEndian, uint16(tiffTagImageDescription))
	binary.Write(buf, binary.BigEndian, uint16(2))
	binary.Write(buf, binary.BigEndian, uint32(3))
	buf.Write([]byte{'H', 'i', 0x00, 0x00})
	binary.Write(buf, binary.BigEndian, uint32(0))

	meta := extractTiff(buf.Bytes())
	assert.Equal(t, "Hi", meta.Description)
}

func TestTiffMalformedYieldsEmpty(t *testing.T) {
	cases := map[string][]byte{
		"empty":       {},
		"bad order":   []byte("XXXXXXXX"),
		"bad magic":   {'I', 'I', 0x2B, 0x00, 8, 0, 0, 0},
		"offset wild": {'I', 'I', 0x2A, 0x00, 0xFF, 0xFF, 0xFF, 0x7F},
	}

	for name, buf := range cases {
		meta := extractTiff(buf)
		assert.True(t, meta.IsZero(), "case %q should yield empty metadata", name)
	}
}
