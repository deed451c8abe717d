package metadata

import (
	"bytes"
	"encoding/binary"
)

// extractWebp walks the RIFF chunk list of a WebP container, handing the
// EXIF chunk to the TIFF parser and the XMP chunk to the XMP parser.
func extractWebp(buf []byte) ExtractedMetadata {
	var meta ExtractedMetadata
	if len(buf) < 12 || !bytes.Equal(buf[:4], []byte("RIFF")) || !bytes.Equal(buf[8:12], []byte("WEBP")) {
		return meta
	}

	offset := 12
	for offset+8 <= len(buf) {
		chunkType := string(bytes.TrimRight(buf[offset:offset+4], " \x00"))
		chunkLen := int(binary.LittleEndian.Uint32(buf[offset+4 : offset+8]))
		offset += 8
		if chunkLen < 0 || offset+chunkLen > len(buf) {
			break
		}
		payload := buf[offset : offset+chunkLen]

		switch chunkType {
		case "EXIF":
			// Some writers prefix the TIFF body with the JPEG-style
			// "Exif\0\0" header; tolerate both layouts.
			tiff := payload
			if bytes.HasPrefix(tiff, []byte("Exif\x00\x00")) {
				tiff = tiff[6:]
			}
			meta.merge(extractTiff(tiff))
		case "XMP":
			meta.merge(extractXmp(payload))
		}

		offset += chunkLen
		if chunkLen%2 == 1 {
			offset++
		}
	}

	return meta
}
