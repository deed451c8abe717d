package metadata

import (
	"encoding/binary"
	"strings"
)

// Boxes we descend into on the way to the iTunes-style metadata list.
var mp4ContainerBoxes = map[string]bool{
	"moov": true,
	"udta": true,
	"ilst": true,
	"meta": true,
}

// extractMp4 recursively walks the ISO-BMFF box tree of an MP4/MOV file,
// collecting the iTunes comment (©cmt) and description (desc) atoms.
func extractMp4(buf []byte) ExtractedMetadata {
	var meta ExtractedMetadata
	walkMp4Boxes(buf, &meta)
	return meta
}

func walkMp4Boxes(buf []byte, meta *ExtractedMetadata) {
	offset := 0
	for offset+8 <= len(buf) {
		size := int64(binary.BigEndian.Uint32(buf[offset : offset+4]))
		boxType := string(buf[offset+4 : offset+8])
		headerLen := 8

		switch size {
		case 0:
			// Box extends to the end of the enclosing scope.
			size = int64(len(buf) - offset)
		case 1:
			// 64-bit size extension.
			if offset+16 > len(buf) {
				return
			}
			size = int64(binary.BigEndian.Uint64(buf[offset+8 : offset+16]))
			headerLen = 16
		}

		if size < int64(headerLen) || int64(offset)+size > int64(len(buf)) {
			return
		}
		payload := buf[offset+headerLen : offset+int(size)]

		switch {
		case mp4ContainerBoxes[boxType]:
			// A 'meta' box carries a version/flags word before its children.
			if boxType == "meta" && len(payload) >= 4 {
				payload = payload[4:]
			}
			walkMp4Boxes(payload, meta)
		case boxType == "\xa9cmt":
			if value := readMp4DataChildren(payload); value != "" && meta.Comment == "" {
				meta.Comment = value
			}
		case boxType == "desc":
			if value := readMp4DataChildren(payload); value != "" && meta.Description == "" {
				meta.Description = value
			}
		}

		offset += int(size)
	}
}

// readMp4DataChildren scans the child boxes of a metadata item, returning the
// text payload of the first 'data' box found.
func readMp4DataChildren(buf []byte) string {
	offset := 0
	for offset+8 <= len(buf) {
		size := int(binary.BigEndian.Uint32(buf[offset : offset+4]))
		boxType := string(buf[offset+4 : offset+8])
		if size < 8 || offset+size > len(buf) {
			return ""
		}

		if boxType == "data" {
			payload := buf[offset+8 : offset+size]

			// The data atom carries a version/flags word and a type
			// indicator (8 bytes); some writers follow it with a 4-byte
			// zeroed locale field.
			if len(payload) < 8 {
				return ""
			}
			payload = payload[8:]
			if len(payload) >= 4 && payload[0] == 0 && payload[1] == 0 && payload[2] == 0 && payload[3] == 0 {
				payload = payload[4:]
			}

			return strings.TrimRight(decodeLegacyText(payload), "\x00")
		}

		offset += size
	}

	return ""
}
