package metadata

import (
	"bytes"
	"encoding/binary"
)

const (
	jpegMarkerSOS   = 0xDA
	jpegMarkerEOI   = 0xD9
	jpegMarkerAPP13 = 0xED

	iptcTagMarker = 0x1C

	// IPTC IIM record 2 ("application") datasets of interest.
	iptcRecordApplication = 2
	iptcDatasetObjectName = 5   // -> subject
	iptcDatasetCaption    = 120 // -> description
	iptcDatasetCopyright  = 116 // -> comment

	photoshopResourceIPTC = 0x0404
)

var photoshopHeader = []byte("Photoshop 3.0\x00")

// extractJpeg walks the JPEG marker segments looking for an APP13
// (Photoshop image-resource) segment carrying IPTC IIM records.
func extractJpeg(buf []byte) ExtractedMetadata {
	var meta ExtractedMetadata
	if len(buf) < 4 || buf[0] != 0xFF || buf[1] != 0xD8 {
		return meta
	}

	offset := 2
	for offset+4 <= len(buf) {
		if buf[offset] != 0xFF {
			break
		}

		marker := buf[offset+1]
		switch {
		case marker == 0xFF:
			// Fill byte, resync on the next 0xFF.
			offset++
			continue
		case marker == jpegMarkerSOS || marker == jpegMarkerEOI:
			// Entropy-coded data follows SOS; no further metadata segments.
			return meta
		case marker >= 0xD0 && marker <= 0xD7, marker == 0x01:
			// Standalone markers carry no length field.
			offset += 2
			continue
		}

		segmentLen := int(binary.BigEndian.Uint16(buf[offset+2 : offset+4]))
		if segmentLen < 2 || offset+2+segmentLen > len(buf) {
			return meta
		}

		if marker == jpegMarkerAPP13 {
			payload := buf[offset+4 : offset+2+segmentLen]
			meta.merge(parsePhotoshopResources(payload))
		}

		offset += 2 + segmentLen
	}

	return meta
}

// parsePhotoshopResources iterates the 8BIM image-resource blocks of an
// APP13 payload, descending into the IPTC resource (0x0404) when found.
func parsePhotoshopResources(payload []byte) ExtractedMetadata {
	var meta ExtractedMetadata
	if !bytes.HasPrefix(payload, photoshopHeader) {
		return meta
	}

	offset := len(photoshopHeader)
	for offset+12 <= len(payload) {
		if !bytes.Equal(payload[offset:offset+4], []byte("8BIM")) {
			break
		}
		offset += 4

		resourceID := binary.BigEndian.Uint16(payload[offset : offset+2])
		offset += 2

		// Pascal-string resource name, padded so name length + size byte is even.
		nameLen := int(payload[offset])
		nameTotal := 1 + nameLen
		if nameTotal%2 == 1 {
			nameTotal++
		}
		offset += nameTotal
		if offset+4 > len(payload) {
			break
		}

		dataLen := int(binary.BigEndian.Uint32(payload[offset : offset+4]))
		offset += 4
		if dataLen < 0 || offset+dataLen > len(payload) {
			break
		}

		if resourceID == photoshopResourceIPTC {
			meta.merge(parseIptcRecords(payload[offset : offset+dataLen]))
		}

		offset += dataLen
		if dataLen%2 == 1 {
			offset++
		}
	}

	return meta
}

// parseIptcRecords decodes the IPTC IIM dataset stream found inside the
// Photoshop IPTC resource block.
func parseIptcRecords(data []byte) ExtractedMetadata {
	var meta ExtractedMetadata

	offset := 0
	for offset+5 <= len(data) {
		if data[offset] != iptcTagMarker {
			break
		}

		record := data[offset+1]
		dataset := data[offset+2]
		size := int(binary.BigEndian.Uint16(data[offset+3 : offset+5]))
		offset += 5

		// A set high bit marks the extended form: the real length follows
		// as a 4-byte big-endian value.
		if size&0x8000 != 0 {
			if offset+4 > len(data) {
				break
			}
			size = int(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4
		}

		if size < 0 || offset+size > len(data) {
			break
		}
		value := decodeLegacyText(data[offset : offset+size])
		offset += size

		if record != iptcRecordApplication {
			continue
		}

		switch dataset {
		case iptcDatasetObjectName:
			if meta.Subject == "" {
				meta.Subject = value
			}
		case iptcDatasetCaption:
			if meta.Description == "" {
				meta.Description = value
			}
		case iptcDatasetCopyright:
			if meta.Comment == "" {
				meta.Comment = value
			}
		}
	}

	return meta
}
