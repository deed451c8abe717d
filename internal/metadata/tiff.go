package metadata

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

const (
	tiffTagImageDescription = 0x010E
	tiffTagXPSubject        = 0x9C9F
)

// typeSizes maps the TIFF field type to the byte width of a single value.
// Index 0 is unused; unknown types default to 1 so that bounds checks still
// behave sensibly on garbage input.
var tiffTypeSizes = map[uint16]int{
	1:  1, // BYTE
	2:  1, // ASCII
	3:  2, // SHORT
	4:  4, // LONG
	5:  8, // RATIONAL
	6:  1, // SBYTE
	7:  1, // UNDEFINED
	8:  2, // SSHORT
	9:  4, // SLONG
	10: 8, // SRATIONAL
	11: 4, // FLOAT
	12: 8, // DOUBLE
}

// extractTiff parses a TIFF/EXIF blob and pulls the two tags the archive
// formats actually carry: ImageDescription (0x010E) and the Windows
// XPSubject (0x9C9F, UTF-16LE).
func extractTiff(buf []byte) ExtractedMetadata {
	var meta ExtractedMetadata
	if len(buf) < 8 {
		return meta
	}

	var order binary.ByteOrder
	switch {
	case buf[0] == 'I' && buf[1] == 'I':
		order = binary.LittleEndian
	case buf[0] == 'M' && buf[1] == 'M':
		order = binary.BigEndian
	default:
		return meta
	}

	if order.Uint16(buf[2:4]) != 0x2A {
		return meta
	}

	ifdOffset := int(order.Uint32(buf[4:8]))
	if ifdOffset < 0 || ifdOffset+2 > len(buf) {
		return meta
	}

	entryCount := int(order.Uint16(buf[ifdOffset : ifdOffset+2]))
	entriesStart := ifdOffset + 2
	for i := 0; i < entryCount; i++ {
		entry := entriesStart + i*12
		if entry+12 > len(buf) {
			break
		}

		tag := order.Uint16(buf[entry : entry+2])
		fieldType := order.Uint16(buf[entry+2 : entry+4])
		count := int(order.Uint32(buf[entry+4 : entry+8]))

		typeSize, ok := tiffTypeSizes[fieldType]
		if !ok {
			typeSize = 1
		}
		totalSize := count * typeSize
		if count < 0 || totalSize < 0 {
			continue
		}

		// Values of four bytes or fewer are stored inline; larger values
		// live at the offset carried in the value field.
		var value []byte
		if totalSize <= 4 {
			value = buf[entry+8 : entry+8+totalSize]
		} else {
			valueOffset := int(order.Uint32(buf[entry+8 : entry+12]))
			if valueOffset < 0 || valueOffset+totalSize > len(buf) {
				continue
			}
			value = buf[valueOffset : valueOffset+totalSize]
		}

		switch tag {
		case tiffTagImageDescription:
			if meta.Description == "" {
				meta.Description = strings.TrimRight(decodeLegacyText(value), "\x00")
			}
		case tiffTagXPSubject:
			if meta.Subject == "" {
				meta.Subject = decodeUTF16LE(value)
			}
		}
	}

	return meta
}

// decodeUTF16LE converts a NUL-terminated UTF-16 little-endian byte slice
// (the encoding of the Windows XP* EXIF tags) to a Go string.
func decodeUTF16LE(value []byte) string {
	units := make([]uint16, 0, len(value)/2)
	for i := 0; i+1 < len(value); i += 2 {
		unit := binary.LittleEndian.Uint16(value[i : i+2])
		if unit == 0 {
			break
		}
		units = append(units, unit)
	}

	return strings.TrimSpace(string(utf16.Decode(units)))
}
