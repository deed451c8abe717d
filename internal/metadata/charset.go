package metadata

import (
	"strings"
	"unicode/utf8"
)

// The Windows-1252 mappings for the 0x80-0x9F range, which differ from
// ISO-8859-1. Zero entries are undefined codepoints and map to U+FFFD.
var cp1252High = [32]rune{
	0x20AC, 0xFFFD, 0x201A, 0x0192, 0x201E, 0x2026, 0x2020, 0x2021,
	0x02C6, 0x2030, 0x0160, 0x2039, 0x0152, 0xFFFD, 0x017D, 0xFFFD,
	0xFFFD, 0x2018, 0x2019, 0x201C, 0x201D, 0x2022, 0x2013, 0x2014,
	0x02DC, 0x2122, 0x0161, 0x203A, 0x0153, 0xFFFD, 0x017E, 0x0178,
}

// decodeLegacyText interprets a legacy metadata byte string. UTF-8 is
// attempted first; if the result is invalid or smells like mojibake the
// bytes are re-read as Windows-1252 (a superset of Latin-1 for the bytes
// these archives actually contain).
func decodeLegacyText(value []byte) string {
	trimmed := strings.TrimRight(string(value), "\x00")
	if utf8.ValidString(trimmed) && !looksLikeMojibake(trimmed) {
		return strings.TrimSpace(trimmed)
	}

	return strings.TrimSpace(decodeWindows1252([]byte(trimmed)))
}

// looksLikeMojibake is a best-effort detector for strings that decoded as
// UTF-8 but were never UTF-8 to begin with: the replacement character, or
// the telltale 'Ã'/'Â' lead bytes produced by double-encoding.
func looksLikeMojibake(text string) bool {
	if strings.ContainsRune(text, utf8.RuneError) {
		return true
	}

	runes := []rune(text)
	for i := 0; i+1 < len(runes); i++ {
		if (runes[i] == 'Ã' || runes[i] == 'Â') && runes[i+1] >= 0x80 && runes[i+1] <= 0xBF {
			return true
		}
	}

	return false
}

func decodeWindows1252(value []byte) string {
	var sb strings.Builder
	sb.Grow(len(value))
	for _, b := range value {
		switch {
		case b >= 0x80 && b <= 0x9F:
			sb.WriteRune(cp1252High[b-0x80])
		default:
			sb.WriteRune(rune(b))
		}
	}

	return sb.String()
}
