// Package metadata implements hand-rolled decoders for the embedded metadata
// containers found in personal-archive media: JPEG APP13/IPTC-IIM, XMP RDF
// fragments, WebP RIFF chunks, TIFF/EXIF IFDs and ISO-BMFF (MP4) box trees.
//
// All decoders are tolerant by construction: malformed or truncated input
// never raises an error, it simply yields an empty result. The catalog never
// wants an import to fail because a phone wrote a sloppy EXIF segment.
package metadata

import (
	"bytes"
	"strings"

	"github.com/gramvault/gramvault/pkg/logger"
)

var log = logger.Get("Metadata")

// ExtractedMetadata is the transient per-file result of a metadata scan.
// Fields which could not be found are left empty.
type ExtractedMetadata struct {
	Subject     string
	Description string
	Comment     string
}

// IsZero reports whether no metadata fields were recovered at all.
func (meta *ExtractedMetadata) IsZero() bool {
	return meta.Subject == "" && meta.Description == "" && meta.Comment == ""
}

// merge copies fields from 'other' in to this record, but only where the
// destination field is currently unset.
func (meta *ExtractedMetadata) merge(other ExtractedMetadata) {
	if meta.Subject == "" {
		meta.Subject = other.Subject
	}
	if meta.Description == "" {
		meta.Description = other.Description
	}
	if meta.Comment == "" {
		meta.Comment = other.Comment
	}
}

type (
	Config struct {
		// ProbeBinPath is the path of an exiftool-compatible binary used as a
		// last resort when the native decoders find nothing. Empty disables
		// the fallback entirely.
		ProbeBinPath        string `yaml:"probe_bin_path" env:"METADATA_PROBE_BIN"`
		ProbeTimeoutSeconds int    `yaml:"probe_timeout_seconds" env:"METADATA_PROBE_TIMEOUT" env-default:"10"`
	}

	// Extractor decodes embedded metadata from raw media bytes. It is
	// stateless and safe for concurrent use.
	Extractor struct {
		config Config
	}
)

func NewExtractor(config Config) *Extractor {
	return &Extractor{config: config}
}

// Extract decodes the metadata embedded in 'buf' according to the mime type
// provided. The path, when non-empty, refers to the on-disk copy of the same
// bytes and enables the external probe fallback for image formats which
// yielded nothing natively.
//
// Extract never fails; any parse error results in an empty record.
func (extractor *Extractor) Extract(buf []byte, path string, mime string) ExtractedMetadata {
	var meta ExtractedMetadata

	switch mimeClass(mime) {
	case classJpeg:
		meta = extractJpeg(buf)
	case classWebp:
		meta = extractWebp(buf)
	case classMp4:
		meta = extractMp4(buf)
	case classXmp:
		meta = extractXmp(buf)
	default:
		return ExtractedMetadata{}
	}

	// The native decoders miss metadata written by some editors (e.g. XMP
	// packets in JPEG APP1). When an image yielded nothing and we have a real
	// file to hand, ask the external probe before giving up.
	isImage := mimeClass(mime) == classJpeg || mimeClass(mime) == classWebp
	if isImage && meta.IsZero() && path != "" {
		meta.merge(extractor.probeFile(path))
	}

	return meta
}

type mimeClassKind int

const (
	classUnknown mimeClassKind = iota
	classJpeg
	classWebp
	classMp4
	classXmp
)

func mimeClass(mime string) mimeClassKind {
	mime = strings.ToLower(mime)
	switch {
	case strings.Contains(mime, "jpeg") || strings.Contains(mime, "jpg"):
		return classJpeg
	case strings.Contains(mime, "webp"):
		return classWebp
	case strings.Contains(mime, "mp4") || strings.Contains(mime, "quicktime"):
		return classMp4
	case strings.Contains(mime, "xml"):
		return classXmp
	default:
		return classUnknown
	}
}

// GuessMime makes a best-effort mime guess from the magic bytes of the
// buffer, falling back to the file extension. Archive JSON rarely declares a
// mime type, so the import pipeline leans on this.
func GuessMime(path string, buf []byte) string {
	switch {
	case len(buf) >= 3 && bytes.Equal(buf[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(buf) >= 12 && bytes.Equal(buf[:4], []byte("RIFF")) && bytes.Equal(buf[8:12], []byte("WEBP")):
		return "image/webp"
	case len(buf) >= 12 && bytes.Equal(buf[4:8], []byte("ftyp")):
		return "video/mp4"
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".heic"):
		return "image/heic"
	case strings.HasSuffix(lower, ".mp4") || strings.HasSuffix(lower, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(lower, ".mov"):
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
