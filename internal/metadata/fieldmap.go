package metadata

// MediaFields are the catalog-facing fields derived from extracted
// metadata. Empty fields must be left alone by callers so that values
// already present on a media file are never clobbered.
type MediaFields struct {
	Caption         string
	AlternativeText string
}

// MapFields translates an ExtractedMetadata record in to catalog caption and
// alt-text according to the mime class of the file. Images favour the IPTC
// subject for the caption; videos use the container comment. Anything else
// yields nothing.
func MapFields(meta ExtractedMetadata, mime string) MediaFields {
	switch mimeClass(mime) {
	case classJpeg, classWebp:
		return MediaFields{Caption: meta.Subject, AlternativeText: meta.Description}
	case classMp4:
		return MediaFields{Caption: meta.Comment, AlternativeText: meta.Description}
	default:
		return MediaFields{}
	}
}
