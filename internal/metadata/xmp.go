package metadata

import (
	"regexp"
	"strings"
)

var (
	xmpMetaPattern = regexp.MustCompile(`(?s)<x:xmpmeta.*?</x:xmpmeta>`)
	xmpTagPattern  = regexp.MustCompile(`<[^>]*>`)
	rdfLiPattern   = regexp.MustCompile(`(?s)<rdf:li[^>]*>(.*?)</rdf:li>`)
)

// extractXmp pulls dc:description, dc:subject and xmp:Comment out of an XMP
// RDF/XML fragment. The buffer may be a bare packet or a larger blob with the
// <x:xmpmeta> envelope embedded somewhere inside it.
func extractXmp(buf []byte) ExtractedMetadata {
	var meta ExtractedMetadata

	document := string(buf)
	if match := xmpMetaPattern.FindString(document); match != "" {
		document = match
	}

	if block := xmlElementContent(document, "dc:description"); block != "" {
		if items := rdfListItems(block); len(items) > 0 {
			meta.Description = items[0]
		} else {
			meta.Description = strippedText(block)
		}
	}

	if block := xmlElementContent(document, "dc:subject"); block != "" {
		if items := rdfListItems(block); len(items) > 0 {
			meta.Subject = strings.Join(items, ", ")
		} else {
			meta.Subject = strippedText(block)
		}
	}

	if block := xmlElementContent(document, "xmp:Comment"); block != "" {
		meta.Comment = strippedText(block)
	}

	return meta
}

// xmlElementContent returns the inner content of the first occurrence of the
// named element, or the empty string when the element is absent or unclosed.
func xmlElementContent(document string, name string) string {
	open := regexp.MustCompile(`<` + regexp.QuoteMeta(name) + `(\s[^>]*)?>`)
	loc := open.FindStringIndex(document)
	if loc == nil {
		return ""
	}

	closing := "</" + name + ">"
	end := strings.Index(document[loc[1]:], closing)
	if end < 0 {
		return ""
	}

	return document[loc[1] : loc[1]+end]
}

// rdfListItems returns the stripped text of every rdf:li element in the block.
func rdfListItems(block string) []string {
	matches := rdfLiPattern.FindAllStringSubmatch(block, -1)
	items := make([]string, 0, len(matches))
	for _, match := range matches {
		if text := strippedText(match[1]); text != "" {
			items = append(items, text)
		}
	}

	return items
}

// strippedText removes any remaining markup from the fragment, decodes the
// five predefined XML entities and trims surrounding whitespace.
func strippedText(fragment string) string {
	text := xmpTagPattern.ReplaceAllString(fragment, "")
	return strings.TrimSpace(decodeXMLEntities(text))
}

var xmlEntityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

func decodeXMLEntities(text string) string {
	return xmlEntityReplacer.Replace(text)
}
