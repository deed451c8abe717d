package archive

import (
	"os"
	"path/filepath"
)

// ResolveMediaPath maps an item's relative URI to a real file beneath the
// extracted archive. Export generations disagree about whether URIs are
// relative to the archive root, the activity folder, or the category JSON
// itself, so each base is tried in order. The empty string is returned when
// no candidate exists; the caller records the item as a skip.
func ResolveMediaPath(root string, item Item) string {
	candidates := []string{
		filepath.Join(root, item.RelativeURI),
		filepath.Join(root, "your_instagram_activity", item.RelativeURI),
	}
	if item.SourceJSONPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(item.SourceJSONPath), item.RelativeURI))
	}

	for _, candidate := range candidates {
		if isReadableFile(candidate) {
			return candidate
		}
	}

	return ""
}

func isReadableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()

	return true
}
