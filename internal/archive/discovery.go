package archive

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gramvault/gramvault/pkg/logger"
)

var log = logger.Get("Archive")

type (
	// Category is one of the three content buckets inside an archive.
	Category string

	// CategoryDiscovery records where the JSON file for one category was
	// found. At most one discovery exists per category; first found wins.
	CategoryDiscovery struct {
		Category Category
		JSONPath string
	}
)

const (
	CategoryPosts   Category = "posts"
	CategoryReels   Category = "reels"
	CategoryStories Category = "stories"

	// Heuristic scan refuses to parse JSON files above this size; category
	// metadata files are small, anything bigger is message history or
	// similar bulk data.
	heuristicScanMaxFileSize = 25 * 1024 * 1024
)

var allCategories = []Category{CategoryPosts, CategoryReels, CategoryStories}

// DiscoverCategories locates the per-category JSON files beneath the
// extracted archive root. Three tiers of fallback are applied per category:
// conventional paths, a recursive filename search, and finally a content
// heuristic over every JSON file in the tree. Layouts vary by export date
// and locale, which is why all three exist.
func DiscoverCategories(root string) []CategoryDiscovery {
	found := make(map[Category]string)

	for _, category := range allCategories {
		if path := probeConventionalPaths(root, category); path != "" {
			found[category] = path
			continue
		}
		if path := searchTreeForCategory(root, category); path != "" {
			found[category] = path
		}
	}

	if len(found) < len(allCategories) {
		heuristicScan(root, found)
	}

	discoveries := make([]CategoryDiscovery, 0, len(found))
	for _, category := range allCategories {
		if path, ok := found[category]; ok {
			log.Debugf("category %s discovered at %s\n", category, path)
			discoveries = append(discoveries, CategoryDiscovery{Category: category, JSONPath: path})
		}
	}

	return discoveries
}

// probeConventionalPaths checks the well-known locations used by recent
// export generations, including the numbered-file variants that appear when
// a category spans multiple JSON files.
func probeConventionalPaths(root string, category Category) string {
	bases := []string{
		filepath.Join(root, "your_instagram_activity", "content"),
		filepath.Join(root, "your_instagram_activity", "media"),
		filepath.Join(root, "content"),
	}

	for _, base := range bases {
		candidates := []string{
			filepath.Join(base, string(category)+".json"),
			filepath.Join(base, string(category)+"_1.json"),
		}
		for _, candidate := range candidates {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}

	return ""
}

// searchTreeForCategory walks the archive looking for a file whose name
// matches '{category}(_N)?.json' anywhere in the tree.
func searchTreeForCategory(root string, category Category) string {
	pattern := regexp.MustCompile(`^` + string(category) + `(_\d+)?\.json$`)

	var match string
	filepath.WalkDir(root, func(path string, dir fs.DirEntry, err error) error {
		if err != nil || match != "" {
			return filepath.SkipAll
		}
		if !dir.IsDir() && pattern.MatchString(dir.Name()) {
			match = path
			return filepath.SkipAll
		}

		return nil
	})

	return match
}

// heuristicScan inspects every JSON file under the root that is not already
// claimed, parses it, and classifies it as archive media when a sample of
// its entries carries both a URI-like and a timestamp-like field. This is
// the tier that rescues archives with fully localized file names.
func heuristicScan(root string, found map[Category]string) {
	claimed := make(map[string]bool, len(found))
	for _, path := range found {
		claimed[path] = true
	}

	filepath.WalkDir(root, func(path string, dir fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if dir.IsDir() || claimed[path] || !strings.HasSuffix(strings.ToLower(dir.Name()), ".json") {
			return nil
		}
		if info, err := dir.Info(); err != nil || info.Size() > heuristicScanMaxFileSize {
			return nil
		}

		samples, ok := sampleJSONFile(path)
		if !ok || !samplesLookLikeArchiveMedia(samples) {
			return nil
		}

		category := classifyCategory(path, samples)
		if _, taken := found[category]; taken {
			return nil
		}

		log.Infof("heuristic scan classified %s as category %s\n", path, category)
		found[category] = path
		claimed[path] = true
		return nil
	})
}

// sampleJSONFile parses the file and returns up to five entries from its
// first top-level array field (or from the document itself when the
// document is a bare array).
func sampleJSONFile(path string) ([]map[string]json.RawMessage, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, false
		}

		for _, value := range wrapper {
			if err := json.Unmarshal(value, &entries); err == nil {
				break
			}
		}
	}

	if len(entries) > 5 {
		entries = entries[:5]
	}

	return entries, len(entries) > 0
}

// samplesLookLikeArchiveMedia reports whether any sampled entry carries
// both a URI-like and a timestamp-like field (possibly nested one level
// down inside a 'media' array).
func samplesLookLikeArchiveMedia(samples []map[string]json.RawMessage) bool {
	for _, sample := range samples {
		if entryLooksLikeMedia(sample) {
			return true
		}

		if rawMedia, ok := sample["media"]; ok {
			var nested []map[string]json.RawMessage
			if err := json.Unmarshal(rawMedia, &nested); err == nil {
				for _, entry := range nested {
					if entryLooksLikeMedia(entry) {
						return true
					}
				}
			}
		}
	}

	return false
}

func entryLooksLikeMedia(entry map[string]json.RawMessage) bool {
	hasURI := false
	hasTimestamp := false

	for key, value := range entry {
		lowered := strings.ToLower(key)
		switch {
		case strings.Contains(lowered, "uri") || strings.Contains(lowered, "path"):
			var str string
			if err := json.Unmarshal(value, &str); err == nil && str != "" {
				hasURI = true
			}
		case strings.Contains(lowered, "timestamp") || strings.Contains(lowered, "taken_at"):
			var num float64
			if err := json.Unmarshal(value, &num); err == nil && num > 0 {
				hasTimestamp = true
			}
		}
	}

	return hasURI && hasTimestamp
}

// classifyCategory decides which category a heuristically discovered file
// belongs to, from hints in its path and the URIs of its entries.
func classifyCategory(path string, samples []map[string]json.RawMessage) Category {
	hints := strings.ToLower(path)
	for _, sample := range samples {
		if rawURI, ok := sample["uri"]; ok {
			var uri string
			if json.Unmarshal(rawURI, &uri) == nil {
				hints += " " + strings.ToLower(uri)
			}
		}
	}

	switch {
	case strings.Contains(hints, "reel") || strings.Contains(hints, "clips"):
		return CategoryReels
	case strings.Contains(hints, "storie"):
		return CategoryStories
	default:
		return CategoryPosts
	}
}

func (c Category) String() string { return string(c) }

// ParseCategory converts a string to a known Category.
func ParseCategory(value string) (Category, error) {
	for _, category := range allCategories {
		if string(category) == value {
			return category, nil
		}
	}

	return "", fmt.Errorf("unknown archive category %q", value)
}
