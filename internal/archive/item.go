// Package archive understands the on-disk layout of extracted personal
// archive exports: locating the per-category JSON files, decoding their
// items, and resolving item URIs back to real media files.
//
// Export layouts vary wildly by export date and account locale, so nearly
// everything in this package is written as a series of fallbacks.
package archive

import (
	"encoding/json"
	"os"
	"sort"
)

type (
	// GPSCoordinate is the optional location attached to an archive item.
	GPSCoordinate struct {
		Lat float64
		Lon float64
	}

	// Item is a single media entry from a category JSON file. Items are
	// read-only and live only for the duration of one import job.
	Item struct {
		RelativeURI       string
		CreationTimestamp int64
		Title             string
		GPS               *GPSCoordinate

		// SourceJSONPath is the category file this item was read from; the
		// resolver uses it as a last-resort base for relative URIs.
		SourceJSONPath string
	}
)

// rawItem mirrors the shapes we have observed across export generations.
// Entries are either flat media records, or carriers with a nested 'media'
// array whose own entries are flat records.
type (
	rawExif struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}

	rawExifContainer struct {
		ExifData []rawExif `json:"exif_data"`
	}

	rawMediaMetadata struct {
		PhotoMetadata *rawExifContainer `json:"photo_metadata"`
		VideoMetadata *rawExifContainer `json:"video_metadata"`
	}

	rawItem struct {
		URI               string            `json:"uri"`
		CreationTimestamp int64             `json:"creation_timestamp"`
		Title             string            `json:"title"`
		Latitude          *float64          `json:"latitude"`
		Longitude         *float64          `json:"longitude"`
		MediaMetadata     *rawMediaMetadata `json:"media_metadata"`
		Media             []rawItem         `json:"media"`
	}
)

// ReadItems loads and flattens the items of a category JSON file. The file
// may be a bare top-level array, or an object wrapping the array under an
// arbitrary (often localized) key - in which case the first array-valued
// field wins.
//
// The returned items are sorted ascending by creation timestamp so that
// downstream processing preserves chronological catalog order.
func ReadItems(jsonPath string) ([]Item, error) {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}

	entries, err := decodeItemArray(raw)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		items = append(items, flattenEntry(entry, jsonPath)...)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreationTimestamp < items[j].CreationTimestamp
	})

	return items, nil
}

func decodeItemArray(raw []byte) ([]rawItem, error) {
	var entries []rawItem
	if err := json.Unmarshal(raw, &entries); err == nil {
		return entries, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, err
	}

	// Wrapped-object form: iterate keys deterministically and take the
	// first field that decodes as an item array.
	keys := make([]string, 0, len(wrapper))
	for key := range wrapper {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var candidate []rawItem
		if err := json.Unmarshal(wrapper[key], &candidate); err == nil {
			return candidate, nil
		}
	}

	return []rawItem{}, nil
}

// flattenEntry converts one raw archive entry in to zero or more Items. A
// carrier entry contributes its own title to any nested media records which
// lack one.
func flattenEntry(entry rawItem, jsonPath string) []Item {
	if len(entry.Media) > 0 {
		items := make([]Item, 0, len(entry.Media))
		for _, nested := range entry.Media {
			if nested.Title == "" {
				nested.Title = entry.Title
			}
			items = append(items, flattenEntry(nested, jsonPath)...)
		}

		return items
	}

	if entry.URI == "" {
		return nil
	}

	return []Item{{
		RelativeURI:       entry.URI,
		CreationTimestamp: entry.CreationTimestamp,
		Title:             entry.Title,
		GPS:               entry.gps(),
		SourceJSONPath:    jsonPath,
	}}
}

// gps digs the location out of whichever of the observed shapes carries it.
func (entry *rawItem) gps() *GPSCoordinate {
	if entry.Latitude != nil && entry.Longitude != nil {
		return &GPSCoordinate{Lat: *entry.Latitude, Lon: *entry.Longitude}
	}

	if entry.MediaMetadata == nil {
		return nil
	}

	for _, container := range []*rawExifContainer{entry.MediaMetadata.PhotoMetadata, entry.MediaMetadata.VideoMetadata} {
		if container == nil {
			continue
		}
		for _, exif := range container.ExifData {
			if exif.Latitude != nil && exif.Longitude != nil {
				return &GPSCoordinate{Lat: *exif.Latitude, Lon: *exif.Longitude}
			}
		}
	}

	return nil
}
