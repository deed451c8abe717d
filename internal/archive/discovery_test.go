package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const sampleItemsJSON = `[{"uri":"media/posts/a.jpg","creation_timestamp":1700000000,"title":"hello"}]`

func TestDiscoverConventionalLayout(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "your_instagram_activity", "content", "posts.json"), sampleItemsJSON)
	writeFile(t, filepath.Join(root, "your_instagram_activity", "content", "reels.json"), sampleItemsJSON)

	discoveries := DiscoverCategories(root)
	require.Len(t, discoveries, 2)
	assert.Equal(t, CategoryPosts, discoveries[0].Category)
	assert.Equal(t, CategoryReels, discoveries[1].Category)
}

func TestDiscoverNumberedVariant(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "content", "posts_1.json"), sampleItemsJSON)

	discoveries := DiscoverCategories(root)
	require.Len(t, discoveries, 1)
	assert.Equal(t, CategoryPosts, discoveries[0].Category)
	assert.Equal(t, filepath.Join(root, "content", "posts_1.json"), discoveries[0].JSONPath)
}

func TestDiscoverRecursiveFilenameSearch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "some", "nested", "place", "stories.json"), sampleItemsJSON)

	discoveries := DiscoverCategories(root)
	require.Len(t, discoveries, 1)
	assert.Equal(t, CategoryStories, discoveries[0].Category)
}

func TestDiscoverHeuristicLocalizedNames(t *testing.T) {
	// Localized export: the file names give nothing away, only the content
	// and the URIs inside it do.
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "inhalt", "beitraege.json"),
		`[{"uri":"media/posts/202311/a.jpg","creation_timestamp":1700000000,"title":"x"}]`)
	writeFile(t, filepath.Join(root, "inhalt", "geschichten.json"),
		`{"ig_stories":[{"uri":"media/stories/202311/b.mp4","creation_timestamp":1700000001}]}`)

	discoveries := DiscoverCategories(root)
	require.Len(t, discoveries, 2)

	byCategory := make(map[Category]string)
	for _, d := range discoveries {
		byCategory[d.Category] = d.JSONPath
	}
	assert.Contains(t, byCategory[CategoryPosts], "beitraege.json")
	assert.Contains(t, byCategory[CategoryStories], "geschichten.json")
}

func TestDiscoverIgnoresNonMediaJSON(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "settings.json"), `{"theme":"dark","language":"en"}`)
	writeFile(t, filepath.Join(root, "followers.json"), `[{"name":"someone","href":"https://example.com"}]`)

	discoveries := DiscoverCategories(root)
	assert.Empty(t, discoveries)
}

func TestDiscoverEmptyArchive(t *testing.T) {
	discoveries := DiscoverCategories(t.TempDir())
	assert.Empty(t, discoveries)
}

func TestParseCategory(t *testing.T) {
	category, err := ParseCategory("reels")
	require.NoError(t, err)
	assert.Equal(t, CategoryReels, category)

	_, err = ParseCategory("bogus")
	assert.Error(t, err)
}
