package importer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gramvault/gramvault/internal/catalog"
	"github.com/gramvault/gramvault/internal/database"
)

// memoryStore is an in-memory CatalogStore used to exercise the pipeline
// and linker without a database. The Queryable argument is ignored.
type memoryStore struct {
	folders       map[string]*catalog.Folder
	mediaByName   map[string]*catalog.MediaFile
	authorsByName map[string]*catalog.Author
	articles      map[string]*catalog.Article

	articleMedia map[uuid.UUID]map[uuid.UUID]int
	clips        map[catalog.ClipKind]map[string]*catalog.Clip
	clipLinks    map[string]bool

	republishedArticles int
	republishedClips    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		folders:       make(map[string]*catalog.Folder),
		mediaByName:   make(map[string]*catalog.MediaFile),
		authorsByName: make(map[string]*catalog.Author),
		articles:      make(map[string]*catalog.Article),
		articleMedia:  make(map[uuid.UUID]map[uuid.UUID]int),
		clips: map[catalog.ClipKind]map[string]*catalog.Clip{
			catalog.ClipKindPost: {},
			catalog.ClipKindReel: {},
		},
		clipLinks: make(map[string]bool),
	}
}

func (store *memoryStore) EnsureFolder(_ database.Queryable, name string) (*catalog.Folder, error) {
	if folder, ok := store.folders[name]; ok {
		return folder, nil
	}

	folder := &catalog.Folder{ID: uuid.New(), Name: name}
	store.folders[name] = folder
	return folder, nil
}

func (store *memoryStore) GetMediaFileByName(_ database.Queryable, name string) (*catalog.MediaFile, error) {
	if media, ok := store.mediaByName[name]; ok {
		return media, nil
	}

	return nil, catalog.ErrMediaFileNotFound
}

func (store *memoryStore) CreateMediaFile(_ database.Queryable, file *catalog.MediaFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	if _, exists := store.mediaByName[file.Name]; exists {
		return fmt.Errorf("duplicate media name %s", file.Name)
	}

	store.mediaByName[file.Name] = file
	return nil
}

func (store *memoryStore) UpdateMediaFile(_ database.Queryable, file *catalog.MediaFile) error {
	store.mediaByName[file.Name] = file
	return nil
}

func (store *memoryStore) FindAuthorByName(_ database.Queryable, name string) (*catalog.Author, error) {
	if author, ok := store.authorsByName[strings.ToLower(name)]; ok {
		return author, nil
	}

	return nil, catalog.ErrAuthorNotFound
}

func (store *memoryStore) CreateAuthor(_ database.Queryable, author *catalog.Author) error {
	if author.ID == uuid.Nil {
		author.ID = uuid.New()
	}

	store.authorsByName[strings.ToLower(author.Name)] = author
	return nil
}

func (store *memoryStore) SetAuthorAvatarIfUnset(_ database.Queryable, authorID uuid.UUID, mediaID uuid.UUID) error {
	for _, author := range store.authorsByName {
		if author.ID == authorID && author.AvatarMediaID == nil {
			author.AvatarMediaID = &mediaID
		}
	}

	return nil
}

func (store *memoryStore) FindArticleByUsername(_ database.Queryable, username string) (*catalog.Article, error) {
	if article, ok := store.articles[username]; ok {
		return article, nil
	}

	return nil, catalog.ErrArticleNotFound
}

func (store *memoryStore) CreateArticle(_ database.Queryable, article *catalog.Article) error {
	if article.ID == uuid.Nil {
		article.ID = uuid.New()
	}

	store.articles[article.Username] = article
	return nil
}

func (store *memoryStore) UpdateArticleDescription(_ database.Queryable, articleID uuid.UUID, description string) error {
	for _, article := range store.articles {
		if article.ID == articleID {
			article.Description = description
		}
	}

	return nil
}

func (store *memoryStore) RecordArticleVisit(_ database.Queryable, articleID uuid.UUID, visit time.Time) error {
	for _, article := range store.articles {
		if article.ID != articleID {
			continue
		}
		if article.FirstVisit == nil {
			visitCopy := visit
			article.FirstVisit = &visitCopy
		}
		if article.LastVisit == nil || article.LastVisit.Before(visit) {
			visitCopy := visit
			article.LastVisit = &visitCopy
		}
	}

	return nil
}

func (store *memoryStore) RepublishArticle(_ database.Queryable, _ uuid.UUID) error {
	store.republishedArticles++
	return nil
}

func (store *memoryStore) AttachMediaToArticle(_ database.Queryable, articleID uuid.UUID, mediaID uuid.UUID, position int) error {
	if store.articleMedia[articleID] == nil {
		store.articleMedia[articleID] = make(map[uuid.UUID]int)
	}
	if _, exists := store.articleMedia[articleID][mediaID]; !exists {
		store.articleMedia[articleID][mediaID] = position
	}

	return nil
}

func (store *memoryStore) GetArticleMedia(_ database.Queryable, articleID uuid.UUID) ([]*catalog.MediaFile, error) {
	type link struct {
		media    *catalog.MediaFile
		position int
	}

	var links []link
	for mediaID, position := range store.articleMedia[articleID] {
		for _, media := range store.mediaByName {
			if media.ID == mediaID {
				links = append(links, link{media, position})
			}
		}
	}

	sort.Slice(links, func(i, j int) bool {
		if links[i].position != links[j].position {
			return links[i].position < links[j].position
		}
		return links[i].media.Name < links[j].media.Name
	})

	media := make([]*catalog.MediaFile, len(links))
	for i, l := range links {
		media[i] = l.media
	}

	return media, nil
}

func (store *memoryStore) SetArticleMediaOrder(_ database.Queryable, articleID uuid.UUID, orderedMediaIDs []uuid.UUID) error {
	for position, mediaID := range orderedMediaIDs {
		if _, exists := store.articleMedia[articleID][mediaID]; exists {
			store.articleMedia[articleID][mediaID] = position
		}
	}

	return nil
}

func (store *memoryStore) FindClipBySourceID(_ database.Queryable, kind catalog.ClipKind, sourceID string) (*catalog.Clip, error) {
	if clip, ok := store.clips[kind][sourceID]; ok {
		return clip, nil
	}

	return nil, catalog.ErrClipNotFound
}

func (store *memoryStore) CreateClip(_ database.Queryable, kind catalog.ClipKind, clip *catalog.Clip) error {
	if clip.ID == uuid.Nil {
		clip.ID = uuid.New()
	}

	store.clips[kind][clip.SourceID] = clip
	return nil
}

func (store *memoryStore) SetClipThumbnailIfUnset(_ database.Queryable, kind catalog.ClipKind, clipID uuid.UUID, mediaID uuid.UUID) error {
	for _, clip := range store.clips[kind] {
		if clip.ID == clipID && clip.ThumbnailMediaID == nil {
			clip.ThumbnailMediaID = &mediaID
		}
	}

	return nil
}

func (store *memoryStore) ConnectClipToArticle(_ database.Queryable, kind catalog.ClipKind, articleID uuid.UUID, clipID uuid.UUID) error {
	store.clipLinks[fmt.Sprintf("%s/%s/%s", kind, articleID, clipID)] = true
	return nil
}

func (store *memoryStore) RepublishClip(_ database.Queryable, _ catalog.ClipKind, _ uuid.UUID) error {
	store.republishedClips++
	return nil
}
