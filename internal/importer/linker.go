package importer

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gramvault/gramvault/internal/archive"
	"github.com/gramvault/gramvault/internal/catalog"
	"github.com/gramvault/gramvault/internal/database"
)

// CatalogStore is the slice of the catalog surface the importer consumes.
type CatalogStore interface {
	EnsureFolder(db database.Queryable, name string) (*catalog.Folder, error)
	GetMediaFileByName(db database.Queryable, name string) (*catalog.MediaFile, error)
	CreateMediaFile(db database.Queryable, file *catalog.MediaFile) error
	UpdateMediaFile(db database.Queryable, file *catalog.MediaFile) error

	FindAuthorByName(db database.Queryable, name string) (*catalog.Author, error)
	CreateAuthor(db database.Queryable, author *catalog.Author) error
	SetAuthorAvatarIfUnset(db database.Queryable, authorID uuid.UUID, mediaID uuid.UUID) error

	FindArticleByUsername(db database.Queryable, username string) (*catalog.Article, error)
	CreateArticle(db database.Queryable, article *catalog.Article) error
	UpdateArticleDescription(db database.Queryable, articleID uuid.UUID, description string) error
	RecordArticleVisit(db database.Queryable, articleID uuid.UUID, visit time.Time) error
	RepublishArticle(db database.Queryable, articleID uuid.UUID) error
	AttachMediaToArticle(db database.Queryable, articleID uuid.UUID, mediaID uuid.UUID, position int) error
	GetArticleMedia(db database.Queryable, articleID uuid.UUID) ([]*catalog.MediaFile, error)
	SetArticleMediaOrder(db database.Queryable, articleID uuid.UUID, orderedMediaIDs []uuid.UUID) error

	FindClipBySourceID(db database.Queryable, kind catalog.ClipKind, sourceID string) (*catalog.Clip, error)
	CreateClip(db database.Queryable, kind catalog.ClipKind, clip *catalog.Clip) error
	SetClipThumbnailIfUnset(db database.Queryable, kind catalog.ClipKind, clipID uuid.UUID, mediaID uuid.UUID) error
	ConnectClipToArticle(db database.Queryable, kind catalog.ClipKind, articleID uuid.UUID, clipID uuid.UUID) error
	RepublishClip(db database.Queryable, kind catalog.ClipKind, clipID uuid.UUID) error
}

// mentionPattern matches @handles in item titles. Handles may contain dots
// but must start and end on an alphanumeric/underscore.
var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_](?:[A-Za-z0-9_.]*[A-Za-z0-9_])?)`)

// fileTimestampPattern matches the compact timestamp embedded in target
// file names.
var fileTimestampPattern = regexp.MustCompile(`_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})`)

const fileTimestampLayout = "2006-01-02_15-04-05"

type touchedClip struct {
	kind catalog.ClipKind
	id   uuid.UUID
}

// linker builds the catalog relations for one import job. It caches the
// authors and articles it has already resolved so that a key is only ever
// created once per run, and remembers everything it touched so finalization
// can republish the lot.
type linker struct {
	store CatalogStore
	db    database.Queryable
	job   *ImportJob
	owner string

	authors  map[string]*catalog.Author
	articles map[string]*catalog.Article

	touchedArticles []uuid.UUID
	touchedClips    []touchedClip
}

func newLinker(store CatalogStore, db database.Queryable, job *ImportJob, owner string) *linker {
	return &linker{
		store:    store,
		db:       db,
		job:      job,
		owner:    owner,
		authors:  make(map[string]*catalog.Author),
		articles: make(map[string]*catalog.Article),
	}
}

// ParseMentions extracts the unique @handles of the given free text, in
// order of first appearance.
func ParseMentions(text string) []string {
	var mentions []string
	seen := make(map[string]bool)

	for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
		handle := match[1]
		if !seen[handle] {
			seen[handle] = true
			mentions = append(mentions, handle)
		}
	}

	return mentions
}

// Slugify lowercases the name, strips any @, collapses every run of
// characters outside [a-z0-9_-] to a single dash and trims dashes.
func Slugify(name string) string {
	lowered := strings.ToLower(strings.ReplaceAll(name, "@", ""))

	var builder strings.Builder
	lastDash := false
	for _, r := range lowered {
		isAllowed := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
		if isAllowed {
			builder.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			builder.WriteRune('-')
			lastDash = true
		}
	}

	return strings.Trim(builder.String(), "-")
}

// mentionsOrOwner returns the usernames an item should be linked to: the
// handles mentioned in its title, or the archive owner when none exist.
func (linker *linker) mentionsOrOwner(title string) []string {
	if mentions := ParseMentions(title); len(mentions) > 0 {
		return mentions
	}

	return []string{linker.owner}
}

// authorFor finds or creates the author for the given name. Lookup is
// case-insensitive; creation happens at most once per job.
func (linker *linker) authorFor(name string) (*catalog.Author, error) {
	key := strings.ToLower(name)
	if author, ok := linker.authors[key]; ok {
		return author, nil
	}

	author, err := linker.store.FindAuthorByName(linker.db, name)
	if errors.Is(err, catalog.ErrAuthorNotFound) {
		author = &catalog.Author{Name: name, Slug: Slugify(name)}
		if err := linker.store.CreateAuthor(linker.db, author); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	linker.authors[key] = author
	return author, nil
}

// articleFor finds or creates the article keyed by the given username.
func (linker *linker) articleFor(username string) (*catalog.Article, error) {
	if article, ok := linker.articles[username]; ok {
		return article, nil
	}

	article, err := linker.store.FindArticleByUsername(linker.db, username)
	if errors.Is(err, catalog.ErrArticleNotFound) {
		article = &catalog.Article{Username: username, Title: username}
		if err := linker.store.CreateArticle(linker.db, article); err != nil {
			return nil, err
		}

		linker.job.UpdateStats(func(stats *ImportStats) {
			stats.ArticlesCreated++
			stats.touchUsername(username)
		})
	} else if err != nil {
		return nil, err
	} else {
		linker.job.UpdateStats(func(stats *ImportStats) {
			stats.ArticlesUpdated++
			stats.touchUsername(username)
		})
	}

	linker.articles[username] = article
	linker.touchArticle(article.ID)
	return article, nil
}

// linkClip wires an uploaded post/reel media file in to the catalog: a
// find-or-create of the clip by source id, thumbnail attachment, and a
// connection to the article of every mentioned username.
func (linker *linker) linkClip(kind catalog.ClipKind, item archive.Item, media *catalog.MediaFile, thumbnailID *uuid.UUID) error {
	sourceID := strings.TrimSuffix(media.Name, fileExt(media.Name))

	clip, err := linker.store.FindClipBySourceID(linker.db, kind, sourceID)
	if errors.Is(err, catalog.ErrClipNotFound) {
		takenAt := time.Unix(item.CreationTimestamp, 0).UTC()
		clip = &catalog.Clip{
			SourceID: sourceID,
			Title:    item.Title,
			MediaID:  &media.ID,
			TakenAt:  &takenAt,
		}
		if err := linker.store.CreateClip(linker.db, kind, clip); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if thumbnailID != nil {
		if err := linker.store.SetClipThumbnailIfUnset(linker.db, kind, clip.ID, *thumbnailID); err != nil {
			return err
		}
	}

	visit := time.Unix(item.CreationTimestamp, 0).UTC()
	for _, username := range linker.mentionsOrOwner(item.Title) {
		author, err := linker.authorFor(username)
		if err != nil {
			return err
		}
		if strings.HasPrefix(media.Mime, "image/") {
			if err := linker.store.SetAuthorAvatarIfUnset(linker.db, author.ID, media.ID); err != nil {
				return err
			}
		}

		article, err := linker.articleFor(username)
		if err != nil {
			return err
		}
		if err := linker.store.ConnectClipToArticle(linker.db, kind, article.ID, clip.ID); err != nil {
			return err
		}
		if err := linker.store.RecordArticleVisit(linker.db, article.ID, visit); err != nil {
			return err
		}
	}

	linker.touchedClips = append(linker.touchedClips, touchedClip{kind: kind, id: clip.ID})
	return nil
}

// linkStory attaches a story media file directly to the mentioned articles.
// A story without mentions but with a location goes to a placeholder
// article keyed by the rounded coordinates.
func (linker *linker) linkStory(item archive.Item, media *catalog.MediaFile) error {
	usernames := ParseMentions(item.Title)
	if len(usernames) == 0 {
		if item.GPS != nil {
			usernames = []string{locationUsername(*item.GPS)}
		} else {
			usernames = []string{linker.owner}
		}
	}

	visit := time.Unix(item.CreationTimestamp, 0).UTC()
	for _, username := range usernames {
		article, err := linker.articleFor(username)
		if err != nil {
			return err
		}

		existing, err := linker.store.GetArticleMedia(linker.db, article.ID)
		if err != nil {
			return err
		}
		if err := linker.store.AttachMediaToArticle(linker.db, article.ID, media.ID, len(existing)); err != nil {
			return err
		}

		if media.AlternativeText != nil && *media.AlternativeText != "" {
			if updated, changed := appendDescriptionLine(article.Description, *media.AlternativeText); changed {
				article.Description = updated
				if err := linker.store.UpdateArticleDescription(linker.db, article.ID, updated); err != nil {
					return err
				}
			}
		}

		if err := linker.resortArticleMedia(article.ID); err != nil {
			return err
		}
		if err := linker.store.RecordArticleVisit(linker.db, article.ID, visit); err != nil {
			return err
		}
	}

	return nil
}

// resortArticleMedia rewrites the article's media ordering by the best
// known per-file timestamp. Files without a parseable timestamp in their
// name sort by their catalog creation time.
func (linker *linker) resortArticleMedia(articleID uuid.UUID) error {
	media, err := linker.store.GetArticleMedia(linker.db, articleID)
	if err != nil {
		return err
	}

	ordered := sortMediaByTimestamp(media)
	ids := make([]uuid.UUID, len(ordered))
	for i, file := range ordered {
		ids[i] = file.ID
	}

	return linker.store.SetArticleMediaOrder(linker.db, articleID, ids)
}

// finalize republishes every article and clip touched during the run so
// downstream consumers of the catalog pick the changes up. It takes its
// own Queryable so the whole batch can run inside one transaction.
func (linker *linker) finalize(db database.Queryable) error {
	for _, articleID := range linker.touchedArticles {
		if err := linker.store.RepublishArticle(db, articleID); err != nil {
			return err
		}
	}
	for _, clip := range linker.touchedClips {
		if err := linker.store.RepublishClip(db, clip.kind, clip.id); err != nil {
			return err
		}
	}

	return nil
}

func (linker *linker) touchArticle(id uuid.UUID) {
	for _, existing := range linker.touchedArticles {
		if existing == id {
			return
		}
	}

	linker.touchedArticles = append(linker.touchedArticles, id)
}

// appendDescriptionLine appends the line to the description unless the
// exact line is already present.
func appendDescriptionLine(description string, line string) (string, bool) {
	for _, existing := range strings.Split(description, "\n") {
		if existing == line {
			return description, false
		}
	}

	if description == "" {
		return line, true
	}

	return description + "\n" + line, true
}

// sortMediaByTimestamp orders media files ascending by the timestamp in
// their name, else their catalog creation time. The sort is stable so that
// equal timestamps preserve the existing order.
func sortMediaByTimestamp(media []*catalog.MediaFile) []*catalog.MediaFile {
	ordered := append([]*catalog.MediaFile(nil), media...)

	timestampOf := func(file *catalog.MediaFile) time.Time {
		if match := fileTimestampPattern.FindStringSubmatch(file.Name); match != nil {
			if ts, err := time.Parse(fileTimestampLayout, match[1]); err == nil {
				return ts
			}
		}

		return file.CreatedAt
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return timestampOf(ordered[i]).Before(timestampOf(ordered[j]))
	})

	return ordered
}

// locationUsername derives a stable placeholder article key from rounded
// coordinates, for located stories that mention nobody.
func locationUsername(gps archive.GPSCoordinate) string {
	return "location-" + Slugify(fmt.Sprintf("%.3f-%.3f", gps.Lat, gps.Lon))
}

func fileExt(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx:]
	}

	return ""
}
