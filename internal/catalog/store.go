package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/gramvault/gramvault/internal/database"
	"github.com/gramvault/gramvault/pkg/logger"
)

var (
	ErrMediaFileNotFound = errors.New("media file does not exist")
	ErrAuthorNotFound    = errors.New("author does not exist")
	ErrArticleNotFound   = errors.New("article does not exist")
	ErrClipNotFound      = errors.New("clip does not exist")

	log = logger.Get("CatalogStore")
)

type Store struct{}

func NewStore() *Store { return &Store{} }

// --- Folders ---

// EnsureFolder returns the folder with the given name, creating it first
// if it does not yet exist.
func (store *Store) EnsureFolder(db database.Queryable, name string) (*Folder, error) {
	if _, err := db.Exec(`
		INSERT INTO folders(id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, uuid.New(), name); err != nil {
		return nil, fmt.Errorf("failed to ensure folder %s: %w", name, err)
	}

	var folder Folder
	if err := db.Get(&folder, `SELECT * FROM folders WHERE name=$1`, name); err != nil {
		return nil, fmt.Errorf("failed to fetch folder %s: %w", name, err)
	}

	return &folder, nil
}

// --- Media files ---

func (store *Store) GetMediaFileByName(db database.Queryable, name string) (*MediaFile, error) {
	var model mediaFileModel
	if err := db.Get(&model, `SELECT * FROM media_files WHERE name=$1`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaFileNotFound
		}
		return nil, fmt.Errorf("failed to fetch media file %s: %w", name, err)
	}

	return mediaFileModelToMediaFile(&model), nil
}

func (store *Store) GetMediaFile(db database.Queryable, id uuid.UUID) (*MediaFile, error) {
	var model mediaFileModel
	if err := db.Get(&model, `SELECT * FROM media_files WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaFileNotFound
		}
		return nil, fmt.Errorf("failed to fetch media file %s: %w", id, err)
	}

	return mediaFileModelToMediaFile(&model), nil
}

func (store *Store) CreateMediaFile(db database.Queryable, file *MediaFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.Formats == nil {
		file.Formats = MediaFormats{}
	}

	if _, err := db.Exec(`
		INSERT INTO media_files(id, name, mime, url, caption, alternative_text, formats, folder_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, file.ID, file.Name, file.Mime, file.URL, file.Caption, file.AlternativeText,
		database.NewJsonColumn(file.Formats), file.FolderID,
	); err != nil {
		return fmt.Errorf("failed to insert media file %s: %w", file.Name, err)
	}

	return nil
}

// UpdateMediaFile persists the mutable columns of the media file.
func (store *Store) UpdateMediaFile(db database.Queryable, file *MediaFile) error {
	if _, err := db.Exec(`
		UPDATE media_files
		SET mime=$2, url=$3, caption=$4, alternative_text=$5, formats=$6, folder_id=$7,
		    updated_at=current_timestamp
		WHERE id=$1
	`, file.ID, file.Mime, file.URL, file.Caption, file.AlternativeText,
		database.NewJsonColumn(file.Formats), file.FolderID,
	); err != nil {
		return fmt.Errorf("failed to update media file %s: %w", file.ID, err)
	}

	return nil
}

// --- Authors ---

// FindAuthorByName performs a case-insensitive lookup; author names from
// imported captions vary in casing between archive generations.
func (store *Store) FindAuthorByName(db database.Queryable, name string) (*Author, error) {
	var author Author
	if err := db.Get(&author, `SELECT * FROM authors WHERE LOWER(name)=LOWER($1)`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuthorNotFound
		}
		return nil, fmt.Errorf("failed to fetch author %s: %w", name, err)
	}

	return &author, nil
}

func (store *Store) CreateAuthor(db database.Queryable, author *Author) error {
	if author.ID == uuid.Nil {
		author.ID = uuid.New()
	}

	if _, err := db.Exec(`
		INSERT INTO authors(id, name, slug) VALUES ($1, $2, $3)
	`, author.ID, author.Name, author.Slug); err != nil {
		return fmt.Errorf("failed to insert author %s: %w", author.Name, err)
	}

	return nil
}

// SetAuthorAvatarIfUnset attaches an avatar to the author unless one is
// already present; re-imports never clobber an existing avatar.
func (store *Store) SetAuthorAvatarIfUnset(db database.Queryable, authorID uuid.UUID, mediaID uuid.UUID) error {
	if _, err := db.Exec(`
		UPDATE authors SET avatar_media_id=$2, updated_at=current_timestamp
		WHERE id=$1 AND avatar_media_id IS NULL
	`, authorID, mediaID); err != nil {
		return fmt.Errorf("failed to set avatar for author %s: %w", authorID, err)
	}

	return nil
}

// --- Articles ---

func (store *Store) FindArticleByUsername(db database.Queryable, username string) (*Article, error) {
	var article Article
	if err := db.Get(&article, `SELECT * FROM articles WHERE username=$1`, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("failed to fetch article for %s: %w", username, err)
	}

	return &article, nil
}

func (store *Store) CreateArticle(db database.Queryable, article *Article) error {
	if article.ID == uuid.Nil {
		article.ID = uuid.New()
	}

	if _, err := db.Exec(`
		INSERT INTO articles(id, username, title, description, first_visit, last_visit)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, article.ID, article.Username, article.Title, article.Description,
		article.FirstVisit, article.LastVisit,
	); err != nil {
		return fmt.Errorf("failed to insert article for %s: %w", article.Username, err)
	}

	return nil
}

func (store *Store) UpdateArticleDescription(db database.Queryable, articleID uuid.UUID, description string) error {
	if _, err := db.Exec(`
		UPDATE articles SET description=$2, updated_at=current_timestamp WHERE id=$1
	`, articleID, description); err != nil {
		return fmt.Errorf("failed to update description of article %s: %w", articleID, err)
	}

	return nil
}

// RecordArticleVisit folds a visit timestamp in to the article: first_visit
// is only ever set once, last_visit only ever moves forward.
func (store *Store) RecordArticleVisit(db database.Queryable, articleID uuid.UUID, visit time.Time) error {
	if _, err := db.Exec(`
		UPDATE articles
		SET first_visit=COALESCE(first_visit, $2),
		    last_visit=GREATEST(COALESCE(last_visit, $2), $2),
		    updated_at=current_timestamp
		WHERE id=$1
	`, articleID, visit); err != nil {
		return fmt.Errorf("failed to record visit on article %s: %w", articleID, err)
	}

	return nil
}

// RepublishArticle stamps published_at so downstream consumers pick the
// article up as freshly changed.
func (store *Store) RepublishArticle(db database.Queryable, articleID uuid.UUID) error {
	if _, err := db.Exec(`
		UPDATE articles SET published_at=current_timestamp, updated_at=current_timestamp WHERE id=$1
	`, articleID); err != nil {
		return fmt.Errorf("failed to republish article %s: %w", articleID, err)
	}

	return nil
}

// AttachMediaToArticle links a media file to an article at the given
// position. Attaching an already-linked file is a no-op.
func (store *Store) AttachMediaToArticle(db database.Queryable, articleID uuid.UUID, mediaID uuid.UUID, position int) error {
	if _, err := db.Exec(`
		INSERT INTO article_media(article_id, media_id, position) VALUES ($1, $2, $3)
		ON CONFLICT (article_id, media_id) DO NOTHING
	`, articleID, mediaID, position); err != nil {
		return fmt.Errorf("failed to attach media %s to article %s: %w", mediaID, articleID, err)
	}

	return nil
}

// GetArticleMedia returns the article's media files in position order.
func (store *Store) GetArticleMedia(db database.Queryable, articleID uuid.UUID) ([]*MediaFile, error) {
	query, args, err := squirrel.
		Select("media_files.*").
		From("media_files").
		Join("article_media ON article_media.media_id = media_files.id").
		Where(squirrel.Eq{"article_media.article_id": articleID}).
		OrderBy("article_media.position ASC", "media_files.name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct article media query: %w", err)
	}

	var models []mediaFileModel
	if err := db.Select(&models, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to fetch media of article %s: %w", articleID, err)
	}

	files := make([]*MediaFile, len(models))
	for i := range models {
		files[i] = mediaFileModelToMediaFile(&models[i])
	}

	return files, nil
}

// SetArticleMediaOrder rewrites the positions of the article's media links
// to match the given ordering. Media absent from the slice are untouched.
func (store *Store) SetArticleMediaOrder(db database.Queryable, articleID uuid.UUID, orderedMediaIDs []uuid.UUID) error {
	for position, mediaID := range orderedMediaIDs {
		if _, err := db.Exec(`
			UPDATE article_media SET position=$3 WHERE article_id=$1 AND media_id=$2
		`, articleID, mediaID, position); err != nil {
			return fmt.Errorf("failed to reorder media of article %s: %w", articleID, err)
		}
	}

	return nil
}

// --- Posts and reels ---

func (store *Store) FindClipBySourceID(db database.Queryable, kind ClipKind, sourceID string) (*Clip, error) {
	var clip Clip
	query := fmt.Sprintf(`SELECT * FROM %s WHERE source_id=$1`, kind.table())
	if err := db.Get(&clip, query, sourceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClipNotFound
		}
		return nil, fmt.Errorf("failed to fetch %s %s: %w", kind, sourceID, err)
	}

	return &clip, nil
}

func (store *Store) CreateClip(db database.Queryable, kind ClipKind, clip *Clip) error {
	if clip.ID == uuid.Nil {
		clip.ID = uuid.New()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s(id, source_id, title, media_id, thumbnail_media_id, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, kind.table())
	if _, err := db.Exec(query, clip.ID, clip.SourceID, clip.Title,
		clip.MediaID, clip.ThumbnailMediaID, clip.TakenAt,
	); err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", kind, clip.SourceID, err)
	}

	return nil
}

// SetClipThumbnailIfUnset attaches a thumbnail unless one exists already.
func (store *Store) SetClipThumbnailIfUnset(db database.Queryable, kind ClipKind, clipID uuid.UUID, mediaID uuid.UUID) error {
	query := fmt.Sprintf(`
		UPDATE %s SET thumbnail_media_id=$2, updated_at=current_timestamp
		WHERE id=$1 AND thumbnail_media_id IS NULL
	`, kind.table())
	if _, err := db.Exec(query, clipID, mediaID); err != nil {
		return fmt.Errorf("failed to set thumbnail of %s %s: %w", kind, clipID, err)
	}

	return nil
}

// ConnectClipToArticle links the clip to the article; idempotent.
func (store *Store) ConnectClipToArticle(db database.Queryable, kind ClipKind, articleID uuid.UUID, clipID uuid.UUID) error {
	joinTable, clipColumn := kind.articleJoinTable()
	query := fmt.Sprintf(`
		INSERT INTO %s(article_id, %s) VALUES ($1, $2)
		ON CONFLICT (article_id, %s) DO NOTHING
	`, joinTable, clipColumn, clipColumn)
	if _, err := db.Exec(query, articleID, clipID); err != nil {
		return fmt.Errorf("failed to connect %s %s to article %s: %w", kind, clipID, articleID, err)
	}

	return nil
}

// RepublishClip stamps published_at on the clip.
func (store *Store) RepublishClip(db database.Queryable, kind ClipKind, clipID uuid.UUID) error {
	query := fmt.Sprintf(`
		UPDATE %s SET published_at=current_timestamp, updated_at=current_timestamp WHERE id=$1
	`, kind.table())
	if _, err := db.Exec(query, clipID); err != nil {
		return fmt.Errorf("failed to republish %s %s: %w", kind, clipID, err)
	}

	log.Debugf("republished %s %s\n", kind, clipID)
	return nil
}
