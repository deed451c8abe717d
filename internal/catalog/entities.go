// Package catalog owns the persistent media catalog: uploaded media files
// and their folders, authors, per-username articles, and the posts/reels
// which connect imported media back to the articles that reference them.
package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/gramvault/gramvault/internal/database"
)

type (
	// MediaFormats maps a derived format key (e.g. "hls", "720p") to the
	// URL it is served from.
	MediaFormats map[string]string

	Folder struct {
		ID        uuid.UUID `db:"id"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
	}

	mediaFileBase struct {
		ID              uuid.UUID  `db:"id"`
		Name            string     `db:"name"`
		Mime            string     `db:"mime"`
		URL             string     `db:"url"`
		Caption         *string    `db:"caption"`
		AlternativeText *string    `db:"alternative_text"`
		FolderID        *uuid.UUID `db:"folder_id"`
		CreatedAt       time.Time  `db:"created_at"`
		UpdatedAt       time.Time  `db:"updated_at"`
	}

	// mediaFileModel is the row shape; the JsonColumn wrapper is hidden
	// from the public MediaFile type.
	mediaFileModel struct {
		mediaFileBase
		Formats database.JsonColumn[MediaFormats] `db:"formats"`
	}

	MediaFile struct {
		mediaFileBase
		Formats MediaFormats
	}

	Author struct {
		ID            uuid.UUID  `db:"id"`
		Name          string     `db:"name"`
		Slug          string     `db:"slug"`
		AvatarMediaID *uuid.UUID `db:"avatar_media_id"`
		CreatedAt     time.Time  `db:"created_at"`
		UpdatedAt     time.Time  `db:"updated_at"`
	}

	Article struct {
		ID          uuid.UUID  `db:"id"`
		Username    string     `db:"username"`
		Title       string     `db:"title"`
		Description string     `db:"description"`
		FirstVisit  *time.Time `db:"first_visit"`
		LastVisit   *time.Time `db:"last_visit"`
		PublishedAt *time.Time `db:"published_at"`
		CreatedAt   time.Time  `db:"created_at"`
		UpdatedAt   time.Time  `db:"updated_at"`
	}

	// ClipKind selects between the two short-form content tables. Posts
	// and reels share a schema but are catalogued separately.
	ClipKind string

	Clip struct {
		ID               uuid.UUID  `db:"id"`
		SourceID         string     `db:"source_id"`
		Title            string     `db:"title"`
		MediaID          *uuid.UUID `db:"media_id"`
		ThumbnailMediaID *uuid.UUID `db:"thumbnail_media_id"`
		TakenAt          *time.Time `db:"taken_at"`
		PublishedAt      *time.Time `db:"published_at"`
		CreatedAt        time.Time  `db:"created_at"`
		UpdatedAt        time.Time  `db:"updated_at"`
	}
)

const (
	ClipKindPost ClipKind = "post"
	ClipKindReel ClipKind = "reel"
)

func (kind ClipKind) table() string {
	if kind == ClipKindReel {
		return "reels"
	}
	return "posts"
}

func (kind ClipKind) articleJoinTable() (table string, clipColumn string) {
	if kind == ClipKindReel {
		return "article_reels", "reel_id"
	}
	return "article_posts", "post_id"
}

func mediaFileModelToMediaFile(model *mediaFileModel) *MediaFile {
	file := &MediaFile{mediaFileBase: model.mediaFileBase, Formats: MediaFormats{}}
	if formats := model.Formats.Get(); formats != nil {
		file.Formats = *formats
	}

	return file
}
