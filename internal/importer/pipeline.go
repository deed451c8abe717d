package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gramvault/gramvault/internal/archive"
	"github.com/gramvault/gramvault/internal/catalog"
	"github.com/gramvault/gramvault/internal/database"
	"github.com/gramvault/gramvault/internal/event"
	"github.com/gramvault/gramvault/internal/ffmpeg"
	"github.com/gramvault/gramvault/internal/metadata"
)

// libraryFolderName is the catalog folder all imported archive media is
// filed under.
const libraryFolderName = "instagram"

// itemOutcome classifies the result of processing one archive item. The
// orchestrator maps outcomes on to the job's stat counters; per-item
// failures never escalate beyond a counter and a log line.
type itemOutcome int

const (
	outcomeUploaded itemOutcome = iota
	outcomeSkippedExisting
	outcomeMissingMedia
	outcomeUploadError
)

// pipeline owns the per-item work of an import run: resolving the item's
// media on disk, uploading it in to the catalog, deriving video formats
// and handing the result to the linker.
type pipeline struct {
	store      CatalogStore
	library    *catalog.Library
	transcoder *ffmpeg.Transcoder
	extractor  *metadata.Extractor
	eventBus   event.EventDispatcher
	variants   []ffmpeg.VariantConfig
	owner      string
}

// run processes every discovered category of one extracted archive. Item
// counts are gathered up front so upload progress can interpolate over the
// whole job rather than per category.
func (pipeline *pipeline) run(ctx context.Context, job *ImportJob, db database.Queryable, extractRoot string, discoveries []archive.CategoryDiscovery) (*linker, error) {
	folder, err := pipeline.store.EnsureFolder(db, libraryFolderName)
	if err != nil {
		return nil, err
	}

	linker := newLinker(pipeline.store, db, job, pipeline.owner)

	itemsByCategory := make(map[archive.Category][]archive.Item, len(discoveries))
	for _, discovery := range discoveries {
		items, err := archive.ReadItems(discovery.JSONPath)
		if err != nil {
			job.Message(fmt.Sprintf("Could not read %s metadata (%s); category skipped", discovery.Category, err))
			continue
		}

		itemsByCategory[discovery.Category] = items
		job.UpdateStats(func(stats *ImportStats) {
			stats.ItemsTotal += len(items)
			categoryStats := stats.categoryStats(discovery.Category.String())
			categoryStats.Items += len(items)
			if len(items) > 0 {
				categoryStats.EarliestTimestamp = items[0].CreationTimestamp
			}
		})
	}

	total := job.Snapshot().Stats.ItemsTotal
	uploaded := 0

	for _, discovery := range discoveries {
		items := itemsByCategory[discovery.Category]
		for _, item := range items {
			outcome := pipeline.processItem(ctx, job, db, linker, folder, discovery.Category, extractRoot, item)

			job.UpdateStats(func(stats *ImportStats) {
				switch outcome {
				case outcomeUploaded:
					stats.Uploaded++
					stats.categoryStats(discovery.Category.String()).Uploaded++
				case outcomeMissingMedia:
					stats.SkippedMissingMedia++
				case outcomeUploadError:
					stats.UploadErrors++
				}
			})

			if outcome == outcomeUploaded {
				uploaded++
			}
			job.SetUploadProgress(uploaded, total)
		}

		job.Message(fmt.Sprintf("Finished category %s (%d items)", discovery.Category, len(items)))
	}

	return linker, nil
}

// processItem handles one archive item end to end. Every failure path is
// folded in to an outcome; nothing an individual item does can fail the job.
func (pipeline *pipeline) processItem(ctx context.Context, job *ImportJob, db database.Queryable, linker *linker, folder *catalog.Folder, category archive.Category, extractRoot string, item archive.Item) itemOutcome {
	targetName := pipeline.targetName(item)

	if _, err := pipeline.store.GetMediaFileByName(db, targetName); err == nil {
		// Already catalogued by a previous run.
		return outcomeSkippedExisting
	} else if !errors.Is(err, catalog.ErrMediaFileNotFound) {
		job.Message(fmt.Sprintf("Lookup of %s failed: %s", targetName, err))
		return outcomeUploadError
	}

	sourcePath := archive.ResolveMediaPath(extractRoot, item)
	if sourcePath == "" {
		job.Message(fmt.Sprintf("Media for %s not found in archive", item.RelativeURI))
		return outcomeMissingMedia
	}

	buf, err := os.ReadFile(sourcePath)
	if err != nil {
		job.Message(fmt.Sprintf("Could not read %s: %s", sourcePath, err))
		return outcomeUploadError
	}

	mime := metadata.GuessMime(sourcePath, buf)
	fields := metadata.MapFields(pipeline.extractor.Extract(buf, sourcePath, mime), mime)

	diskPath, url, err := pipeline.library.StoreFile(sourcePath, folder.Name, targetName)
	if err != nil {
		job.Message(fmt.Sprintf("Upload of %s failed: %s", targetName, err))
		return outcomeUploadError
	}

	media := &catalog.MediaFile{Formats: catalog.MediaFormats{}}
	media.Name = targetName
	media.Mime = mime
	media.URL = url
	media.FolderID = &folder.ID
	if caption := firstNonEmpty(item.Title, fields.Caption); caption != "" {
		media.Caption = &caption
	}
	if alt := firstNonEmpty(fields.AlternativeText, item.Title); alt != "" {
		media.AlternativeText = &alt
	}

	if err := pipeline.store.CreateMediaFile(db, media); err != nil {
		job.Message(fmt.Sprintf("Cataloguing %s failed: %s", targetName, err))
		return outcomeUploadError
	}
	pipeline.eventBus.Dispatch(event.NewMediaEvent, media.ID)

	var thumbnailID *uuid.UUID
	if strings.HasPrefix(mime, "video/") {
		thumbnailID = pipeline.deriveVideoFormats(ctx, job, db, folder, media, diskPath)
	}

	var linkErr error
	switch category {
	case archive.CategoryPosts:
		linkErr = linker.linkClip(catalog.ClipKindPost, item, media, thumbnailID)
	case archive.CategoryReels:
		linkErr = linker.linkClip(catalog.ClipKindReel, item, media, thumbnailID)
	case archive.CategoryStories:
		linkErr = linker.linkStory(item, media)
	}
	if linkErr != nil {
		job.Message(fmt.Sprintf("Linking %s failed: %s", targetName, linkErr))
		return outcomeUploadError
	}

	return outcomeUploaded
}

// deriveVideoFormats generates the HLS stream, configured resolution
// variants and a representative thumbnail for an uploaded video. All
// derivation failures are logged and tolerated; the original upload stands
// on its own.
func (pipeline *pipeline) deriveVideoFormats(ctx context.Context, job *ImportJob, db database.Queryable, folder *catalog.Folder, media *catalog.MediaFile, diskPath string) *uuid.UUID {
	derivedDir, err := pipeline.library.DerivedDir(folder.Name, media.Name)
	if err != nil {
		job.Message(fmt.Sprintf("Could not create derived dir for %s: %s", media.Name, err))
		return nil
	}

	changed := false
	if _, ok := media.Formats["hls"]; !ok {
		if playlist, err := pipeline.transcoder.GenerateHLS(ctx, diskPath, filepath.Join(derivedDir, "hls")); err != nil {
			job.Message(fmt.Sprintf("HLS generation for %s failed: %s", media.Name, err))
		} else {
			media.Formats["hls"] = pipeline.library.DerivedURL(playlist)
			changed = true
		}
	}

	sourceHeight := 0
	if probed, err := pipeline.transcoder.ProbeFile(diskPath); err != nil {
		job.Message(fmt.Sprintf("Could not probe %s (%s); attempting all variants", media.Name, err))
	} else {
		sourceHeight = ffmpeg.SourceHeight(probed)
	}

	for _, variant := range pipeline.variants {
		if _, ok := media.Formats[variant.Name]; ok {
			continue
		}
		if variant.UpscalesFrom(sourceHeight) {
			job.Message(fmt.Sprintf("Skipping variant %s of %s: source is only %dp", variant.Name, media.Name, sourceHeight))
			continue
		}

		outputPath := filepath.Join(derivedDir, variant.Name+".mp4")
		if err := pipeline.transcoder.TranscodeVariant(ctx, diskPath, outputPath, variant, nil); err != nil {
			job.Message(fmt.Sprintf("Variant %s for %s failed: %s", variant.Name, media.Name, err))
			continue
		}

		media.Formats[variant.Name] = pipeline.library.DerivedURL(outputPath)
		changed = true
	}

	if changed {
		if err := pipeline.store.UpdateMediaFile(db, media); err != nil {
			job.Message(fmt.Sprintf("Recording formats of %s failed: %s", media.Name, err))
		}
	}

	return pipeline.deriveThumbnail(ctx, job, db, folder, media, diskPath, derivedDir)
}

func (pipeline *pipeline) deriveThumbnail(ctx context.Context, job *ImportJob, db database.Queryable, folder *catalog.Folder, media *catalog.MediaFile, diskPath string, derivedDir string) *uuid.UUID {
	thumbnailPath := filepath.Join(derivedDir, "thumbnail.jpg")
	if err := pipeline.transcoder.GenerateThumbnail(ctx, diskPath, thumbnailPath); err != nil {
		job.Message(fmt.Sprintf("Thumbnail for %s failed: %s", media.Name, err))
		return nil
	}

	stem := strings.TrimSuffix(media.Name, fileExt(media.Name))
	thumbnail := &catalog.MediaFile{Formats: catalog.MediaFormats{}}
	thumbnail.Name = stem + "_thumb.jpg"
	thumbnail.Mime = "image/jpeg"
	thumbnail.URL = pipeline.library.DerivedURL(thumbnailPath)
	thumbnail.FolderID = &folder.ID

	if existing, err := pipeline.store.GetMediaFileByName(db, thumbnail.Name); err == nil {
		return &existing.ID
	}

	if err := pipeline.store.CreateMediaFile(db, thumbnail); err != nil {
		job.Message(fmt.Sprintf("Cataloguing thumbnail of %s failed: %s", media.Name, err))
		return nil
	}

	return &thumbnail.ID
}

// targetName derives the deterministic catalog file name of an item. The
// name doubles as the idempotence key for re-imports.
func (pipeline *pipeline) targetName(item archive.Item) string {
	timestamp := time.Unix(item.CreationTimestamp, 0).UTC().Format(fileTimestampLayout)
	ext := strings.ToLower(filepath.Ext(item.RelativeURI))
	return fmt.Sprintf("%s_%s%s", pipeline.owner, timestamp, ext)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
