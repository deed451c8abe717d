package importer

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gramvault/gramvault/internal/catalog"
	"github.com/gramvault/gramvault/internal/database"
	"github.com/gramvault/gramvault/internal/event"
	"github.com/gramvault/gramvault/internal/ffmpeg"
	"github.com/gramvault/gramvault/internal/metadata"
)

type stubDBManager struct{}

func (stubDBManager) Connect(database.DatabaseConfig) error { return nil }
func (stubDBManager) GetSqlxDb() *sqlx.DB                   { return nil }
func (stubDBManager) WrapTx(f func(*sqlx.Tx) error) error   { return f(nil) }

func newTestService(t *testing.T, eventBus event.EventCoordinator) *Service {
	t.Helper()

	service, err := New(
		Config{
			WorkerCount:         1,
			StagingDirPath:      t.TempDir(),
			OwnerUsername:       "owner",
			UnzipTimeoutMinutes: 1,
		},
		stubDBManager{},
		eventBus,
		newMemoryStore(),
		catalog.NewLibrary(catalog.LibraryConfig{Path: t.TempDir(), BaseURL: "/media"}),
		ffmpeg.New(ffmpeg.Config{FfmpegBinPath: "/bin/false", FfprobeBinPath: "/bin/false", TranscodeTimeoutMinutes: 1}),
		metadata.NewExtractor(metadata.Config{}),
	)
	require.NoError(t, err)
	return service
}

func TestStartImportRejectsEmptyAndNonZipUploads(t *testing.T) {
	service := newTestService(t, event.New())

	_, err := service.StartImport(nil)
	assert.Error(t, err)

	_, err = service.StartImport([]ArchiveUpload{
		{Filename: "export.tar.gz", Content: bytes.NewReader([]byte("x"))},
	})
	assert.Error(t, err)
}

func TestStartImportReturnsImmediatelyWithQueuedJob(t *testing.T) {
	service := newTestService(t, event.New())

	// No Run() call: the job must stay queued with its staging percent.
	id, err := service.StartImport([]ArchiveUpload{
		{Filename: "export.zip", Content: bytes.NewReader([]byte("zip bytes"))},
	})
	require.NoError(t, err)

	snapshot, ok := service.GetJob(id)
	require.True(t, ok)
	assert.Equal(t, StageQueued, snapshot.Stage)
	assert.Equal(t, PercentAfterStaging, snapshot.Percent)
	assert.False(t, snapshot.Done)
}

func TestGetJobUnknownID(t *testing.T) {
	service := newTestService(t, event.New())

	_, ok := service.GetJob(uuid.New())
	assert.False(t, ok)
}

func TestWorkerFailsJobOnBadArchiveAndCleansUp(t *testing.T) {
	eventBus := event.New()
	completions := make(event.HandlerChannel, 10)
	eventBus.RegisterHandlerChannel(completions, event.ImportJobCompleteEvent)

	service := newTestService(t, eventBus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go service.Run(ctx)

	// Not a real zip: extraction must fail and the job must land in the
	// terminal error state rather than hanging or crashing the worker.
	id, err := service.StartImport([]ArchiveUpload{
		{Filename: "export.zip", Content: bytes.NewReader([]byte("definitely not a zip"))},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snapshot, ok := service.GetJob(id)
		return ok && snapshot.Done
	}, 30*time.Second, 50*time.Millisecond)

	snapshot, _ := service.GetJob(id)
	assert.Equal(t, StageError, snapshot.Stage)
	assert.NotEmpty(t, snapshot.Error)

	// The completion event carries the job id.
	select {
	case message := <-completions:
		assert.Equal(t, id, message.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("no completion event received")
	}

	// The job-scoped staging directory is removed on failure too.
	workDir := service.jobs[id].workDir
	assert.Eventually(t, func() bool {
		_, err := os.Stat(workDir)
		return os.IsNotExist(err)
	}, 10*time.Second, 50*time.Millisecond)
}

func TestAllJobsPreservesCreationOrder(t *testing.T) {
	service := newTestService(t, event.New())

	first, err := service.StartImport([]ArchiveUpload{{Filename: "a.zip", Content: bytes.NewReader([]byte("a"))}})
	require.NoError(t, err)
	second, err := service.StartImport([]ArchiveUpload{{Filename: "b.zip", Content: bytes.NewReader([]byte("b"))}})
	require.NoError(t, err)

	jobs := service.AllJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, first, jobs[0].ID)
	assert.Equal(t, second, jobs[1].ID)
}
