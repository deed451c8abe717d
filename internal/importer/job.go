package importer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type JobStage string

const (
	StageQueued     JobStage = "queued"
	StageUnzipping  JobStage = "unzipping"
	StageProcessing JobStage = "processing"
	StageFinalizing JobStage = "finalizing"
	StageDone       JobStage = "done"
	StageError      JobStage = "error"
)

// Untuned product constants for the user-facing progress bar. No invariant
// exists beyond monotonicity, which the setter enforces.
const (
	PercentAfterStaging   = 10
	PercentAfterDiscovery = 20
	PercentUploadFloor    = 10
	PercentUploadCeil     = 90
	PercentFinalizing     = 95

	maxJobMessages = 100
)

// stageRank orders the stages so that a job can never regress. StageError
// is absorbing and reachable from any non-terminal stage.
var stageRank = map[JobStage]int{
	StageQueued:     0,
	StageUnzipping:  1,
	StageProcessing: 2,
	StageFinalizing: 3,
	StageDone:       4,
}

type (
	CategoryStats struct {
		Items             int   `json:"items"`
		Uploaded          int   `json:"uploaded"`
		EarliestTimestamp int64 `json:"earliestTimestamp,omitempty"`
	}

	// ImportStats is a monotonic accumulator; counters only ever go up
	// while the job runs.
	ImportStats struct {
		ItemsTotal          int                       `json:"itemsTotal"`
		Uploaded            int                       `json:"uploaded"`
		SkippedMissingMedia int                       `json:"skippedMissingMedia"`
		UploadErrors        int                       `json:"uploadErrors"`
		ByCategory          map[string]*CategoryStats `json:"byCategory"`
		ArticlesCreated     int                       `json:"articlesCreated"`
		ArticlesUpdated     int                       `json:"articlesUpdated"`
		UsernamesTouched    []string                  `json:"usernamesTouched"`
	}

	// ImportJob is the in-memory record of one import run. It is created
	// when the upload request is staged and then mutated exclusively by the
	// background worker which claims it; pollers only ever see snapshots.
	ImportJob struct {
		*sync.Mutex

		id           uuid.UUID
		stage        JobStage
		percent      int
		stats        ImportStats
		messages     []string
		errorMessage string
		startedAt    time.Time
		updatedAt    time.Time

		// workDir is the job-scoped temp directory holding the staged
		// zips and their extraction; removed unconditionally on completion.
		workDir      string
		archivePaths []string
		claimed      bool

		// onUpdate is invoked (outside the job lock) after every mutation
		// so the owning service can fan the change out.
		onUpdate func()
	}

	// JobSnapshot is the immutable view handed to pollers.
	JobSnapshot struct {
		ID        uuid.UUID   `json:"id"`
		Stage     JobStage    `json:"stage"`
		Percent   int         `json:"percent"`
		Stats     ImportStats `json:"stats"`
		Error     string      `json:"error,omitempty"`
		Done      bool        `json:"done"`
		StartedAt time.Time   `json:"startedAt"`
		UpdatedAt time.Time   `json:"updatedAt"`
		Messages  []string    `json:"messages"`
	}
)

func newImportJob(id uuid.UUID, workDir string, archivePaths []string) *ImportJob {
	now := time.Now()
	return &ImportJob{
		Mutex:        &sync.Mutex{},
		id:           id,
		stage:        StageQueued,
		stats:        ImportStats{ByCategory: make(map[string]*CategoryStats)},
		startedAt:    now,
		updatedAt:    now,
		workDir:      workDir,
		archivePaths: archivePaths,
	}
}

func (job *ImportJob) ID() uuid.UUID { return job.id }

// SetStage advances the job's stage. Regressions are ignored; a terminal
// stage (done/error) is never left.
func (job *ImportJob) SetStage(stage JobStage) {
	job.Lock()
	if job.isTerminalLocked() {
		job.Unlock()
		return
	}

	if stage == StageError || stageRank[stage] > stageRank[job.stage] {
		job.stage = stage
		job.updatedAt = time.Now()
	}
	job.Unlock()

	job.notify()
}

// SetPercent raises the progress value; attempts to lower it are dropped
// so that pollers never observe the bar moving backwards.
func (job *ImportJob) SetPercent(percent int) {
	if percent > 100 {
		percent = 100
	}

	job.Lock()
	if percent <= job.percent {
		job.Unlock()
		return
	}

	job.percent = percent
	job.updatedAt = time.Now()
	job.Unlock()

	job.notify()
}

// SetUploadProgress interpolates the progress bar across the upload phase
// by the share of items uploaded so far.
func (job *ImportJob) SetUploadProgress(done int, total int) {
	if total <= 0 {
		return
	}

	span := PercentUploadCeil - PercentUploadFloor
	job.SetPercent(PercentUploadFloor + span*done/total)
}

// Message appends a human-readable progress line to the job's rolling log,
// discarding the oldest line beyond the cap.
func (job *ImportJob) Message(message string) {
	job.Lock()
	job.messages = append(job.messages, message)
	if len(job.messages) > maxJobMessages {
		job.messages = job.messages[len(job.messages)-maxJobMessages:]
	}
	job.updatedAt = time.Now()
	job.Unlock()

	job.notify()
}

// UpdateStats mutates the stat accumulator under the job lock.
func (job *ImportJob) UpdateStats(mutate func(*ImportStats)) {
	job.Lock()
	mutate(&job.stats)
	job.updatedAt = time.Now()
	job.Unlock()

	job.notify()
}

// Fail moves the job to its terminal error state with the given message.
func (job *ImportJob) Fail(message string) {
	job.Lock()
	if job.isTerminalLocked() {
		job.Unlock()
		return
	}

	job.stage = StageError
	job.errorMessage = message
	job.updatedAt = time.Now()
	job.Unlock()

	job.notify()
}

// Complete moves the job to done at 100 percent.
func (job *ImportJob) Complete() {
	job.Lock()
	if job.isTerminalLocked() {
		job.Unlock()
		return
	}

	job.stage = StageDone
	job.percent = 100
	job.updatedAt = time.Now()
	job.Unlock()

	job.notify()
}

// Snapshot copies the job record for a poller. The maps and slices in the
// snapshot are fresh allocations so readers can never race the worker.
func (job *ImportJob) Snapshot() JobSnapshot {
	job.Lock()
	defer job.Unlock()

	stats := job.stats
	stats.ByCategory = make(map[string]*CategoryStats, len(job.stats.ByCategory))
	for key, value := range job.stats.ByCategory {
		copied := *value
		stats.ByCategory[key] = &copied
	}
	stats.UsernamesTouched = append([]string(nil), job.stats.UsernamesTouched...)

	return JobSnapshot{
		ID:        job.id,
		Stage:     job.stage,
		Percent:   job.percent,
		Stats:     stats,
		Error:     job.errorMessage,
		Done:      job.stage == StageDone || job.stage == StageError,
		StartedAt: job.startedAt,
		UpdatedAt: job.updatedAt,
		Messages:  append([]string(nil), job.messages...),
	}
}

func (job *ImportJob) isTerminalLocked() bool {
	return job.stage == StageDone || job.stage == StageError
}

func (job *ImportJob) notify() {
	if job.onUpdate != nil {
		job.onUpdate()
	}
}

// categoryStats returns (allocating if needed) the per-category accumulator.
// Callers must only use this inside an UpdateStats mutation.
func (stats *ImportStats) categoryStats(category string) *CategoryStats {
	if stats.ByCategory == nil {
		stats.ByCategory = make(map[string]*CategoryStats)
	}
	if _, ok := stats.ByCategory[category]; !ok {
		stats.ByCategory[category] = &CategoryStats{}
	}

	return stats.ByCategory[category]
}

// touchUsername records the username once, preserving first-touch order.
func (stats *ImportStats) touchUsername(username string) {
	for _, existing := range stats.UsernamesTouched {
		if existing == username {
			return
		}
	}

	stats.UsernamesTouched = append(stats.UsernamesTouched, username)
}
