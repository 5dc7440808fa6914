// Package batch parses directories of transcript exports on a bounded
// worker pool.
package batch

import (
	"sync"
	"time"
)

// Progress states
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Progress tracks a batch run. It is safe for concurrent use.
type Progress struct {
	mu sync.RWMutex

	totalFiles     int
	processedCount int
	importedCount  int
	failedCount    int
	messageCount   int
	currentFile    string
	status         string
	startedAt      time.Time

	onUpdate func(ProgressSnapshot)
}

// NewProgress creates a tracker for totalFiles files.
func NewProgress(totalFiles int) *Progress {
	return &Progress{
		totalFiles: totalFiles,
		status:     StatusPending,
		startedAt:  time.Now(),
	}
}

// SetOnUpdate registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change, outside the lock.
func (p *Progress) SetOnUpdate(fn func(ProgressSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// update applies fn under the lock and then notifies the listener.
func (p *Progress) update(fn func()) {
	p.mu.Lock()
	fn()
	notify := p.onUpdate
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}

// Start marks the run as started.
func (p *Progress) Start() {
	p.update(func() {
		p.status = StatusRunning
		p.startedAt = time.Now()
	})
}

// SetCurrentFile records the file a worker just picked up.
func (p *Progress) SetCurrentFile(path string) {
	p.update(func() { p.currentFile = path })
}

// RecordImported counts a parsed file and its messages.
func (p *Progress) RecordImported(messages int) {
	p.update(func() {
		p.importedCount++
		p.processedCount++
		p.messageCount += messages
	})
}

// RecordFailed counts a failed file.
func (p *Progress) RecordFailed() {
	p.update(func() {
		p.failedCount++
		p.processedCount++
	})
}

// Complete marks the run finished.
func (p *Progress) Complete(success bool) {
	p.update(func() {
		if success {
			p.status = StatusCompleted
		} else {
			p.status = StatusFailed
		}
	})
}

// Cancel marks the run cancelled.
func (p *Progress) Cancel() {
	p.update(func() { p.status = StatusCancelled })
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Progress) snapshotLocked() ProgressSnapshot {
	elapsed := time.Since(p.startedAt).Seconds()
	var remaining *float64
	if p.processedCount > 0 {
		est := elapsed / float64(p.processedCount) * float64(p.totalFiles-p.processedCount)
		remaining = &est
	}
	return ProgressSnapshot{
		TotalFiles:                p.totalFiles,
		ProcessedCount:            p.processedCount,
		ImportedCount:             p.importedCount,
		FailedCount:               p.failedCount,
		MessageCount:              p.messageCount,
		CurrentFile:               p.currentFile,
		Status:                    p.status,
		StartedAt:                 p.startedAt,
		ElapsedSeconds:            elapsed,
		EstimatedRemainingSeconds: remaining,
	}
}

// ProgressSnapshot is an immutable copy of progress state.
type ProgressSnapshot struct {
	TotalFiles                int
	ProcessedCount            int
	ImportedCount             int
	FailedCount               int
	MessageCount              int
	CurrentFile               string
	Status                    string
	StartedAt                 time.Time
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64
}

// PercentComplete returns the percentage of files processed.
func (s ProgressSnapshot) PercentComplete() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.ProcessedCount) / float64(s.TotalFiles) * 100
}

// IsComplete returns true if all files have been processed.
func (s ProgressSnapshot) IsComplete() bool {
	return s.ProcessedCount >= s.TotalFiles
}

// IsSuccess returns true if the run completed with no failures.
func (s ProgressSnapshot) IsSuccess() bool {
	return s.Status == StatusCompleted && s.FailedCount == 0
}
