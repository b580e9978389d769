// Package progress tracks batch position and outcome counters for the
// pipeline. Counters are purely additive; a failed resource keeps whatever
// counts it accrued before failing.
package progress

import (
	"sync"
	"time"
)

// FailedResource records one resource that did not import.
type FailedResource struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// Snapshot is a point-in-time copy of the batch state, safe to hand out.
type Snapshot struct {
	Active          bool             `json:"active"`
	StartedAt       time.Time        `json:"started_at,omitempty"`
	TotalResources  int              `json:"total_resources"`
	Completed       int              `json:"completed"`
	Cached          int              `json:"cached"`
	Failed          []FailedResource `json:"failed"`
	Current         string           `json:"current,omitempty"`
	RecordsByTable  map[string]int   `json:"records_by_table"`
	MalformedByFile map[string]int   `json:"malformed_by_file,omitempty"`
}

// Reporter receives events from every pipeline stage and serves status
// snapshots to the CLI and web layers.
type Reporter struct {
	mu sync.Mutex

	active          bool
	startedAt       time.Time
	total           int
	completed       int
	cached          int
	failed          []FailedResource
	current         string
	recordsByTable  map[string]int
	malformedByFile map[string]int
}

func NewReporter() *Reporter {
	return &Reporter{
		recordsByTable:  make(map[string]int),
		malformedByFile: make(map[string]int),
	}
}

// BatchStarted marks the start of a run over total resources.
func (r *Reporter) BatchStarted(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	r.startedAt = time.Now().UTC()
	r.total = total
	r.current = ""
}

// BatchFinished marks the end of the run, successful or not.
func (r *Reporter) BatchFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	r.current = ""
}

func (r *Reporter) ResourceStarted(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = filename
}

// ResourceCached notes a resource whose download was skipped.
func (r *Reporter) ResourceCached(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached++
}

func (r *Reporter) ResourceFailed(filename, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, FailedResource{Filename: filename, Reason: reason})
}

func (r *Reporter) RecordsWritten(table string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordsByTable[table] += count
}

func (r *Reporter) MalformedRows(filename string, count int) {
	if count == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.malformedByFile[filename] += count
}

func (r *Reporter) ResourceCompleted(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	if r.current == filename {
		r.current = ""
	}
}

// Status returns a copy of the current state.
func (r *Reporter) Status() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Active:          r.active,
		StartedAt:       r.startedAt,
		TotalResources:  r.total,
		Completed:       r.completed,
		Cached:          r.cached,
		Failed:          make([]FailedResource, len(r.failed)),
		Current:         r.current,
		RecordsByTable:  make(map[string]int, len(r.recordsByTable)),
		MalformedByFile: make(map[string]int, len(r.malformedByFile)),
	}
	copy(snap.Failed, r.failed)
	for k, v := range r.recordsByTable {
		snap.RecordsByTable[k] = v
	}
	for k, v := range r.malformedByFile {
		snap.MalformedByFile[k] = v
	}
	return snap
}
