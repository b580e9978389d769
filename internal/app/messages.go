package app

import (
	"fmt"
	"time"
)

// ProgressMsg updates the overall progress bar during a fetch.
type ProgressMsg struct {
	Tag      string
	Current  int64
	Total    int64
	Activity string
}

// TaskFinishedMsg signals the completion of a background task. Output holds
// any text the task produced for display.
type TaskFinishedMsg struct {
	Tag       string
	Err       error
	StartTime time.Time
	EndTime   time.Time
	Output    string
}

func NewProgress(tag string, current, total int64, activity string) ProgressMsg {
	return ProgressMsg{Tag: tag, Current: current, Total: total, Activity: activity}
}

func NewTaskFinished(tag string, start time.Time, err error, output string) TaskFinishedMsg {
	return TaskFinishedMsg{
		Tag:       tag,
		StartTime: start,
		EndTime:   time.Now(),
		Err:       err,
		Output:    output,
	}
}

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress %s: %d/%d", p.Tag, p.Current, p.Total)
}

func (t TaskFinishedMsg) String() string { return fmt.Sprintf("TaskFinished %s", t.Tag) }
