package app

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	batchprogress "github.com/nben/cipofetch/internal/progress"
)

func drainFetchMsgs(t *testing.T, ch chan tea.Msg) []tea.Msg {
	t.Helper()
	var msgs []tea.Msg
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		case <-timeout:
			t.Fatal("fetch task never closed its message channel")
		}
	}
}

func TestStartFetchTaskFinishesCleanly(t *testing.T) {
	pipelineErr := errors.New("batch had failures")
	m := NewModel(Deps{
		Reporter:    batchprogress.NewReporter(),
		RunPipeline: func(context.Context) error { return pipelineErr },
	})

	ch := make(chan tea.Msg)
	m.startFetchTask(ch)()

	msgs := drainFetchMsgs(t, ch)
	require.NotEmpty(t, msgs)
	finished, ok := msgs[len(msgs)-1].(TaskFinishedMsg)
	require.True(t, ok, "last message must be the completion signal")
	assert.Equal(t, "Fetch", finished.Tag)
	assert.Equal(t, pipelineErr, finished.Err)
}

func TestStartFetchTaskProgressStopsBeforeCompletion(t *testing.T) {
	reporter := batchprogress.NewReporter()
	reporter.BatchStarted(2)
	m := NewModel(Deps{
		Reporter: reporter,
		RunPipeline: func(context.Context) error {
			reporter.ResourceCompleted("a.zip")
			time.Sleep(500 * time.Millisecond)
			return nil
		},
	})

	ch := make(chan tea.Msg)
	m.startFetchTask(ch)()

	msgs := drainFetchMsgs(t, ch)
	require.NotEmpty(t, msgs)

	// Progress updates interleave while the run is active, but nothing may
	// follow the completion signal and the close must not race a send.
	for _, msg := range msgs[:len(msgs)-1] {
		_, ok := msg.(ProgressMsg)
		require.True(t, ok)
	}
	require.NotEmpty(t, msgs[:len(msgs)-1])
	_, ok := msgs[len(msgs)-1].(TaskFinishedMsg)
	assert.True(t, ok)
}
