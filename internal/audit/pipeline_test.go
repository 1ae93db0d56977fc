package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineCommitsWindowOnTicker(t *testing.T) {
	var mu sync.Mutex
	var commits []WindowCommit

	p := NewPipeline(20*time.Millisecond, func(c WindowCommit) {
		mu.Lock()
		defer mu.Unlock()
		commits = append(commits, c)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	require.NoError(t, p.Submit(ctx, Event{CreationTime: time.Now(), EventType: "write", FilePath: "/f", EventKey: "k1"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(commits) >= 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, commits[0].WindowID)
	assert.NotEmpty(t, commits[0].Root)
	assert.True(t, commits[0].WindowEnd.After(commits[0].WindowStart) || commits[0].WindowEnd.Equal(commits[0].WindowStart))
}

func TestPipelineClosesFinalWindowOnCancel(t *testing.T) {
	var mu sync.Mutex
	var commits []WindowCommit

	// Window size far longer than the test so only ctx cancellation
	// triggers the commit, not the ticker.
	p := NewPipeline(time.Hour, func(c WindowCommit) {
		mu.Lock()
		defer mu.Unlock()
		commits = append(commits, c)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	require.NoError(t, p.Submit(ctx, Event{CreationTime: time.Now(), EventType: "write", FilePath: "/f", EventKey: "k1"}))
	require.NoError(t, p.Submit(ctx, Event{CreationTime: time.Now(), EventType: "write", FilePath: "/g", EventKey: "k2"}))

	cancel()
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, commits, 1)
	assert.NotEmpty(t, commits[0].Root)
}

func TestPipelineSkipsEmptyWindow(t *testing.T) {
	var mu sync.Mutex
	commitCount := 0

	p := NewPipeline(15*time.Millisecond, func(WindowCommit) {
		mu.Lock()
		defer mu.Unlock()
		commitCount++
	})

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	time.Sleep(50 * time.Millisecond) // let a few empty ticks pass with no events submitted
	cancel()
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, commitCount)
}

func TestPipelineSubmitRespectsContextCancellation(t *testing.T) {
	p := NewPipeline(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the channel first: with room left, Submit's select could pick
	// the send over the cancelled context at random. With the channel
	// full, only ctx.Done is ready, so cancellation must win.
	for i := 0; i < channelCapacity; i++ {
		select {
		case p.events <- Event{}:
		default:
		}
	}
	err := p.Submit(ctx, Event{})
	assert.Error(t, err)
}
