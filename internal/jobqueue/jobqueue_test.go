package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/podible/podible/internal/model"
)

func TestPushThenNextReturnsInFIFOOrder(t *testing.T) {
	q := New()
	q.Push(model.Job{Source: "a"})
	q.Push(model.Job{Source: "b"})

	j1, ok := q.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", j1.Source)

	j2, ok := q.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "b", j2.Source)
}

func TestNextBlocksUntilPush(t *testing.T) {
	q := New()
	done := make(chan model.Job, 1)
	go func() {
		job, ok := q.Next(context.Background())
		if ok {
			done <- job
		}
	}()

	select {
	case <-done:
		t.Fatal("Next returned before any job was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(model.Job{Source: "late"})

	select {
	case job := <-done:
		assert.Equal(t, "late", job.Source)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Push")
	}
}

func TestNextUnblocksOnContextCancel(t *testing.T) {
	q := New()
	ctx, cancel := context.WithCancel(context.Background())

	resultCh := make(chan bool, 1)
	go func() {
		_, ok := q.Next(ctx)
		resultCh <- ok
	}()

	cancel()

	select {
	case ok := <-resultCh:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock on context cancellation")
	}
}

func TestInFlightAddRejectsDuplicate(t *testing.T) {
	f := NewInFlight()
	assert.True(t, f.Add("/book/a.m4b"))
	assert.False(t, f.Add("/book/a.m4b"))
	assert.True(t, f.Contains("/book/a.m4b"))

	f.Remove("/book/a.m4b")
	assert.False(t, f.Contains("/book/a.m4b"))
	assert.True(t, f.Add("/book/a.m4b"))
}
