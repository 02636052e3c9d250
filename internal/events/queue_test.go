package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/domain"
)

func TestQueue_DeliversInPublishOrder(t *testing.T) {
	q := NewQueue(zap.NewNop())
	for i := 0; i < 100; i++ {
		require.True(t, q.Publish(Event{Kind: SnapshotUpdated, Target: domain.TargetID(fmt.Sprintf("t%d", i%3))}))
	}
	q.Close()
	assert.False(t, q.Publish(Event{Kind: StatusChanged}), "closed queue must reject")

	var got []domain.TargetID
	err := q.Run(context.Background(), func(_ context.Context, e Event) {
		got = append(got, e.Target)
	})
	require.NoError(t, err)
	require.Len(t, got, 100)
	for i, id := range got {
		assert.Equal(t, domain.TargetID(fmt.Sprintf("t%d", i%3)), id)
	}
}

func TestQueue_PublishDoesNotBlockOnSlowConsumer(t *testing.T) {
	q := NewQueue(zap.NewNop())
	release := make(chan struct{})
	done := make(chan struct{})

	var mu sync.Mutex
	n := 0
	go func() {
		_ = q.Run(context.Background(), func(_ context.Context, e Event) {
			<-release
			mu.Lock()
			n++
			mu.Unlock()
		})
		close(done)
	}()

	start := time.Now()
	for i := 0; i < 1000; i++ {
		q.Publish(Event{Kind: StatusChanged, Target: "ark"})
	}
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	q.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain after close")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1000, n)
}

func TestQueue_RecoversHandlerPanic(t *testing.T) {
	q := NewQueue(nil)
	q.Publish(Event{Kind: StatusChanged, Target: "a"})
	q.Publish(Event{Kind: StatusChanged, Target: "b"})
	q.Close()

	var seen []domain.TargetID
	err := q.Run(context.Background(), func(_ context.Context, e Event) {
		seen = append(seen, e.Target)
		if e.Target == "a" {
			panic("boom")
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.TargetID{"a", "b"}, seen)
}

func TestQueue_RunStopsOnCancel(t *testing.T) {
	q := NewQueue(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx, func(context.Context, Event) {}) }()
	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
