package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
)

func TestPublishSync_DeliversToTypedAndWildcard(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	var mu sync.Mutex
	var got []string

	require.NoError(t, svc.Subscribe(interfaces.EventEntryApproved, func(ctx context.Context, e interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "typed")
		return nil
	}))
	require.NoError(t, svc.SubscribeAll(func(ctx context.Context, e interfaces.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "all:"+string(e.Type))
		return nil
	}))

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventEntryApproved}))
	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventPlanUpdated}))

	assert.ElementsMatch(t, []string{"typed", "all:entry_approved", "all:plan_updated"}, got)
}

func TestPublishSync_ReportsHandlerErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	require.NoError(t, svc.Subscribe(interfaces.EventJobProgress, func(ctx context.Context, e interfaces.Event) error {
		return errors.New("boom")
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventJobProgress})
	assert.Error(t, err)
}

func TestPublish_Async(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	done := make(chan interfaces.Event, 1)
	require.NoError(t, svc.Subscribe(interfaces.EventJobStateChanged, func(ctx context.Context, e interfaces.Event) error {
		done <- e
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Publish(ctx, interfaces.Event{Type: interfaces.EventJobStateChanged, Payload: "x"}))
	cancel()

	select {
	case e := <-done:
		assert.Equal(t, "x", e.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestSubscribe_NilHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.Error(t, svc.Subscribe(interfaces.EventLog, nil))
	assert.Error(t, svc.SubscribeAll(nil))
}
