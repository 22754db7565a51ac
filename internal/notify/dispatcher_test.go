package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	name  string
	err   error
	delay time.Duration
	panic bool

	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Deliver(ctx context.Context, event domain.LifecycleEvent) error {
	if f.panic {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
	return f.err
}

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type memSpool struct {
	mu         sync.Mutex
	deliveries []*domain.Delivery
}

func (s *memSpool) Enqueue(ctx context.Context, d *domain.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
	return nil
}

func testEvent() domain.LifecycleEvent {
	conf := 0.82
	return domain.LifecycleEvent{
		ID:         "ev1",
		Name:       domain.EventResponseApproved,
		Ticket:     &domain.Ticket{ID: "t1", Subject: "Refund not received"},
		AIResponse: &domain.AIResponse{ID: "r1", TicketID: "t1", Confidence: &conf, Status: domain.ResponseStatusApproved},
		OccurredAt: time.Now().UTC(),
	}
}

func TestDispatcher_DoesNotBlockCaller(t *testing.T) {
	slow := &fakeChannel{name: "slow", delay: 200 * time.Millisecond}
	d := NewDispatcher([]Channel{slow})

	start := time.Now()
	d.Dispatch(context.Background(), testEvent())
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	d.Wait()
	assert.Equal(t, 1, slow.count())
}

func TestDispatcher_FailureIsolatedAndSpooled(t *testing.T) {
	failing := &fakeChannel{name: "webhook", err: errors.New("503")}
	panicking := &fakeChannel{name: "broken", panic: true}
	ok := &fakeChannel{name: "chat"}
	spool := &memSpool{}
	d := NewDispatcher([]Channel{failing, panicking, ok}, WithSpool(spool))

	d.Dispatch(context.Background(), testEvent())
	d.Wait()

	assert.Equal(t, 1, ok.count())
	require.Len(t, spool.deliveries, 2)

	byChannel := map[string]*domain.Delivery{}
	for _, del := range spool.deliveries {
		byChannel[del.Channel] = del
	}
	require.Contains(t, byChannel, "webhook")
	assert.Equal(t, domain.DeliveryStatusPending, byChannel["webhook"].Status)
	assert.Equal(t, domain.EventResponseApproved, byChannel["webhook"].EventName)
	assert.Contains(t, byChannel["broken"].Error, "panicked")

	var decoded domain.LifecycleEvent
	require.NoError(t, json.Unmarshal(byChannel["webhook"].Payload, &decoded))
	assert.Equal(t, "r1", decoded.AIResponse.ID)
}

func TestDispatcher_ChannelsRunConcurrently(t *testing.T) {
	a := &fakeChannel{name: "a", delay: 150 * time.Millisecond}
	b := &fakeChannel{name: "b", delay: 150 * time.Millisecond}
	d := NewDispatcher([]Channel{a, b}, WithConcurrency(2))

	start := time.Now()
	d.Dispatch(context.Background(), testEvent())
	d.Wait()
	assert.Less(t, time.Since(start), 280*time.Millisecond)
}

func TestDispatcher_TimeoutBoundsDelivery(t *testing.T) {
	stuck := &fakeChannel{name: "stuck", delay: time.Minute}
	spool := &memSpool{}
	d := NewDispatcher([]Channel{stuck}, WithTimeout(20*time.Millisecond), WithSpool(spool))

	d.Dispatch(context.Background(), testEvent())
	d.Wait()
	require.Len(t, spool.deliveries, 1)
	assert.Contains(t, spool.deliveries[0].Error, "deadline")
}

func TestDispatcher_CallerCancellationDoesNotAbort(t *testing.T) {
	ch := &fakeChannel{name: "c", delay: 30 * time.Millisecond}
	d := NewDispatcher([]Channel{ch})

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, testEvent())
	cancel()
	d.Wait()
	assert.Equal(t, 1, ch.count())
}

func TestDispatcher_Redeliver(t *testing.T) {
	ch := &fakeChannel{name: "webhook"}
	d := NewDispatcher([]Channel{ch})

	payload, err := json.Marshal(testEvent())
	require.NoError(t, err)

	require.NoError(t, d.Redeliver(context.Background(), &domain.Delivery{Channel: "webhook", Payload: payload}))
	assert.Equal(t, 1, ch.count())

	err = d.Redeliver(context.Background(), &domain.Delivery{Channel: "pager", Payload: payload})
	assert.ErrorContains(t, err, "unknown channel")

	err = d.Redeliver(context.Background(), &domain.Delivery{Channel: "webhook", Payload: []byte("{")})
	assert.ErrorContains(t, err, "decode")
}

func TestDispatcher_CloseDropsLateEvents(t *testing.T) {
	ch := &fakeChannel{name: "c"}
	d := NewDispatcher([]Channel{ch})

	require.NoError(t, d.Close(context.Background()))
	d.Dispatch(context.Background(), testEvent())
	d.Wait()
	assert.Equal(t, 0, ch.count())
	assert.Equal(t, []string{"c"}, d.Channels())
}
