package outbox

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orders-invoices/shared/pkg/eventbus"
	"orders-invoices/shared/pkg/events"
)

type failure struct {
	next   time.Time
	reason string
}

type fakeBatch struct {
	entries    []Entry
	published  []string
	failed     map[string]failure
	committed  bool
	rolledBack bool
}

func (b *fakeBatch) Entries() []Entry { return b.entries }
func (b *fakeBatch) MarkPublished(_ context.Context, id string) error {
	b.published = append(b.published, id)
	return nil
}
func (b *fakeBatch) MarkFailed(_ context.Context, id string, next time.Time, reason string) error {
	if b.failed == nil {
		b.failed = map[string]failure{}
	}
	b.failed[id] = failure{next: next, reason: reason}
	return nil
}
func (b *fakeBatch) Commit(context.Context) error { b.committed = true; return nil }
func (b *fakeBatch) Rollback(context.Context) error {
	if !b.committed {
		b.rolledBack = true
	}
	return nil
}

type fakeStore struct {
	batch    *fakeBatch
	claimErr error
}

func (s *fakeStore) Claim(context.Context, int) (Batch, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	return s.batch, nil
}
func (s *fakeStore) CountPending(context.Context) (int, error) { return len(s.batch.entries), nil }

type fakePublisher struct {
	fail map[string]error
	got  []events.Envelope
}

func (p *fakePublisher) Publish(_ context.Context, env events.Envelope) error {
	p.got = append(p.got, env)
	return p.fail[env.EventID]
}

func entry(id string, attempts int) Entry {
	return Entry{
		EventID:     id,
		EventType:   events.TypeOrderCreated,
		AggregateID: "order-" + id,
		Payload:     []byte(`{"orderId":"x"}`),
		OccurredAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Attempts:    attempts,
	}
}

func newRunner(store Store, pub Publisher, now time.Time) *Runner {
	return &Runner{
		Log:          zerolog.Nop(),
		Store:        store,
		Publisher:    pub,
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		BackoffBase:  time.Second,
		BackoffMax:   time.Minute,
		AlertAfter:   3,
		now:          func() time.Time { return now },
	}
}

func TestTick_PublishesWithStoredEventID(t *testing.T) {
	t.Parallel()

	batch := &fakeBatch{entries: []Entry{entry("e1", 0), entry("e2", 4)}}
	pub := &fakePublisher{}

	n, err := newRunner(&fakeStore{batch: batch}, pub, time.Now()).Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"e1", "e2"}, batch.published)
	assert.True(t, batch.committed)
	require.Len(t, pub.got, 2)
	assert.Equal(t, "e1", pub.got[0].EventID)
	assert.Equal(t, events.TypeOrderCreated, pub.got[0].EventType)
	assert.JSONEq(t, `{"orderId":"x"}`, string(pub.got[0].Payload))
}

func TestTick_FailureSchedulesBackoffAndKeepsGoing(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := &fakeBatch{entries: []Entry{entry("e1", 2), entry("e2", 0)}}
	pub := &fakePublisher{fail: map[string]error{"e1": fmt.Errorf("%w: nacked", events.ErrPublishFailed)}}

	n, err := newRunner(&fakeStore{batch: batch}, pub, now).Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"e2"}, batch.published)
	require.Contains(t, batch.failed, "e1")

	// third attempt: base*2^2 = 4s, jittered into [2s, 4s)
	f := batch.failed["e1"]
	assert.Contains(t, f.reason, "nacked")
	assert.GreaterOrEqual(t, f.next.Sub(now), 2*time.Second)
	assert.Less(t, f.next.Sub(now), 4*time.Second)
	assert.True(t, batch.committed)
}

func TestTick_BreakerOpenStopsBatch(t *testing.T) {
	t.Parallel()

	batch := &fakeBatch{entries: []Entry{entry("e1", 0), entry("e2", 0)}}
	pub := &fakePublisher{fail: map[string]error{
		"e1": fmt.Errorf("%w: %w", events.ErrPublishFailed, eventbus.ErrBreakerOpen),
	}}

	n, err := newRunner(&fakeStore{batch: batch}, pub, time.Now()).Tick(context.Background())
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Len(t, pub.got, 1)
	assert.Empty(t, batch.failed, "breaker rejections do not consume attempts")
	assert.True(t, batch.committed)
}

func TestTick_BudgetReleasesUnreachedRows(t *testing.T) {
	t.Parallel()

	batch := &fakeBatch{entries: []Entry{entry("e1", 0), entry("e2", 0), entry("e3", 0)}}
	pub := &fakePublisher{}
	r := newRunner(&fakeStore{batch: batch}, pub, time.Time{})
	r.TickBudget = 15 * time.Second

	// every clock read advances 10s: deadline at 15s, e1 checked at 10s, e2 at 20s
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		now := clock
		clock = clock.Add(10 * time.Second)
		return now
	}

	n, err := r.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"e1"}, batch.published)
	assert.Empty(t, batch.failed, "deferred rows keep their attempts")
	assert.Len(t, pub.got, 1)
	assert.True(t, batch.committed)
}

func TestTick_ClaimError(t *testing.T) {
	t.Parallel()

	cause := errors.New("db down")
	_, err := newRunner(&fakeStore{batch: &fakeBatch{}, claimErr: cause}, &fakePublisher{}, time.Now()).Tick(context.Background())
	assert.ErrorIs(t, err, cause)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	batch := &fakeBatch{entries: []Entry{entry("e1", 0)}}
	r := newRunner(&fakeStore{batch: batch}, &fakePublisher{}, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Contains(t, batch.published, "e1")
}
