package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"convertax/internal/models"
	"convertax/internal/repository"
	"convertax/internal/testutil"
)

type recordingNotifier struct {
	topics   []string
	payloads []string
	failOn   int
	calls    int
}

func (n *recordingNotifier) Emit(_ context.Context, topic string, payload []byte) error {
	n.calls++
	if n.failOn > 0 && n.calls == n.failOn {
		return errors.New("broker unavailable")
	}
	n.topics = append(n.topics, topic)
	n.payloads = append(n.payloads, string(payload))
	return nil
}

func TestRelay_DispatchPending(t *testing.T) {
	ctx := context.Background()

	t.Run("emits_in_order_and_marks_dispatched", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		store := repository.NewGormStore(db)

		testutil.AssertNoError(t, store.EnqueueEvent(ctx, TopicInvestmentCreated, map[string]int{"n": 1}))
		testutil.AssertNoError(t, store.EnqueueEvent(ctx, TopicWithdrawalProcessed, map[string]int{"n": 2}))

		notifier := &recordingNotifier{}
		relay := NewRelay(store, notifier, time.Second, 10, DefaultMaxAttempts, zap.NewNop().Sugar())

		n, err := relay.DispatchPending(ctx)
		testutil.AssertNoError(t, err)
		if n != 2 {
			t.Fatalf("expected 2 dispatched, got %d", n)
		}
		if notifier.topics[0] != TopicInvestmentCreated || notifier.topics[1] != TopicWithdrawalProcessed {
			t.Errorf("unexpected order: %v", notifier.topics)
		}
		if notifier.payloads[0] != `{"n":1}` {
			t.Errorf("unexpected payload %s", notifier.payloads[0])
		}

		pending, err := store.PendingEvents(ctx, 10)
		testutil.AssertNoError(t, err)
		if len(pending) != 0 {
			t.Errorf("expected outbox drained, %d pending", len(pending))
		}

		n, err = relay.DispatchPending(ctx)
		testutil.AssertNoError(t, err)
		if n != 0 {
			t.Errorf("expected nothing on second pass, got %d", n)
		}
	})

	t.Run("failure_stops_batch_and_retries", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		store := repository.NewGormStore(db)

		for i := 1; i <= 3; i++ {
			testutil.AssertNoError(t, store.EnqueueEvent(ctx, TopicInvestmentCreated, map[string]int{"n": i}))
		}

		notifier := &recordingNotifier{failOn: 2}
		relay := NewRelay(store, notifier, time.Second, 10, DefaultMaxAttempts, zap.NewNop().Sugar())

		n, err := relay.DispatchPending(ctx)
		if err == nil {
			t.Fatal("expected emit error")
		}
		if n != 1 {
			t.Errorf("expected 1 dispatched before failure, got %d", n)
		}

		pending, err := store.PendingEvents(ctx, 10)
		testutil.AssertNoError(t, err)
		if len(pending) != 2 {
			t.Fatalf("expected 2 pending, got %d", len(pending))
		}
		if pending[0].Attempts != 1 || pending[0].LastError != "broker unavailable" {
			t.Errorf("failure not recorded: attempts=%d last_error=%q", pending[0].Attempts, pending[0].LastError)
		}

		n, err = relay.DispatchPending(ctx)
		testutil.AssertNoError(t, err)
		if n != 2 {
			t.Errorf("expected retry to dispatch 2, got %d", n)
		}
		want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
		for i, p := range want {
			if notifier.payloads[i] != p {
				t.Errorf("payload %d = %s, want %s", i, notifier.payloads[i], p)
			}
		}
	})

	t.Run("respects_batch_size", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		store := repository.NewGormStore(db)

		for i := 0; i < 5; i++ {
			testutil.AssertNoError(t, store.EnqueueEvent(ctx, TopicInvestmentCreated, map[string]int{"n": i}))
		}

		relay := NewRelay(store, &recordingNotifier{}, time.Second, 3, DefaultMaxAttempts, zap.NewNop().Sugar())
		n, err := relay.DispatchPending(ctx)
		testutil.AssertNoError(t, err)
		if n != 3 {
			t.Errorf("expected 3 dispatched, got %d", n)
		}
	})
}

// slowNotifier holds every emission long enough for competing passes to
// overlap it.
type slowNotifier struct {
	mu    sync.Mutex
	delay time.Duration
	seen  map[string]int
	fail  error
}

func (n *slowNotifier) Emit(_ context.Context, _ string, payload []byte) error {
	time.Sleep(n.delay)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seen == nil {
		n.seen = make(map[string]int)
	}
	n.seen[string(payload)]++
	return n.fail
}

func (n *slowNotifier) emissions(payload string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seen[payload]
}

func TestRelay_ConcurrentPassesEmitOnce(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, relays ...*Relay) {
		var wg sync.WaitGroup
		errs := make(chan error, len(relays))
		for _, r := range relays {
			wg.Add(1)
			go func(r *Relay) {
				defer wg.Done()
				_, err := r.DispatchPending(ctx)
				errs <- err
			}(r)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			testutil.AssertNoError(t, err)
		}
	}

	t.Run("same_relay", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		store := repository.NewGormStore(db)
		testutil.AssertNoError(t, store.EnqueueEvent(ctx, TopicWithdrawalProcessed, map[string]int{"n": 1}))

		notifier := &slowNotifier{delay: 50 * time.Millisecond}
		relay := NewRelay(store, notifier, time.Second, 10, DefaultMaxAttempts, zap.NewNop().Sugar())

		run(t, relay, relay)

		if got := notifier.emissions(`{"n":1}`); got != 1 {
			t.Errorf("expected exactly one emission, got %d", got)
		}
	})

	t.Run("relays_sharing_a_store", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		store := repository.NewGormStore(db)
		testutil.AssertNoError(t, store.EnqueueEvent(ctx, TopicWithdrawalProcessed, map[string]int{"n": 1}))

		notifier := &slowNotifier{delay: 50 * time.Millisecond}
		first := NewRelay(store, notifier, time.Second, 10, DefaultMaxAttempts, zap.NewNop().Sugar())
		second := NewRelay(store, notifier, time.Second, 10, DefaultMaxAttempts, zap.NewNop().Sugar())

		run(t, first, second)

		if got := notifier.emissions(`{"n":1}`); got != 1 {
			t.Errorf("expected exactly one emission, got %d", got)
		}
	})
}

func TestRelay_ParksExhaustedEvent(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	store := repository.NewGormStore(db)
	testutil.AssertNoError(t, store.EnqueueEvent(ctx, TopicInvestmentCreated, map[string]int{"n": 1}))

	failing := &slowNotifier{fail: errors.New("payload rejected")}
	relay := NewRelay(store, failing, time.Second, 10, 2, zap.NewNop().Sugar())

	if _, err := relay.DispatchPending(ctx); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	pending, err := store.PendingEvents(ctx, 10)
	testutil.AssertNoError(t, err)
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("expected one pending event with 1 attempt, got %+v", pending)
	}

	n, err := relay.DispatchPending(ctx)
	testutil.AssertNoError(t, err)
	if n != 0 {
		t.Errorf("expected nothing dispatched, got %d", n)
	}

	var parked models.OutboxEvent
	testutil.AssertNoError(t, db.First(&parked, "id = ?", pending[0].ID).Error)
	if parked.FailedAt == nil || parked.DispatchedAt != nil {
		t.Errorf("expected event parked, failed_at=%v dispatched_at=%v", parked.FailedAt, parked.DispatchedAt)
	}
	if parked.Attempts != 2 || parked.LastError != "payload rejected" {
		t.Errorf("unexpected parked state: attempts=%d last_error=%q", parked.Attempts, parked.LastError)
	}

	testutil.AssertNoError(t, store.EnqueueEvent(ctx, TopicInvestmentCreated, map[string]int{"n": 2}))
	healthy := &recordingNotifier{}
	relay = NewRelay(store, healthy, time.Second, 10, 2, zap.NewNop().Sugar())
	n, err = relay.DispatchPending(ctx)
	testutil.AssertNoError(t, err)
	if n != 1 || len(healthy.payloads) != 1 || healthy.payloads[0] != `{"n":2}` {
		t.Errorf("expected only the later event emitted, got %v", healthy.payloads)
	}
}

func TestRelay_ParkedEventDoesNotBlockBatch(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	store := repository.NewGormStore(db)
	for i := 1; i <= 3; i++ {
		testutil.AssertNoError(t, store.EnqueueEvent(ctx, TopicInvestmentCreated, map[string]int{"n": i}))
	}

	notifier := &recordingNotifier{failOn: 1}
	relay := NewRelay(store, notifier, time.Second, 10, 1, zap.NewNop().Sugar())

	n, err := relay.DispatchPending(ctx)
	testutil.AssertNoError(t, err)
	if n != 2 {
		t.Errorf("expected the 2 events behind the parked one, got %d", n)
	}
	if len(notifier.payloads) != 2 || notifier.payloads[0] != `{"n":2}` {
		t.Errorf("unexpected payloads %v", notifier.payloads)
	}
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	store := repository.NewGormStore(db)
	testutil.AssertNoError(t, store.EnqueueEvent(context.Background(), TopicInvestmentCreated, map[string]int{"n": 1}))

	notifier := &recordingNotifier{}
	relay := NewRelay(store, notifier, 10*time.Millisecond, 10, DefaultMaxAttempts, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		pending, err := store.PendingEvents(context.Background(), 10)
		testutil.AssertNoError(t, err)
		if len(pending) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		testutil.AssertNoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
	if len(notifier.topics) != 1 {
		t.Errorf("expected 1 emitted event, got %d", len(notifier.topics))
	}
}
