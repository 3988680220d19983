package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/telcoops/topup/internal/models"
)

type fakeRequestStore struct {
	pending  []models.Request
	findErr  error
	queued   []string
	queueErr map[string]error
	claimed  map[string]bool // MarkQueued returns 0 for these
}

func (f *fakeRequestStore) FindPending(ctx context.Context, limit int) ([]models.Request, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeRequestStore) MarkQueued(ctx context.Context, requestID string) (int64, error) {
	if err := f.queueErr[requestID]; err != nil {
		return 0, err
	}
	if f.claimed[requestID] {
		return 0, nil
	}
	f.queued = append(f.queued, requestID)
	return 1, nil
}

type fakePublisher struct {
	published []models.TopupEvent
	failFor   map[string]error
}

func (f *fakePublisher) PublishTopup(ctx context.Context, ev models.TopupEvent) error {
	if err := f.failFor[ev.RequestID]; err != nil {
		return err
	}
	f.published = append(f.published, ev)
	return nil
}

func pendingRequest(id, carrier, amount string) models.Request {
	return models.Request{
		ID:          id,
		PhoneNumber: "987654321",
		Amount:      decimal.RequireFromString(amount),
		Carrier:     carrier,
		Status:      models.StatusPending,
	}
}

func newDispatcher(store *fakeRequestStore, pub *fakePublisher) *Dispatcher {
	return New(store, pub, time.Second, 100, zerolog.Nop())
}

func TestCycleBuildsEventFromRequestFields(t *testing.T) {
	store := &fakeRequestStore{pending: []models.Request{pendingRequest("r1", "MOVISTAR", "30.00")}}
	pub := &fakePublisher{}

	newDispatcher(store, pub).runCycle(context.Background())

	if len(pub.published) != 1 {
		t.Fatalf("published = %d, want 1", len(pub.published))
	}
	ev := pub.published[0]
	if ev.RequestID != "r1" || ev.Operator != "MOVISTAR" || ev.PhoneNumber != "987654321" {
		t.Errorf("event = %+v, fields not copied from request", ev)
	}
	if !ev.Amount.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("event amount = %s, want 30.00", ev.Amount)
	}
	if len(store.queued) != 1 || store.queued[0] != "r1" {
		t.Errorf("queued = %v, want [r1]", store.queued)
	}
}

func TestEmptyCycleIsNoOp(t *testing.T) {
	store := &fakeRequestStore{}
	pub := &fakePublisher{}

	newDispatcher(store, pub).runCycle(context.Background())

	if len(pub.published) != 0 || len(store.queued) != 0 {
		t.Errorf("published=%d queued=%d, want 0/0", len(pub.published), len(store.queued))
	}
}

func TestPublishFailureLeavesRequestPendingAndContinues(t *testing.T) {
	store := &fakeRequestStore{pending: []models.Request{
		pendingRequest("r1", "MOVISTAR", "10.00"),
		pendingRequest("r2", "CLARO", "20.00"),
		pendingRequest("r3", "BITEL", "30.00"),
	}}
	pub := &fakePublisher{failFor: map[string]error{"r2": errors.New("broker unreachable")}}

	newDispatcher(store, pub).runCycle(context.Background())

	if len(pub.published) != 2 {
		t.Fatalf("published = %d, want 2 (failure must not abort the batch)", len(pub.published))
	}
	for _, id := range store.queued {
		if id == "r2" {
			t.Error("r2 was marked queued despite the failed publish")
		}
	}
	if len(store.queued) != 2 {
		t.Errorf("queued = %v, want r1 and r3", store.queued)
	}
}

func TestStoreErrorAbortsCycle(t *testing.T) {
	store := &fakeRequestStore{findErr: errors.New("store timeout")}
	pub := &fakePublisher{}

	newDispatcher(store, pub).runCycle(context.Background())

	if len(pub.published) != 0 {
		t.Errorf("published = %d, want 0 when the pending query fails", len(pub.published))
	}
}

func TestAlreadyClaimedRowIsSkippedQuietly(t *testing.T) {
	store := &fakeRequestStore{
		pending: []models.Request{pendingRequest("r1", "MOVISTAR", "10.00")},
		claimed: map[string]bool{"r1": true},
	}
	pub := &fakePublisher{}

	newDispatcher(store, pub).runCycle(context.Background())

	// The publish happened before the claim was lost; settlement's own
	// terminal-status guard absorbs the duplicate.
	if len(pub.published) != 1 {
		t.Errorf("published = %d, want 1", len(pub.published))
	}
	if len(store.queued) != 0 {
		t.Errorf("queued = %v, want none", store.queued)
	}
}

func TestBatchLimitRespected(t *testing.T) {
	store := &fakeRequestStore{pending: []models.Request{
		pendingRequest("r1", "MOVISTAR", "10.00"),
		pendingRequest("r2", "CLARO", "20.00"),
		pendingRequest("r3", "BITEL", "30.00"),
	}}
	pub := &fakePublisher{}

	d := New(store, pub, time.Second, 2, zerolog.Nop())
	d.runCycle(context.Background())

	if len(pub.published) != 2 {
		t.Errorf("published = %d, want 2 (batch limit)", len(pub.published))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := &fakeRequestStore{}
	pub := &fakePublisher{}
	d := New(store, pub, 10*time.Millisecond, 10, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
