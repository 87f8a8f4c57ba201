package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"rfqs/db"
	"rfqs/models"
)

type memStore struct {
	mu      sync.Mutex
	rfqs    map[string]*models.RFQ
	failIDs map[string]bool // TryTransition errors for these ids
}

func newMemStore(rfqs ...*models.RFQ) *memStore {
	s := &memStore{rfqs: make(map[string]*models.RFQ), failIDs: make(map[string]bool)}
	for _, r := range rfqs {
		s.rfqs[r.ID] = r
	}
	return s
}

func (s *memStore) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.RFQ, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RFQ
	for _, r := range s.rfqs {
		if r.Status == models.StatusPriorityHold && r.PriorityHoldExpiresAt != nil && !r.PriorityHoldExpiresAt.After(now) {
			out = append(out, *r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) TryTransition(ctx context.Context, rfqID string, from []models.RFQStatus, to models.RFQStatus, tf db.TransitionFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[rfqID] {
		return false, errors.New("storage unavailable")
	}
	r, ok := s.rfqs[rfqID]
	if !ok {
		return false, nil
	}
	match := false
	for _, st := range from {
		if r.Status == st {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}
	if tf.RequireHolder != nil && (r.PriorityHeldBy == nil || *r.PriorityHeldBy != *tf.RequireHolder) {
		return false, nil
	}
	if tf.RequireExpiredBy != nil && (r.PriorityHoldExpiresAt == nil || r.PriorityHoldExpiresAt.After(*tf.RequireExpiredBy)) {
		return false, nil
	}
	r.Status = to
	if tf.ClearHold {
		r.PriorityHeldBy = nil
		r.PriorityHoldExpiresAt = nil
	}
	return true, nil
}

func (s *memStore) snapshot(id string) models.RFQ {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rfqs[id]
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func heldRFQ(id, holder string, expires time.Time) *models.RFQ {
	return &models.RFQ{
		ID:                    id,
		RFQType:               models.TypeCustom,
		Status:                models.StatusPriorityHold,
		PriorityHeldBy:        &holder,
		PriorityHoldExpiresAt: &expires,
	}
}

func TestSweepReleasesExpiredHold(t *testing.T) {
	store := newMemStore(heldRFQ("rfq-1", "s1", time.Now().Add(-time.Minute)))
	s := New(store, quietLogger(), time.Second, 10)

	released, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, released)

	final := store.snapshot("rfq-1")
	require.Equal(t, models.StatusBidding, final.Status)
	require.Nil(t, final.PriorityHeldBy)
	require.Nil(t, final.PriorityHoldExpiresAt)
}

func TestSweepSkipsUnexpiredHold(t *testing.T) {
	store := newMemStore(heldRFQ("rfq-1", "s1", time.Now().Add(time.Hour)))
	s := New(store, quietLogger(), time.Second, 10)

	released, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, released)
	require.Equal(t, models.StatusPriorityHold, store.snapshot("rfq-1").Status)
}

func TestSweepConcurrentInstancesReleaseOnce(t *testing.T) {
	store := newMemStore(heldRFQ("rfq-1", "s1", time.Now().Add(-time.Minute)))

	const instances = 4
	totals := make([]int, instances)
	errs := make([]error, instances)
	var wg sync.WaitGroup
	for i := 0; i < instances; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := New(store, quietLogger(), time.Second, 10)
			totals[i], errs[i] = s.Sweep(context.Background())
		}(i)
	}
	wg.Wait()

	sum := 0
	for i := range totals {
		require.NoError(t, errs[i])
		sum += totals[i]
	}
	require.Equal(t, 1, sum)
	require.Equal(t, models.StatusBidding, store.snapshot("rfq-1").Status)
}

func TestSweepErrorOnOneRFQDoesNotBlockOthers(t *testing.T) {
	store := newMemStore(
		heldRFQ("rfq-bad", "s1", time.Now().Add(-time.Minute)),
		heldRFQ("rfq-good", "s2", time.Now().Add(-time.Minute)),
	)
	store.failIDs["rfq-bad"] = true

	s := New(store, quietLogger(), time.Second, 10)
	released, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, released)
	require.Equal(t, models.StatusBidding, store.snapshot("rfq-good").Status)
	require.Equal(t, models.StatusPriorityHold, store.snapshot("rfq-bad").Status)
}

func TestSweepBuyerActionWinsRace(t *testing.T) {
	// The hold was already released manually; the stale listing row must not
	// cause a second transition.
	rfq := heldRFQ("rfq-1", "s1", time.Now().Add(-time.Minute))
	store := newMemStore(rfq)
	s := New(store, quietLogger(), time.Second, 10)

	now := time.Now()
	s.now = func() time.Time { return now }

	// Simulate the buyer committing first, after the sweeper's listing.
	stale, err := store.ListExpiredHolds(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	ok, err := store.TryTransition(context.Background(), "rfq-1",
		[]models.RFQStatus{models.StatusPriorityHold}, models.StatusAwarded,
		db.TransitionFields{ClearHold: true})
	require.NoError(t, err)
	require.True(t, ok)

	released, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, released)
	require.Equal(t, models.StatusAwarded, store.snapshot("rfq-1").Status)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := newMemStore()
	s := New(store, quietLogger(), 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
