// Package sweeper releases expired priority holds back to open bidding. It is
// a periodic in-process task, not a cron endpoint, so overlapping runs and
// shutdown stay easy to reason about.
package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"rfqs/db"
	"rfqs/models"
)

// Store is the slice of the repository the sweeper needs.
type Store interface {
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.RFQ, error)
	TryTransition(ctx context.Context, rfqID string, from []models.RFQStatus, to models.RFQStatus, tf db.TransitionFields) (bool, error)
}

type Sweeper struct {
	store    Store
	log      *logrus.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
}

func New(store Store, log *logrus.Logger, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		store:    store,
		log:      log,
		interval: interval,
		batch:    batch,
		now:      time.Now,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval.String()).Info("hold sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("hold sweeper stopped")
			return
		case <-ticker.C:
			released, err := s.Sweep(ctx)
			if err != nil {
				s.log.WithError(err).Error("hold sweep failed")
				continue
			}
			if released > 0 {
				s.log.WithField("released", released).Info("released expired holds")
			}
		}
	}
}

// Sweep releases every hold whose expiry has passed. The holder and expiry
// guards on the transition make concurrent sweeper instances and concurrent
// buyer actions race safely: whoever commits first wins, the rest no-op.
// Failure on one RFQ never blocks the others.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.store.ListExpiredHolds(ctx, now, s.batch)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, rfq := range expired {
		if rfq.PriorityHeldBy == nil {
			// Inconsistent row; schema constraint should prevent this.
			s.log.WithField("rfq_id", rfq.ID).Error("held rfq without holder, skipping")
			continue
		}
		ok, err := s.store.TryTransition(ctx, rfq.ID,
			[]models.RFQStatus{models.StatusPriorityHold}, models.StatusBidding,
			db.TransitionFields{
				ClearHold:        true,
				RequireHolder:    rfq.PriorityHeldBy,
				RequireExpiredBy: &now,
			})
		if err != nil {
			s.log.WithError(err).WithField("rfq_id", rfq.ID).Error("failed to release hold")
			continue
		}
		if ok {
			released++
			s.log.WithFields(logrus.Fields{
				"rfq_id": rfq.ID,
				"holder": *rfq.PriorityHeldBy,
			}).Info("expired hold released, bidding reopened")
		}
	}
	return released, nil
}
