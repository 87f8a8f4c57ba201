// Package award implements the RFQ state machine core: response ingest, the
// per-type award decision, and the buyer decision surface. Every status
// mutation goes through the storage TryTransition primitive; this package
// never writes status fields directly.
package award

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rfqs/db"
	"rfqs/internal/apperr"
	"rfqs/models"
)

// Store is the slice of the repository the resolver needs.
type Store interface {
	GetRFQ(ctx context.Context, id string) (*models.RFQ, error)
	CreateResponse(ctx context.Context, resp *models.RFQResponse) error
	GetResponse(ctx context.Context, rfqID, providerID string) (*models.RFQResponse, error)
	TryTransition(ctx context.Context, rfqID string, from []models.RFQStatus, to models.RFQStatus, tf db.TransitionFields) (bool, error)
}

// Publisher delivers award events to the order collaborator. Failures are the
// publisher's problem to retry; an award is never rolled back over them.
type Publisher interface {
	PublishAward(ctx context.Context, ev models.AwardEvent) error
}

type Resolver struct {
	store   Store
	events  Publisher
	log     *logrus.Logger
	now     func() time.Time
	holdTTL time.Duration
}

func NewResolver(store Store, events Publisher, log *logrus.Logger, holdTTL time.Duration) *Resolver {
	if holdTTL <= 0 {
		holdTTL = 2 * time.Hour
	}
	return &Resolver{
		store:   store,
		events:  events,
		log:     log,
		now:     time.Now,
		holdTTL: holdTTL,
	}
}

// Respond records one supplier response and, for accepts, runs the per-type
// award rule. The response row is written first: it is append-only evidence
// and must survive even when the accept loses the race.
func (r *Resolver) Respond(ctx context.Context, rfqID, supplierID, tenantID string, req models.RespondRequest) (models.RespondResult, error) {
	var out models.RespondResult

	rfq, err := r.store.GetRFQ(ctx, rfqID)
	if err != nil {
		return out, err
	}
	if rfq.TenantID != tenantID {
		return out, fmt.Errorf("%w: supplier tenant mismatch on rfq %s", apperr.ErrUnauthorized, rfqID)
	}
	if rfq.BuyerID == supplierID {
		return out, fmt.Errorf("%w: buyer cannot respond to own rfq", apperr.ErrUnauthorized)
	}
	now := r.now()
	if rfq.RaceOpensAt != nil && now.Before(*rfq.RaceOpensAt) {
		return out, fmt.Errorf("%w: bidding opens at %s", apperr.ErrValidation, rfq.RaceOpensAt.UTC().Format(time.RFC3339))
	}
	if req.Type == models.ResponseAccept && req.QuotedPrice == nil {
		return out, fmt.Errorf("%w: quotedPrice is required for accept", apperr.ErrValidation)
	}

	resp := &models.RFQResponse{
		ID:           uuid.NewString(),
		RFQID:        rfqID,
		ProviderID:   supplierID,
		ResponseType: req.Type,
		QuotedPrice:  req.QuotedPrice,
		Message:      req.Message,
	}
	if err := r.store.CreateResponse(ctx, resp); err != nil {
		return out, err
	}
	out.Recorded = true

	// Terminal RFQs keep collecting responses as evidence but never change
	// status again.
	if rfq.Status.Terminal() {
		return out, nil
	}

	// First response advances Open -> Bidding. Best effort: a concurrent
	// response may have advanced it already, which is fine.
	if _, err := r.store.TryTransition(ctx, rfqID,
		[]models.RFQStatus{models.StatusOpen}, models.StatusBidding, db.TransitionFields{}); err != nil {
		r.log.WithError(err).WithField("rfq_id", rfqID).Warn("open->bidding advance failed")
	}

	if req.Type != models.ResponseAccept {
		return out, nil
	}

	switch rfq.RFQType {
	case models.TypeCommodity:
		won, err := r.store.TryTransition(ctx, rfqID,
			[]models.RFQStatus{models.StatusOpen, models.StatusBidding},
			models.StatusAwarded,
			db.TransitionFields{AwardedTo: &supplierID, RequireAwardedToNull: true, ClearHold: true})
		if err != nil {
			return out, err
		}
		if won {
			out.Awarded = true
			r.publishAward(rfqID, supplierID, req.QuotedPrice, now)
		}

	case models.TypeCustom:
		expires := now.Add(r.holdTTL)
		held, err := r.store.TryTransition(ctx, rfqID,
			[]models.RFQStatus{models.StatusOpen, models.StatusBidding},
			models.StatusPriorityHold,
			db.TransitionFields{HoldProvider: &supplierID, HoldExpiresAt: &expires, RequireAwardedToNull: true})
		if err != nil {
			return out, err
		}
		out.PriorityHold = held

	case models.TypeService:
		// Record only. Award is exclusively buyer-invoked.
	}

	return out, nil
}

// AwardToSupplier is the buyer's manual award: valid for any non-cancelled,
// not-yet-awarded RFQ with a matching accept on file. This covers the service
// flow, confirming or overriding a priority hold, and Closed -> Awarded.
func (r *Resolver) AwardToSupplier(ctx context.Context, rfqID, buyerID, providerID string) error {
	if _, err := r.ownedRFQ(ctx, rfqID, buyerID); err != nil {
		return err
	}

	resp, err := r.store.GetResponse(ctx, rfqID, providerID)
	if err != nil {
		return err
	}
	if resp.ResponseType != models.ResponseAccept {
		return fmt.Errorf("%w: provider %s did not accept rfq %s", apperr.ErrNotFound, providerID, rfqID)
	}

	won, err := r.store.TryTransition(ctx, rfqID,
		[]models.RFQStatus{models.StatusOpen, models.StatusBidding, models.StatusPriorityHold, models.StatusClosed},
		models.StatusAwarded,
		db.TransitionFields{AwardedTo: &providerID, RequireAwardedToNull: true, ClearHold: true})
	if err != nil {
		return err
	}
	if !won {
		return fmt.Errorf("%w: rfq %s already awarded or cancelled", apperr.ErrConflict, rfqID)
	}

	r.publishAward(rfqID, providerID, resp.QuotedPrice, r.now())
	return nil
}

// ReleaseHold reopens bidding on a held custom RFQ.
func (r *Resolver) ReleaseHold(ctx context.Context, rfqID, buyerID string) error {
	if _, err := r.ownedRFQ(ctx, rfqID, buyerID); err != nil {
		return err
	}
	ok, err := r.store.TryTransition(ctx, rfqID,
		[]models.RFQStatus{models.StatusPriorityHold}, models.StatusBidding,
		db.TransitionFields{ClearHold: true})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: rfq %s is not on priority hold", apperr.ErrConflict, rfqID)
	}
	return nil
}

// Close ends bidding without an award. Responses on file stay awardable.
func (r *Resolver) Close(ctx context.Context, rfqID, buyerID string) error {
	if _, err := r.ownedRFQ(ctx, rfqID, buyerID); err != nil {
		return err
	}
	ok, err := r.store.TryTransition(ctx, rfqID,
		[]models.RFQStatus{models.StatusOpen, models.StatusBidding, models.StatusPriorityHold},
		models.StatusClosed,
		db.TransitionFields{ClearHold: true})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: rfq %s already terminal", apperr.ErrConflict, rfqID)
	}
	return nil
}

// Cancel withdraws an RFQ before any award or hold was granted.
func (r *Resolver) Cancel(ctx context.Context, rfqID, buyerID string) error {
	if _, err := r.ownedRFQ(ctx, rfqID, buyerID); err != nil {
		return err
	}
	ok, err := r.store.TryTransition(ctx, rfqID,
		[]models.RFQStatus{models.StatusOpen, models.StatusBidding},
		models.StatusCancelled,
		db.TransitionFields{RequireAwardedToNull: true})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: rfq %s cannot be cancelled", apperr.ErrConflict, rfqID)
	}
	return nil
}

func (r *Resolver) ownedRFQ(ctx context.Context, rfqID, buyerID string) (*models.RFQ, error) {
	rfq, err := r.store.GetRFQ(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.BuyerID != buyerID {
		return nil, fmt.Errorf("%w: caller is not the buyer of rfq %s", apperr.ErrUnauthorized, rfqID)
	}
	return rfq, nil
}

// publishAward hands the event off asynchronously. The award is already
// durable; delivery failures are logged and retried by the publisher, never
// surfaced to the caller.
func (r *Resolver) publishAward(rfqID, supplierID string, price *float64, at time.Time) {
	ev := models.AwardEvent{
		EventID:           uuid.NewString(),
		RFQID:             rfqID,
		WinningSupplierID: supplierID,
		QuotedPrice:       price,
		AwardedAt:         at,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.events.PublishAward(ctx, ev); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"rfq_id":   ev.RFQID,
				"event_id": ev.EventID,
			}).Error("failed to publish award event")
		}
	}()
}
