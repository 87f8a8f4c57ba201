package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rfqs/internal/apperr"
	"rfqs/models"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// TransitionFields carries the optional SET clauses and extra preconditions of
// a conditional transition. Zero value means "change status only".
type TransitionFields struct {
	AwardedTo     *string    // SET awarded_to
	HoldProvider  *string    // SET priority_held_by
	HoldExpiresAt *time.Time // SET priority_hold_expires_at
	ClearHold     bool       // NULL out both hold columns

	RequireAwardedToNull bool       // AND awarded_to IS NULL
	RequireHolder        *string    // AND priority_held_by = $x
	RequireExpiredBy     *time.Time // AND priority_hold_expires_at <= $x
}

// TryTransition is the single write path for RFQ status, awarded_to and the
// hold columns. It issues one conditional UPDATE and reports whether exactly
// one row changed. A false return means the precondition no longer held —
// somebody else committed first.
func (s *Storage) TryTransition(ctx context.Context, rfqID string, from []models.RFQStatus, to models.RFQStatus, tf TransitionFields) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("try transition: empty source state set")
	}

	args := []interface{}{to, rfqID}
	sets := []string{"status=$1"}
	conds := []string{"id=$2"}

	place := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if tf.AwardedTo != nil {
		sets = append(sets, "awarded_to="+place(*tf.AwardedTo))
	}
	if tf.HoldProvider != nil {
		sets = append(sets, "priority_held_by="+place(*tf.HoldProvider))
	}
	if tf.HoldExpiresAt != nil {
		sets = append(sets, "priority_hold_expires_at="+place(*tf.HoldExpiresAt))
	}
	if tf.ClearHold {
		sets = append(sets, "priority_held_by=NULL", "priority_hold_expires_at=NULL")
	}

	placeholders := make([]string, len(from))
	for i, st := range from {
		placeholders[i] = place(string(st))
	}
	conds = append(conds, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))

	if tf.RequireAwardedToNull {
		conds = append(conds, "awarded_to IS NULL")
	}
	if tf.RequireHolder != nil {
		conds = append(conds, "priority_held_by="+place(*tf.RequireHolder))
	}
	if tf.RequireExpiredBy != nil {
		conds = append(conds, "priority_hold_expires_at<="+place(*tf.RequireExpiredBy))
	}

	query := fmt.Sprintf("UPDATE rfq SET %s WHERE %s",
		strings.Join(sets, ", "), strings.Join(conds, " AND "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: transition rfq %s: %v", apperr.ErrUnavailable, rfqID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: transition rfq %s: %v", apperr.ErrUnavailable, rfqID, err)
	}
	return n == 1, nil
}

func (s *Storage) CreateRFQ(ctx context.Context, r *models.RFQ) error {
	query := `
        INSERT INTO rfq
            (id, buyer_id, tenant_id, title, rfq_type, status, urgency, category,
             budget_min, budget_max, deadline, specifications, race_opens_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query,
		r.ID, r.BuyerID, r.TenantID, r.Title, r.RFQType, r.Status, r.Urgency, r.Category,
		r.BudgetMin, r.BudgetMax, r.Deadline, []byte(r.Specifications), r.RaceOpensAt).
		Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: create rfq: %v", apperr.ErrUnavailable, err)
	}
	return nil
}

func (s *Storage) GetRFQ(ctx context.Context, id string) (*models.RFQ, error) {
	r := &models.RFQ{}
	query := `SELECT * FROM rfq WHERE id=$1`
	err := s.db.GetContext(ctx, r, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rfq %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get rfq: %v", apperr.ErrUnavailable, err)
	}
	return r, nil
}

// CreateResponse appends a supplier response and bumps the denormalized
// counter in one transaction. The (rfq_id, provider_id) unique index turns a
// re-response into a validation error without touching the first row.
func (s *Storage) CreateResponse(ctx context.Context, resp *models.RFQResponse) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: create response: %v", apperr.ErrUnavailable, err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO rfq_response
            (id, rfq_id, provider_id, response_type, quoted_price, message)
        VALUES
            ($1, $2, $3, $4, $5, $6)
        RETURNING responded_at`
	err = tx.QueryRowContext(ctx, query,
		resp.ID, resp.RFQID, resp.ProviderID, resp.ResponseType, resp.QuotedPrice, resp.Message).
		Scan(&resp.RespondedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: provider %s already responded to rfq %s",
				apperr.ErrValidation, resp.ProviderID, resp.RFQID)
		}
		return fmt.Errorf("%w: create response: %v", apperr.ErrUnavailable, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE rfq SET response_count = response_count + 1 WHERE id=$1`, resp.RFQID)
	if err != nil {
		return fmt.Errorf("%w: bump response count: %v", apperr.ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: create response: %v", apperr.ErrUnavailable, err)
	}
	return nil
}

func (s *Storage) GetResponse(ctx context.Context, rfqID, providerID string) (*models.RFQResponse, error) {
	resp := &models.RFQResponse{}
	query := `SELECT * FROM rfq_response WHERE rfq_id=$1 AND provider_id=$2`
	err := s.db.GetContext(ctx, resp, query, rfqID, providerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: response from %s on rfq %s", apperr.ErrNotFound, providerID, rfqID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get response: %v", apperr.ErrUnavailable, err)
	}
	return resp, nil
}

func (s *Storage) ListResponses(ctx context.Context, rfqID string) ([]models.RFQResponse, error) {
	responses := []models.RFQResponse{}
	query := `SELECT * FROM rfq_response WHERE rfq_id=$1 ORDER BY responded_at ASC`
	err := s.db.SelectContext(ctx, &responses, query, rfqID)
	if err != nil {
		return nil, fmt.Errorf("%w: list responses: %v", apperr.ErrUnavailable, err)
	}
	return responses, nil
}

func (s *Storage) ListBuyerRFQs(ctx context.Context, buyerID string, limit, offset int) ([]models.RFQ, error) {
	rfqs := []models.RFQ{}
	query := `
        SELECT * FROM rfq
        WHERE buyer_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	err := s.db.SelectContext(ctx, &rfqs, query, buyerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list buyer rfqs: %v", apperr.ErrUnavailable, err)
	}
	return rfqs, nil
}

// ListOpenRFQs is the supplier view: tenant-scoped, race already open, still
// accepting responses.
func (s *Storage) ListOpenRFQs(ctx context.Context, tenantID string, categories []string, limit, offset int) ([]models.RFQ, error) {
	baseQuery := `
        SELECT * FROM rfq
        WHERE tenant_id = $1
          AND status IN ('Open', 'Bidding')
          AND race_opens_at IS NOT NULL AND race_opens_at <= NOW()`
	args := []interface{}{tenantID}

	if len(categories) > 0 {
		placeholders := make([]string, len(categories))
		for i, c := range categories {
			args = append(args, c)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		baseQuery += fmt.Sprintf(" AND category IN (%s)", strings.Join(placeholders, ", "))
	}

	baseQuery += " ORDER BY race_opens_at ASC"
	baseQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rfqs := []models.RFQ{}
	err := s.db.SelectContext(ctx, &rfqs, baseQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list open rfqs: %v", apperr.ErrUnavailable, err)
	}
	return rfqs, nil
}

// ListExpiredHolds feeds the sweeper. The result is advisory only: the actual
// release still goes through TryTransition with holder and expiry guards.
func (s *Storage) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.RFQ, error) {
	rfqs := []models.RFQ{}
	query := `
        SELECT * FROM rfq
        WHERE status = $1 AND priority_hold_expires_at <= $2
        ORDER BY priority_hold_expires_at ASC
        LIMIT $3`
	err := s.db.SelectContext(ctx, &rfqs, query, models.StatusPriorityHold, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list expired holds: %v", apperr.ErrUnavailable, err)
	}
	return rfqs, nil
}
