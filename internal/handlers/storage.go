package handlers

import (
	"context"
	"time"

	"rfqs/db"
	"rfqs/models"
)

type StorageInterface interface {
	CreateRFQ(ctx context.Context, r *models.RFQ) error
	GetRFQ(ctx context.Context, id string) (*models.RFQ, error)
	ListBuyerRFQs(ctx context.Context, buyerID string, limit, offset int) ([]models.RFQ, error)
	ListOpenRFQs(ctx context.Context, tenantID string, categories []string, limit, offset int) ([]models.RFQ, error)

	CreateResponse(ctx context.Context, resp *models.RFQResponse) error
	GetResponse(ctx context.Context, rfqID, providerID string) (*models.RFQResponse, error)
	ListResponses(ctx context.Context, rfqID string) ([]models.RFQResponse, error)

	TryTransition(ctx context.Context, rfqID string, from []models.RFQStatus, to models.RFQStatus, tf db.TransitionFields) (bool, error)
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]models.RFQ, error)
}
