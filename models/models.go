package models

import (
	"encoding/json"
	"errors"
	"time"
)

type (
	RFQType      string // Award strategy of the request
	RFQStatus    string // Lifecycle state of the request
	Urgency      string // Broadcast scheduling class
	ResponseType string // Kind of supplier reply
)

const (
	TypeCommodity RFQType = "commodity" // first accept wins automatically
	TypeCustom    RFQType = "custom"    // first accept gets a priority hold
	TypeService   RFQType = "service"   // buyer picks the winner manually

	StatusOpen         RFQStatus = "Open"
	StatusBidding      RFQStatus = "Bidding"
	StatusPriorityHold RFQStatus = "priority_hold"
	StatusAwarded      RFQStatus = "Awarded"
	StatusClosed       RFQStatus = "Closed"
	StatusCancelled    RFQStatus = "cancelled"

	UrgencyUrgent   Urgency = "urgent"
	UrgencyStandard Urgency = "standard"

	ResponseAccept      ResponseType = "accept"
	ResponseInfoRequest ResponseType = "info_request"
	ResponseDecline     ResponseType = "decline"
)

func ValidRFQType(t RFQType) bool {
	switch t {
	case TypeCommodity, TypeCustom, TypeService:
		return true
	default:
		return false
	}
}

func ValidResponseType(t ResponseType) bool {
	switch t {
	case ResponseAccept, ResponseInfoRequest, ResponseDecline:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further automatic transition may leave the state.
// Closed is terminal for bidding purposes but still allows a manual award.
func (s RFQStatus) Terminal() bool {
	switch s {
	case StatusAwarded, StatusClosed, StatusCancelled:
		return true
	default:
		return false
	}
}

// RFQ — запрос на закупку (Request for Quote)
type RFQ struct {
	ID                    string          `db:"id" json:"id"`
	BuyerID               string          `db:"buyer_id" json:"buyerId"`
	TenantID              string          `db:"tenant_id" json:"tenantId"`
	Title                 string          `db:"title" json:"title"`
	RFQType               RFQType         `db:"rfq_type" json:"rfqType"`
	Status                RFQStatus       `db:"status" json:"status"`
	Urgency               Urgency         `db:"urgency" json:"urgency"`
	Category              string          `db:"category" json:"category"`
	BudgetMin             *float64        `db:"budget_min" json:"budgetMin,omitempty"`
	BudgetMax             *float64        `db:"budget_max" json:"budgetMax,omitempty"`
	Deadline              *time.Time      `db:"deadline" json:"deadline,omitempty"`
	Specifications        json.RawMessage `db:"specifications" json:"specifications"`
	RaceOpensAt           *time.Time      `db:"race_opens_at" json:"raceOpensAt,omitempty"`
	PriorityHoldExpiresAt *time.Time      `db:"priority_hold_expires_at" json:"priorityHoldExpiresAt,omitempty"`
	PriorityHeldBy        *string         `db:"priority_held_by" json:"priorityHeldBy,omitempty"`
	AwardedTo             *string         `db:"awarded_to" json:"awardedTo,omitempty"`
	ResponseCount         int             `db:"response_count" json:"responseCount"`
	CreatedAt             time.Time       `db:"created_at" json:"createdAt"`
}

// RFQResponse — ответ поставщика. Append-only: never updated or deleted.
type RFQResponse struct {
	ID           string       `db:"id" json:"id"`
	RFQID        string       `db:"rfq_id" json:"rfqId"`
	ProviderID   string       `db:"provider_id" json:"providerId"`
	ResponseType ResponseType `db:"response_type" json:"responseType"`
	QuotedPrice  *float64     `db:"quoted_price" json:"quotedPrice,omitempty"`
	Message      string       `db:"message" json:"message"`
	RespondedAt  time.Time    `db:"responded_at" json:"respondedAt"`
}

// RFQSummary is the supplier-facing list row. OpensInSeconds is computed per
// supplier timezone at read time and never stored.
type RFQSummary struct {
	RFQ
	OpensInSeconds *int64 `json:"opensInSeconds,omitempty"`
}

// CreateRFQRequest — тело запроса на создание RFQ
type CreateRFQRequest struct {
	Title             string      `json:"title" validate:"required,max=200"`
	RFQType           RFQType     `json:"rfqType" validate:"required,oneof=commodity custom service"`
	Urgency           Urgency     `json:"urgency" validate:"required,oneof=urgent standard"`
	Category          string      `json:"category" validate:"max=100"`
	BudgetMin         *float64    `json:"budgetMin" validate:"omitempty,gte=0"`
	BudgetMax         *float64    `json:"budgetMax" validate:"omitempty,gte=0"`
	Deadline          *time.Time  `json:"deadline"`
	BuyerTimezone     string      `json:"buyerTimezone" validate:"required"`
	SupplierTimezones []string    `json:"supplierTimezones"`
	Specifications    SpecPayload `json:"specifications" validate:"required"`
}

// SpecPayload is the tagged union for category-dependent specification data.
// Exactly one variant must be set and it must match Kind.
type SpecPayload struct {
	Kind            string               `json:"kind" validate:"required,oneof=physical_product materials service"`
	PhysicalProduct *PhysicalProductSpec `json:"physicalProduct,omitempty"`
	Materials       *MaterialsSpec       `json:"materials,omitempty"`
	Service         *ServiceSpec         `json:"service,omitempty"`
}

type PhysicalProductSpec struct {
	Dimensions  string   `json:"dimensions" validate:"required,max=200"`
	Quantity    int      `json:"quantity" validate:"required,gt=0"`
	Tolerances  string   `json:"tolerances" validate:"max=200"`
	Attachments []string `json:"attachments" validate:"dive,max=500"`
}

type MaterialsSpec struct {
	Grade       string   `json:"grade" validate:"required,max=100"`
	QuantityKg  float64  `json:"quantityKg" validate:"required,gt=0"`
	Certs       []string `json:"certs" validate:"dive,max=100"`
	Attachments []string `json:"attachments" validate:"dive,max=500"`
}

type ServiceSpec struct {
	Description  string   `json:"description" validate:"required,max=2000"`
	Deliverables []string `json:"deliverables" validate:"dive,max=500"`
	Attachments  []string `json:"attachments" validate:"dive,max=500"`
}

var errSpecVariant = errors.New("specifications variant does not match kind")

// Validate enforces the union discipline beyond struct tags: the variant named
// by Kind must be present and the other two absent.
func (p *SpecPayload) Validate() error {
	set := 0
	if p.PhysicalProduct != nil {
		set++
	}
	if p.Materials != nil {
		set++
	}
	if p.Service != nil {
		set++
	}
	if set != 1 {
		return errSpecVariant
	}
	switch p.Kind {
	case "physical_product":
		if p.PhysicalProduct == nil {
			return errSpecVariant
		}
	case "materials":
		if p.Materials == nil {
			return errSpecVariant
		}
	case "service":
		if p.Service == nil {
			return errSpecVariant
		}
	default:
		return errSpecVariant
	}
	return nil
}

// RespondRequest — тело ответа поставщика
type RespondRequest struct {
	Type        ResponseType `json:"type" validate:"required,oneof=accept info_request decline"`
	QuotedPrice *float64     `json:"quotedPrice" validate:"omitempty,gt=0"`
	Message     string       `json:"message" validate:"max=2000"`
}

// RespondResult tells the supplier what happened without over-promising:
// a recorded accept that lost the race is Recorded=true, Awarded=false.
type RespondResult struct {
	Recorded     bool `json:"recorded"`
	Awarded      bool `json:"awarded"`
	PriorityHold bool `json:"priorityHold"`
}

type AwardRequest struct {
	ProviderID string `json:"providerId" validate:"required,uuid4"`
}

// AwardEvent is published once per RFQ when a winner is chosen. Delivery is
// at-least-once; consumers dedupe on RFQID.
type AwardEvent struct {
	EventID           string    `json:"eventId"`
	RFQID             string    `json:"rfqId"`
	WinningSupplierID string    `json:"winningSupplierId"`
	QuotedPrice       *float64  `json:"quotedPrice,omitempty"`
	AwardedAt         time.Time `json:"awardedAt"`
}
