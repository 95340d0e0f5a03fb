package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DealStage is a position in the sales pipeline.
type DealStage string

// Open pipeline stages, in funnel order, followed by the two terminal stages.
const (
	StageInquiry            DealStage = "INQUIRY"
	StageDiscoveryScheduled DealStage = "DISCOVERY_SCHEDULED"
	StageProposalNeeded     DealStage = "PROPOSAL_NEEDED"
	StageProposalSent       DealStage = "PROPOSAL_SENT"
	StageProposalReviewed   DealStage = "PROPOSAL_REVIEWED"
	StageDecisionMaker      DealStage = "DECISION_MAKER"
	StageNegotiation        DealStage = "NEGOTIATION"
	StageContract           DealStage = "CONTRACT"
	StageClosedWon          DealStage = "CLOSED_WON"
	StageClosedLost         DealStage = "CLOSED_LOST"
)

// PipelineStages lists the open stages in funnel order. Terminal stages are
// not part of the funnel.
var PipelineStages = []DealStage{
	StageInquiry,
	StageDiscoveryScheduled,
	StageProposalNeeded,
	StageProposalSent,
	StageProposalReviewed,
	StageDecisionMaker,
	StageNegotiation,
	StageContract,
}

// Valid reports whether s is a known stage, open or terminal.
func (s DealStage) Valid() bool {
	if s.Terminal() {
		return true
	}
	for _, stage := range PipelineStages {
		if s == stage {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the pipeline.
func (s DealStage) Terminal() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// ClosedStatus is the outcome of a terminal deal. Open deals carry
// ClosedStatusNone.
type ClosedStatus string

const (
	ClosedStatusNone ClosedStatus = ""
	ClosedStatusWon  ClosedStatus = "WON"
	ClosedStatusLost ClosedStatus = "LOST"
)

// LostReason categorizes why a deal was lost.
type LostReason string

const (
	LostReasonPrice      LostReason = "PRICE"
	LostReasonTiming     LostReason = "TIMING"
	LostReasonCompetitor LostReason = "COMPETITOR"
	LostReasonNoBudget   LostReason = "NO_BUDGET"
	LostReasonNoResponse LostReason = "NO_RESPONSE"
	LostReasonScope      LostReason = "SCOPE"
	LostReasonOther      LostReason = "OTHER"
)

// Valid reports whether r is a known lost reason.
func (r LostReason) Valid() bool {
	switch r {
	case LostReasonPrice, LostReasonTiming, LostReasonCompetitor,
		LostReasonNoBudget, LostReasonNoResponse, LostReasonScope,
		LostReasonOther:
		return true
	}
	return false
}

// WeightedValue is value * probability / 100, computed exactly. Multiplying
// first and shifting the decimal point avoids division rounding, so
// 999.99 at 33% is exactly 329.9967.
func WeightedValue(value decimal.Decimal, probability int) decimal.Decimal {
	return value.Mul(decimal.NewFromInt(int64(probability))).Shift(-2)
}

// Deal is a sales opportunity moving through the pipeline.
type Deal struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Value             decimal.Decimal `json:"value"`
	Currency          string          `json:"currency"`
	Probability       int             `json:"probability"`
	WeightedValue     decimal.Decimal `json:"weighted_value"`
	Stage             DealStage       `json:"stage"`
	ExpectedCloseDate *time.Time      `json:"expected_close_date,omitempty"`
	ActualCloseDate   *time.Time      `json:"actual_close_date,omitempty"`
	ClosedStatus      ClosedStatus    `json:"closed_status,omitempty"`
	LostReason        LostReason      `json:"lost_reason,omitempty"`
	LostReasonNote    string          `json:"lost_reason_note,omitempty"`
	OwnerID           string          `json:"owner_id"`
	CompanyID         string          `json:"company_id"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	StageChangedAt    time.Time       `json:"stage_changed_at"`
}

// DealStageHistory is one append-only log entry of a stage transition. The
// creation entry has a nil FromStage. Replaying a deal's entries oldest
// first reconstructs its current stage.
type DealStageHistory struct {
	ID        string     `json:"id"`
	DealID    string     `json:"deal_id"`
	FromStage *DealStage `json:"from_stage,omitempty"`
	ToStage   DealStage  `json:"to_stage"`
	ChangedBy string     `json:"changed_by"`
	CreatedAt time.Time  `json:"created_at"`
}
