// Package deal implements the pipeline stage engine: stage transitions,
// terminal-state coupling, weighted-value recomputation, and the append-only
// stage history contract.
package deal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

var (
	// ErrInvalidStage is returned for a stage outside the pipeline.
	ErrInvalidStage = eris.New("deal: invalid stage")
	// ErrInvalidProbability is returned for probability outside 0..100.
	ErrInvalidProbability = eris.New("deal: probability must be between 0 and 100")
	// ErrLostReasonRequired is returned for a closed-lost transition without
	// a reason when the engine's RequireLostReason policy is on.
	ErrLostReasonRequired = eris.New("deal: lost reason required to close lost")
	// ErrCompanyRequired is returned when a deal is created without a company.
	ErrCompanyRequired = eris.New("deal: company is required")
	// ErrDealClosed is returned for value or probability edits on a deal in
	// a terminal stage. Closed deals keep their terminal field coupling;
	// reopen via ChangeStage before editing.
	ErrDealClosed = eris.New("deal: closed deals cannot change value or probability")
	// ErrLostReasonNotAllowed is returned when lost-reason fields accompany
	// a transition that is not closed-lost.
	ErrLostReasonNotAllowed = eris.New("deal: lost reason only applies when closing lost")
)

// Store is the persistence surface the engine needs.
type Store interface {
	GetDeal(ctx context.Context, id string) (*model.Deal, error)
	CreateDealWithHistory(ctx context.Context, d *model.Deal) error
	UpdateDeal(ctx context.Context, d *model.Deal) error
	ApplyStageChange(ctx context.Context, change store.StageChange) error
	ListStageHistory(ctx context.Context, dealID string) ([]model.DealStageHistory, error)
}

// Engine executes stage transitions and deal edits, maintaining the
// weighted-value invariant on every mutation.
type Engine struct {
	store Store

	// RequireLostReason makes ChangeStage reject CLOSED_LOST without a
	// reason. Explicit policy rather than a UI-only rule; off by default so
	// imported and legacy closes are accepted.
	requireLostReason bool
}

// NewEngine creates a stage engine over the given store.
func NewEngine(s Store, requireLostReason bool) *Engine {
	return &Engine{store: s, requireLostReason: requireLostReason}
}

// CreateParams describes a new deal. Stage defaults to INQUIRY.
type CreateParams struct {
	Name              string
	Value             decimal.Decimal
	Currency          string
	Probability       int
	Stage             model.DealStage
	ExpectedCloseDate *time.Time
	CompanyID         string
	OwnerID           string
}

// Create inserts the deal together with its creation history row
// (fromStage null). A deal created directly in a terminal stage gets the
// same field coupling a transition would apply.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*model.Deal, error) {
	if p.CompanyID == "" {
		return nil, ErrCompanyRequired
	}
	if p.Probability < 0 || p.Probability > 100 {
		return nil, ErrInvalidProbability
	}
	stage := p.Stage
	if stage == "" {
		stage = model.StageInquiry
	}
	if !stage.Valid() {
		return nil, eris.Wrapf(ErrInvalidStage, "%q", stage)
	}
	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	d := &model.Deal{
		ID:                uuid.New().String(),
		Name:              p.Name,
		Value:             p.Value,
		Currency:          currency,
		Probability:       p.Probability,
		WeightedValue:     model.WeightedValue(p.Value, p.Probability),
		Stage:             stage,
		ExpectedCloseDate: p.ExpectedCloseDate,
		OwnerID:           p.OwnerID,
		CompanyID:         p.CompanyID,
		CreatedAt:         now,
		UpdatedAt:         now,
		StageChangedAt:    now,
	}

	switch stage {
	case model.StageClosedWon:
		d.ClosedStatus = model.ClosedStatusWon
		d.Probability = 100
		d.WeightedValue = d.Value
		d.ActualCloseDate = &now
	case model.StageClosedLost:
		d.ClosedStatus = model.ClosedStatusLost
		d.Probability = 0
		d.WeightedValue = decimal.Zero
		d.ActualCloseDate = &now
	}

	if err := e.store.CreateDealWithHistory(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ChangeStageParams carries the optional closed-lost fields. They are only
// legal alongside a CLOSED_LOST transition.
type ChangeStageParams struct {
	LostReason     model.LostReason
	LostReasonNote string
}

// ChangeStage moves a deal to newStage. Equal stages are a no-op: no history
// entry, no field changes. Any stage may move to any other stage, including
// backward; deals jump stages in practice.
func (e *Engine) ChangeStage(ctx context.Context, dealID string, newStage model.DealStage, userID string, p ChangeStageParams) (*model.Deal, error) {
	if !newStage.Valid() {
		return nil, eris.Wrapf(ErrInvalidStage, "%q", newStage)
	}
	if p.LostReason != "" && !p.LostReason.Valid() {
		return nil, eris.Errorf("deal: invalid lost reason %q", p.LostReason)
	}
	if newStage != model.StageClosedLost && (p.LostReason != "" || p.LostReasonNote != "") {
		return nil, ErrLostReasonNotAllowed
	}

	d, err := e.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if d.Stage == newStage {
		return d, nil
	}

	now := time.Now().UTC()
	change := store.StageChange{
		DealID:    dealID,
		FromStage: d.Stage,
		ToStage:   newStage,
		ChangedBy: userID,
		ChangedAt: now,
	}

	switch newStage {
	case model.StageClosedWon:
		prob := 100
		weighted := d.Value
		status := model.ClosedStatusWon
		change.Probability = &prob
		change.WeightedValue = &weighted
		change.ClosedStatus = &status
		change.ActualCloseDate = &now

		d.Probability = prob
		d.WeightedValue = weighted
		d.ClosedStatus = status
		d.ActualCloseDate = &now

	case model.StageClosedLost:
		if e.requireLostReason && p.LostReason == "" {
			return nil, ErrLostReasonRequired
		}
		prob := 0
		weighted := decimal.Zero
		status := model.ClosedStatusLost
		change.Probability = &prob
		change.WeightedValue = &weighted
		change.ClosedStatus = &status
		change.ActualCloseDate = &now

		d.Probability = prob
		d.WeightedValue = weighted
		d.ClosedStatus = status
		d.ActualCloseDate = &now

		if p.LostReason != "" {
			reason := p.LostReason
			change.LostReason = &reason
			d.LostReason = reason
		}
		if p.LostReasonNote != "" {
			note := p.LostReasonNote
			change.LostReasonNote = &note
			d.LostReasonNote = note
		}

	default:
		// Open-stage transition: only stage and stage_changed_at move;
		// probability and value stay as the user set them.
	}

	if err := e.store.ApplyStageChange(ctx, change); err != nil {
		return nil, err
	}

	d.Stage = newStage
	d.StageChangedAt = now
	d.UpdatedAt = now
	return d, nil
}

// UpdateParams is an explicit partial-update command for open deal fields.
// Stage and closing fields are not updatable here; they go through
// ChangeStage so the closing coupling cannot be bypassed.
type UpdateParams struct {
	Name              *string
	Value             *decimal.Decimal
	Probability       *int
	Currency          *string
	ExpectedCloseDate *time.Time
	OwnerID           *string
	CompanyID         *string
}

// Update applies the non-nil fields and recomputes the weighted value using
// the pending new value for whichever input changed and the stored value for
// the one that did not. Value and probability are frozen on closed deals:
// CLOSED_WON couples probability=100 and weightedValue=value, CLOSED_LOST
// couples them to zero, and an edit here would silently break that.
func (e *Engine) Update(ctx context.Context, dealID string, p UpdateParams) (*model.Deal, error) {
	if p.Probability != nil && (*p.Probability < 0 || *p.Probability > 100) {
		return nil, ErrInvalidProbability
	}

	d, err := e.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if d.Stage.Terminal() && (p.Value != nil || p.Probability != nil) {
		return nil, ErrDealClosed
	}

	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Value != nil {
		d.Value = *p.Value
	}
	if p.Probability != nil {
		d.Probability = *p.Probability
	}
	if p.Currency != nil {
		d.Currency = *p.Currency
	}
	if p.ExpectedCloseDate != nil {
		d.ExpectedCloseDate = p.ExpectedCloseDate
	}
	if p.OwnerID != nil {
		d.OwnerID = *p.OwnerID
	}
	if p.CompanyID != nil {
		d.CompanyID = *p.CompanyID
	}

	if p.Value != nil || p.Probability != nil {
		d.WeightedValue = model.WeightedValue(d.Value, d.Probability)
	}

	d.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateDeal(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// History returns the deal's stage log ordered oldest first. Replaying the
// entries reconstructs the current stage.
func (e *Engine) History(ctx context.Context, dealID string) ([]model.DealStageHistory, error) {
	return e.store.ListStageHistory(ctx, dealID)
}
