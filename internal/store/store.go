// Package store defines the persistence interface for the CRM and its
// Postgres and SQLite implementations.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/agency-crm/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = eris.New("store: not found")

// CompanyFilter specifies criteria for listing companies.
type CompanyFilter struct {
	Type   model.CompanyType `json:"type,omitempty"`
	Search string            `json:"search,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}

// ContactFilter specifies criteria for listing contacts.
type ContactFilter struct {
	CompanyID string `json:"company_id,omitempty"`
	Search    string `json:"search,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// DealFilter specifies criteria for listing deals.
type DealFilter struct {
	Stage        model.DealStage    `json:"stage,omitempty"`
	ClosedStatus model.ClosedStatus `json:"closed_status,omitempty"`
	CompanyID    string             `json:"company_id,omitempty"`
	Limit        int                `json:"limit,omitempty"`
	Offset       int                `json:"offset,omitempty"`
}

// StageChange is the persisted effect of one stage transition. The deal field
// update and the history insert are applied in a single transaction.
// Pointer fields are written only when non-nil; open-stage transitions leave
// them nil so probability and value stay as the user set them.
type StageChange struct {
	DealID          string
	FromStage       model.DealStage
	ToStage         model.DealStage
	ChangedBy       string
	ChangedAt       time.Time
	Probability     *int
	WeightedValue   *decimal.Decimal
	ClosedStatus    *model.ClosedStatus
	ActualCloseDate *time.Time
	LostReason      *model.LostReason
	LostReasonNote  *string
}

// StageAggregate is one row of the pipeline breakdown.
type StageAggregate struct {
	Stage         model.DealStage `json:"stage"`
	Count         int             `json:"count"`
	Value         decimal.Decimal `json:"value"`
	WeightedValue decimal.Decimal `json:"weighted_value"`
}

// Store is the persistence interface consumed by the CRM services.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// Companies
	CreateCompany(ctx context.Context, c *model.Company) error
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	GetCompanyByName(ctx context.Context, name string) (*model.Company, error)
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]model.Company, error)
	UpdateCompany(ctx context.Context, c *model.Company) error
	DeleteCompany(ctx context.Context, id string) error
	// AnyCompany returns an arbitrary existing company, or ErrNotFound.
	AnyCompany(ctx context.Context) (*model.Company, error)

	// Contacts
	CreateContact(ctx context.Context, c *model.Contact) error
	GetContact(ctx context.Context, id string) (*model.Contact, error)
	ListContacts(ctx context.Context, filter ContactFilter) ([]model.Contact, error)
	UpdateContact(ctx context.Context, c *model.Contact) error
	DeleteContact(ctx context.Context, id string) error

	// Deals
	// CreateDealWithHistory inserts the deal and its creation history row
	// (from_stage null) in one transaction.
	CreateDealWithHistory(ctx context.Context, d *model.Deal) error
	GetDeal(ctx context.Context, id string) (*model.Deal, error)
	ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error)
	UpdateDeal(ctx context.Context, d *model.Deal) error
	DeleteDeal(ctx context.Context, id string) error
	// ApplyStageChange updates the deal and appends the history row in one
	// transaction; both commit or neither does.
	ApplyStageChange(ctx context.Context, change StageChange) error
	ListStageHistory(ctx context.Context, dealID string) ([]model.DealStageHistory, error)

	// Notes and activities
	CreateNote(ctx context.Context, n *model.Note) error
	ListNotes(ctx context.Context, dealID, companyID, contactID string) ([]model.Note, error)
	DeleteNote(ctx context.Context, id string) error
	CreateActivity(ctx context.Context, a *model.Activity) error
	ListActivities(ctx context.Context, ownerID string, done *bool) ([]model.Activity, error)
	UpdateActivity(ctx context.Context, a *model.Activity) error
	DeleteActivity(ctx context.Context, id string) error

	// ClearBusinessData destructively deletes all business entities
	// (history, activities, notes, deals, contacts, companies) in one
	// transaction, preserving user accounts.
	ClearBusinessData(ctx context.Context) error

	// Dashboard aggregates
	StageSummary(ctx context.Context) ([]StageAggregate, error)
	OpenPipelineValue(ctx context.Context) (decimal.Decimal, error)
	WonValueSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
	CountEntities(ctx context.Context, table string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
