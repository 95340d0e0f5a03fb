package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agency-crm/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedOwner(t *testing.T, s *SQLiteStore) *model.User {
	t.Helper()
	u := &model.User{
		ID:           newID(),
		Email:        "owner@agency.local",
		Name:         "Owner",
		PasswordHash: "x",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedCompany(t *testing.T, s *SQLiteStore, ownerID, name string) *model.Company {
	t.Helper()
	now := time.Now().UTC()
	c := &model.Company{
		ID:        newID(),
		Name:      name,
		Type:      model.TypeProspect,
		Source:    model.SourceManual,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateCompany(context.Background(), c))
	return c
}

func TestSQLite_CompanyRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	owner := seedOwner(t, s)

	size := model.SizeMedium
	now := time.Now().UTC()
	c := &model.Company{
		ID:            newID(),
		Name:          "Acme Agency",
		Domain:        "acme.example",
		City:          "Berlin",
		Size:          &size,
		Type:          model.TypeCustomer,
		Source:        model.SourceHubspotImport,
		AnnualRevenue: decimal.RequireFromString("1000000.50"),
		OwnerID:       owner.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, s.CreateCompany(ctx, c))

	got, err := s.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Agency", got.Name)
	require.NotNil(t, got.Size)
	assert.Equal(t, model.SizeMedium, *got.Size)
	assert.True(t, got.AnnualRevenue.Equal(c.AnnualRevenue))

	byName, err := s.GetCompanyByName(ctx, "ACME AGENCY")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byName.ID, "name lookup is case-insensitive")

	_, err = s.GetCompany(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListCompaniesSearch(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	owner := seedOwner(t, s)
	seedCompany(t, s, owner.ID, "Acme Agency")
	seedCompany(t, s, owner.ID, "Globex")

	found, err := s.ListCompanies(ctx, CompanyFilter{Search: "acme"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Acme Agency", found[0].Name)

	all, err := s.ListCompanies(ctx, CompanyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_DealLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	owner := seedOwner(t, s)
	company := seedCompany(t, s, owner.ID, "Acme Agency")

	now := time.Now().UTC()
	d := &model.Deal{
		ID:             newID(),
		Name:           "Website Redesign",
		Value:          decimal.RequireFromString("999.99"),
		Currency:       "USD",
		Probability:    33,
		WeightedValue:  model.WeightedValue(decimal.RequireFromString("999.99"), 33),
		Stage:          model.StageInquiry,
		OwnerID:        owner.ID,
		CompanyID:      company.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
		StageChangedAt: now,
	}
	require.NoError(t, s.CreateDealWithHistory(ctx, d))

	got, err := s.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.WeightedValue.Equal(decimal.RequireFromString("329.9967")),
		"weighted value survives storage exactly")

	// Win the deal: field update and history row commit together.
	prob := 100
	weighted := got.Value
	status := model.ClosedStatusWon
	closeTime := now.Add(time.Hour)
	require.NoError(t, s.ApplyStageChange(ctx, StageChange{
		DealID:          d.ID,
		FromStage:       model.StageInquiry,
		ToStage:         model.StageClosedWon,
		ChangedBy:       owner.ID,
		ChangedAt:       closeTime,
		Probability:     &prob,
		WeightedValue:   &weighted,
		ClosedStatus:    &status,
		ActualCloseDate: &closeTime,
	}))

	won, err := s.GetDeal(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageClosedWon, won.Stage)
	assert.Equal(t, 100, won.Probability)
	assert.True(t, won.WeightedValue.Equal(won.Value))
	assert.Equal(t, model.ClosedStatusWon, won.ClosedStatus)

	history, err := s.ListStageHistory(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].FromStage)
	assert.Equal(t, model.StageInquiry, history[0].ToStage)
	require.NotNil(t, history[1].FromStage)
	assert.Equal(t, model.StageInquiry, *history[1].FromStage)
	assert.Equal(t, model.StageClosedWon, history[1].ToStage)
}

func TestSQLite_ApplyStageChange_MissingDeal(t *testing.T) {
	s := newSQLiteStore(t)

	err := s.ApplyStageChange(context.Background(), StageChange{
		DealID:    "ghost",
		FromStage: model.StageInquiry,
		ToStage:   model.StageNegotiation,
		ChangedBy: "u-1",
		ChangedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ClearBusinessDataPreservesUsers(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	owner := seedOwner(t, s)
	seedCompany(t, s, owner.ID, "Acme Agency")

	require.NoError(t, s.ClearBusinessData(ctx))

	n, err := s.CountEntities(ctx, "companies")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.GetUserByEmail(ctx, "owner@agency.local")
	assert.NoError(t, err, "user accounts survive the clear")
}

func TestSQLite_Aggregates(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	owner := seedOwner(t, s)
	company := seedCompany(t, s, owner.ID, "Acme Agency")
	now := time.Now().UTC()

	addDeal := func(stage model.DealStage, value string, prob int, status model.ClosedStatus, closed *time.Time) {
		v := decimal.RequireFromString(value)
		d := &model.Deal{
			ID:              newID(),
			Name:            "Deal " + value,
			Value:           v,
			Currency:        "USD",
			Probability:     prob,
			WeightedValue:   model.WeightedValue(v, prob),
			Stage:           stage,
			ClosedStatus:    status,
			ActualCloseDate: closed,
			OwnerID:         owner.ID,
			CompanyID:       company.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
			StageChangedAt:  now,
		}
		require.NoError(t, s.CreateDealWithHistory(ctx, d))
	}

	addDeal(model.StageNegotiation, "1000", 50, model.ClosedStatusNone, nil)
	addDeal(model.StageNegotiation, "3000", 50, model.ClosedStatusNone, nil)
	addDeal(model.StageClosedWon, "9000", 100, model.ClosedStatusWon, &now)

	open, err := s.OpenPipelineValue(ctx)
	require.NoError(t, err)
	assert.True(t, open.Equal(decimal.NewFromInt(2000)), "open pipeline sums weighted values, got %s", open)

	won, err := s.WonValueSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, won.Equal(decimal.NewFromInt(9000)))

	aggs, err := s.StageSummary(ctx)
	require.NoError(t, err)
	byStage := make(map[model.DealStage]StageAggregate)
	for _, a := range aggs {
		byStage[a.Stage] = a
	}
	assert.Equal(t, 2, byStage[model.StageNegotiation].Count)
	assert.True(t, byStage[model.StageNegotiation].Value.Equal(decimal.NewFromInt(4000)))
}

func TestSQLite_OpenPipelineExcludesWon(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	// No deals at all: aggregates come back zero, not an error.
	open, err := s.OpenPipelineValue(ctx)
	require.NoError(t, err)
	assert.True(t, open.IsZero())
}
