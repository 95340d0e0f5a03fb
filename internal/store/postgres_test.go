package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agency-crm/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestGetCompany(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	size := "MEDIUM"

	mock.ExpectQuery(`SELECT .+ FROM companies WHERE id = \$1`).
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "domain", "phone", "city", "country", "size",
			"type", "source", "annual_revenue", "owner_id", "created_at", "updated_at",
		}).AddRow("c-1", "Acme Agency", "acme.example", "", "Berlin", "DE", &size,
			"CUSTOMER", "HUBSPOT_IMPORT", "1000000", "u-1", now, now))

	c, err := s.GetCompany(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Agency", c.Name)
	assert.Equal(t, model.TypeCustomer, c.Type)
	require.NotNil(t, c.Size)
	assert.Equal(t, model.SizeMedium, *c.Size)
	assert.True(t, c.AnnualRevenue.Equal(decimal.NewFromInt(1000000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCompany_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM companies WHERE id = \$1`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := s.GetCompany(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDealWithHistory_Transactional(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	d := &model.Deal{
		ID:             "d-1",
		Name:           "Website Redesign",
		Value:          decimal.NewFromInt(1000),
		Currency:       "USD",
		Probability:    60,
		WeightedValue:  decimal.NewFromInt(600),
		Stage:          model.StageInquiry,
		OwnerID:        "u-1",
		CompanyID:      "c-1",
		CreatedAt:      now,
		UpdatedAt:      now,
		StageChangedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO deals`).
		WithArgs(d.ID, d.Name, "1000", "USD", 60, "600", "INQUIRY",
			pgxmock.AnyArg(), pgxmock.AnyArg(), "", "", "", "u-1", "c-1", now, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO deal_stage_history`).
		WithArgs(pgxmock.AnyArg(), d.ID, "INQUIRY", "u-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.CreateDealWithHistory(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStageChange_ClosedWon(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	prob := 100
	weighted := decimal.NewFromInt(5000)
	status := model.ClosedStatusWon

	change := StageChange{
		DealID:          "d-1",
		FromStage:       model.StageNegotiation,
		ToStage:         model.StageClosedWon,
		ChangedBy:       "u-1",
		ChangedAt:       now,
		Probability:     &prob,
		WeightedValue:   &weighted,
		ClosedStatus:    &status,
		ActualCloseDate: &now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE deals SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO deal_stage_history`).
		WithArgs(pgxmock.AnyArg(), "d-1", "NEGOTIATION", "CLOSED_WON", "u-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.ApplyStageChange(context.Background(), change))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyStageChange_MissingDealRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE deals SET`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.ApplyStageChange(context.Background(), StageChange{
		DealID:    "ghost",
		FromStage: model.StageInquiry,
		ToStage:   model.StageNegotiation,
		ChangedBy: "u-1",
		ChangedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListStageHistory(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	from := "INQUIRY"

	mock.ExpectQuery(`FROM deal_stage_history WHERE deal_id = \$1`).
		WithArgs("d-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "deal_id", "from_stage", "to_stage", "changed_by", "created_at",
		}).
			AddRow("h-1", "d-1", nil, "INQUIRY", "u-1", now).
			AddRow("h-2", "d-1", &from, "NEGOTIATION", "u-1", now.Add(time.Hour)))

	history, err := s.ListStageHistory(context.Background(), "d-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].FromStage, "creation entry has no from stage")
	require.NotNil(t, history[1].FromStage)
	assert.Equal(t, model.StageInquiry, *history[1].FromStage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearBusinessData_ChildrenBeforeParents(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	for _, table := range clearOrder {
		mock.ExpectExec(`DELETE FROM ` + table).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
	}
	mock.ExpectCommit()

	require.NoError(t, s.ClearBusinessData(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStageSummary(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT stage, COUNT`).
		WillReturnRows(pgxmock.NewRows([]string{"stage", "count", "value", "weighted"}).
			AddRow("NEGOTIATION", 2, "5000", "3500").
			AddRow("CLOSED_WON", 1, "9000", "9000"))

	aggs, err := s.StageSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Equal(t, model.StageNegotiation, aggs[0].Stage)
	assert.True(t, aggs[0].WeightedValue.Equal(decimal.NewFromInt(3500)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountEntities_RejectsUnknownTable(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.CountEntities(context.Background(), "users; DROP TABLE users")
	assert.Error(t, err)
}

func TestMigrate_AdvisoryLockAlwaysReleased(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
