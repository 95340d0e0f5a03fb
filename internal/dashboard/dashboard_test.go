package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

type fakeAggStore struct {
	stages    []store.StageAggregate
	open      decimal.Decimal
	won       decimal.Decimal
	counts    map[string]int
	failCount bool

	wonSince time.Time
}

func (f *fakeAggStore) StageSummary(context.Context) ([]store.StageAggregate, error) {
	return f.stages, nil
}

func (f *fakeAggStore) OpenPipelineValue(context.Context) (decimal.Decimal, error) {
	return f.open, nil
}

func (f *fakeAggStore) WonValueSince(_ context.Context, since time.Time) (decimal.Decimal, error) {
	f.wonSince = since
	return f.won, nil
}

func (f *fakeAggStore) CountEntities(_ context.Context, table string) (int, error) {
	if f.failCount {
		return 0, eris.New("store: count failed")
	}
	return f.counts[table], nil
}

func TestOverview_PadsMissingOpenStages(t *testing.T) {
	fs := &fakeAggStore{
		stages: []store.StageAggregate{
			{Stage: model.StageNegotiation, Count: 2, Value: decimal.NewFromInt(5000), WeightedValue: decimal.NewFromInt(3500)},
			{Stage: model.StageClosedWon, Count: 1, Value: decimal.NewFromInt(9000), WeightedValue: decimal.NewFromInt(9000)},
		},
		open:   decimal.NewFromInt(5000),
		won:    decimal.NewFromInt(9000),
		counts: map[string]int{"companies": 3, "contacts": 7, "deals": 3, "activities": 11},
	}

	o, err := NewService(fs).Overview(context.Background())
	require.NoError(t, err)

	// All 8 open stages in pipeline order, plus CLOSED_WON which has a deal.
	require.Len(t, o.Stages, len(model.PipelineStages)+1)
	for i, stage := range model.PipelineStages {
		assert.Equal(t, stage, o.Stages[i].Stage)
	}
	assert.Equal(t, model.StageClosedWon, o.Stages[len(model.PipelineStages)].Stage)

	first := o.Stages[0]
	assert.Equal(t, model.StageInquiry, first.Stage)
	assert.Equal(t, 0, first.Count)
	assert.True(t, first.Value.IsZero())

	assert.Equal(t, 3, o.CompanyCount)
	assert.Equal(t, 7, o.ContactCount)
	assert.Equal(t, 3, o.DealCount)
	assert.Equal(t, 11, o.ActivityCount)
	assert.True(t, o.OpenPipeline.Equal(decimal.NewFromInt(5000)))
	assert.True(t, o.WonThisMonth.Equal(decimal.NewFromInt(9000)))
}

func TestOverview_WonWindowStartsAtMonthBoundary(t *testing.T) {
	fs := &fakeAggStore{counts: map[string]int{}}

	_, err := NewService(fs).Overview(context.Background())
	require.NoError(t, err)

	now := time.Now().UTC()
	assert.Equal(t, now.Year(), fs.wonSince.Year())
	assert.Equal(t, now.Month(), fs.wonSince.Month())
	assert.Equal(t, 1, fs.wonSince.Day())
	assert.Equal(t, 0, fs.wonSince.Hour())
}

func TestOverview_PropagatesAggregateFailure(t *testing.T) {
	fs := &fakeAggStore{failCount: true, counts: map[string]int{}}

	_, err := NewService(fs).Overview(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count failed")
}
