package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

type fakeExportStore struct {
	deals     []model.Deal
	companies map[string]*model.Company

	lastFilter store.DealFilter
}

func (f *fakeExportStore) ListDeals(_ context.Context, filter store.DealFilter) ([]model.Deal, error) {
	f.lastFilter = filter
	return f.deals, nil
}

func (f *fakeExportStore) GetCompany(_ context.Context, id string) (*model.Company, error) {
	if c, ok := f.companies[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func TestWriteDeals(t *testing.T) {
	closeDate := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	fs := &fakeExportStore{
		deals: []model.Deal{
			{
				ID:                "d-1",
				Name:              "Website Redesign",
				Value:             decimal.NewFromInt(12000),
				Currency:          "USD",
				Probability:       60,
				WeightedValue:     decimal.NewFromInt(7200),
				Stage:             model.StageNegotiation,
				ExpectedCloseDate: &closeDate,
				CompanyID:         "c-1",
			},
			{
				ID:        "d-2",
				Name:      "Orphan Deal",
				Value:     decimal.NewFromInt(500),
				Currency:  "USD",
				Stage:     model.StageInquiry,
				CompanyID: "c-gone",
			},
		},
		companies: map[string]*model.Company{
			"c-1": {ID: "c-1", Name: "Acme Agency"},
		},
	}

	var buf bytes.Buffer
	n, err := NewService(fs).WriteDeals(context.Background(), &buf, store.DealFilter{Stage: model.StageNegotiation})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.StageNegotiation, fs.lastFilter.Stage, "filter is passed through")

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Deals", sheet.Name)
	require.Len(t, sheet.Rows, 3, "header plus two deals")

	assert.Equal(t, "Deal", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Website Redesign", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "Acme Agency", sheet.Rows[1].Cells[1].String())
	assert.Equal(t, "NEGOTIATION", sheet.Rows[1].Cells[2].String())
	assert.Equal(t, "7200", sheet.Rows[1].Cells[6].String())
	assert.Equal(t, "2024-06-15", sheet.Rows[1].Cells[7].String())

	assert.Equal(t, "", sheet.Rows[2].Cells[1].String(), "unresolvable company leaves cell blank")
}

func TestWriteDeals_Empty(t *testing.T) {
	fs := &fakeExportStore{}

	var buf bytes.Buffer
	n, err := NewService(fs).WriteDeals(context.Background(), &buf, store.DealFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets[0].Rows, 1, "header only")
}
