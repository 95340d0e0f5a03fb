// Package export writes CRM data to spreadsheet workbooks.
package export

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

// Store is the read surface the exporter needs.
type Store interface {
	ListDeals(ctx context.Context, filter store.DealFilter) ([]model.Deal, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
}

// Service produces workbook exports.
type Service struct {
	store Store
}

// NewService creates an exporter.
func NewService(s Store) *Service {
	return &Service{store: s}
}

var dealHeaders = []string{
	"Deal", "Company", "Stage", "Value", "Currency", "Probability %",
	"Weighted Value", "Expected Close", "Actual Close", "Lost Reason",
}

// WriteDeals exports the deals matching filter as a single-sheet workbook.
// Company names are resolved per deal; an unresolvable company leaves the
// cell blank rather than failing the export.
func (s *Service) WriteDeals(ctx context.Context, w io.Writer, filter store.DealFilter) (int, error) {
	deals, err := s.store.ListDeals(ctx, filter)
	if err != nil {
		return 0, err
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Deals")
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range dealHeaders {
		header.AddCell().SetString(h)
	}

	companyNames := make(map[string]string)
	for _, d := range deals {
		name, ok := companyNames[d.CompanyID]
		if !ok {
			if c, err := s.store.GetCompany(ctx, d.CompanyID); err == nil {
				name = c.Name
			}
			companyNames[d.CompanyID] = name
		}

		row := sheet.AddRow()
		row.AddCell().SetString(d.Name)
		row.AddCell().SetString(name)
		row.AddCell().SetString(string(d.Stage))
		row.AddCell().SetString(d.Value.String())
		row.AddCell().SetString(d.Currency)
		row.AddCell().SetInt(d.Probability)
		row.AddCell().SetString(d.WeightedValue.String())
		row.AddCell().SetString(formatDate(d.ExpectedCloseDate))
		row.AddCell().SetString(formatDate(d.ActualCloseDate))
		row.AddCell().SetString(string(d.LostReason))
	}

	if err := f.Write(w); err != nil {
		return 0, eris.Wrap(err, "export: write workbook")
	}
	return len(deals), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
