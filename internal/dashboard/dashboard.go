// Package dashboard assembles the pipeline overview from store aggregates.
package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

// Store is the aggregate surface the dashboard needs.
type Store interface {
	StageSummary(ctx context.Context) ([]store.StageAggregate, error)
	OpenPipelineValue(ctx context.Context) (decimal.Decimal, error)
	WonValueSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
	CountEntities(ctx context.Context, table string) (int, error)
}

// Overview is the dashboard payload.
type Overview struct {
	Stages        []store.StageAggregate `json:"stages"`
	OpenPipeline  decimal.Decimal        `json:"open_pipeline"`
	WonThisMonth  decimal.Decimal        `json:"won_this_month"`
	CompanyCount  int                    `json:"company_count"`
	ContactCount  int                    `json:"contact_count"`
	DealCount     int                    `json:"deal_count"`
	ActivityCount int                    `json:"activity_count"`
}

// Service computes dashboard overviews.
type Service struct {
	store Store
}

// NewService creates a dashboard service.
func NewService(s Store) *Service {
	return &Service{store: s}
}

// Overview gathers the stage breakdown, pipeline totals and entity counts.
// The aggregates are independent queries, so they run concurrently; the
// first failure cancels the rest.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	var o Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		stages, err := s.store.StageSummary(ctx)
		if err != nil {
			return err
		}
		o.Stages = padStages(stages)
		return nil
	})
	g.Go(func() error {
		v, err := s.store.OpenPipelineValue(ctx)
		if err != nil {
			return err
		}
		o.OpenPipeline = v
		return nil
	})
	g.Go(func() error {
		v, err := s.store.WonValueSince(ctx, startOfMonth(time.Now().UTC()))
		if err != nil {
			return err
		}
		o.WonThisMonth = v
		return nil
	})
	for _, c := range []struct {
		table string
		dst   *int
	}{
		{"companies", &o.CompanyCount},
		{"contacts", &o.ContactCount},
		{"deals", &o.DealCount},
		{"activities", &o.ActivityCount},
	} {
		g.Go(func() error {
			n, err := s.store.CountEntities(ctx, c.table)
			if err != nil {
				return err
			}
			*c.dst = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &o, nil
}

// padStages fills in zero rows for pipeline stages with no deals, in
// pipeline order, so the client always renders the full funnel. Terminal
// stages appear only when they have deals.
func padStages(in []store.StageAggregate) []store.StageAggregate {
	byStage := make(map[model.DealStage]store.StageAggregate, len(in))
	for _, agg := range in {
		byStage[agg.Stage] = agg
	}

	out := make([]store.StageAggregate, 0, len(model.PipelineStages)+2)
	for _, stage := range model.PipelineStages {
		if agg, ok := byStage[stage]; ok {
			out = append(out, agg)
		} else {
			out = append(out, store.StageAggregate{
				Stage:         stage,
				Value:         decimal.Zero,
				WeightedValue: decimal.Zero,
			})
		}
	}
	for _, stage := range []model.DealStage{model.StageClosedWon, model.StageClosedLost} {
		if agg, ok := byStage[stage]; ok {
			out = append(out, agg)
		}
	}
	return out
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
