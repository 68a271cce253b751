package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"cantiere/internal/core"
	"cantiere/internal/storage"
)

const (
	defaultWindowDays = 30
	upcomingDueDays   = 7
)

// AggregationEngine computes the dashboard rollups: current and previous
// period totals, period-over-period percentage changes, the upcoming-due
// summary, and the venture count.
type AggregationEngine struct {
	store AggregationStore
	today func() core.Date
}

func NewAggregationEngine(store AggregationStore) *AggregationEngine {
	return &AggregationEngine{
		store: store,
		today: func() core.Date { return core.DateOf(time.Now().UTC()) },
	}
}

// PeriodSummary is one window's totals.
type PeriodSummary struct {
	Start        core.Date
	End          core.Date
	TotalCents   int64
	TotalCount   int64
	PendingCents int64
	PendingCount int64
	PaidCents    int64
	PaidCount    int64
}

// Changes holds the period-over-period deltas, in percent.
type Changes struct {
	Total   float64
	Pending float64
	Paid    float64
}

// UpcomingDue summarizes records still awaiting review or payment that
// fall due within the next week.
type UpcomingDue struct {
	From       core.Date
	To         core.Date
	Count      int64
	TotalCents int64
}

// Dashboard is the full aggregation output.
type Dashboard struct {
	Current      PeriodSummary
	Previous     PeriodSummary
	Changes      Changes
	UpcomingDue  UpcomingDue
	VentureCount int64
}

// Dashboard computes the rollups for [from, to] scoped to ventureID when
// non-empty. Zero dates default to the trailing thirty days ending
// today. The four queries run concurrently; the two windows are read
// independently, so the numbers are a best-effort snapshot.
func (a *AggregationEngine) Dashboard(ctx context.Context, from, to core.Date, ventureID string) (Dashboard, error) {
	today := a.today()
	if to.IsZero() {
		to = today
	}
	if from.IsZero() {
		from = to.AddDays(-(defaultWindowDays - 1))
	}
	if to.Time.Before(from.Time) {
		return Dashboard{}, fmt.Errorf("window end %s precedes start %s: %w", to, from, core.ErrInvalidDate)
	}

	windowDays := from.DaysUntil(to) + 1
	prevEnd := from.AddDays(-1)
	prevStart := prevEnd.AddDays(-(windowDays - 1))

	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		totals, err := a.store.WindowTotals(gctx, storage.Window{Start: from, End: to, VentureID: ventureID})
		if err != nil {
			return fmt.Errorf("current period: %w", err)
		}
		d.Current = summarize(from, to, totals)
		return nil
	})
	g.Go(func() error {
		totals, err := a.store.WindowTotals(gctx, storage.Window{Start: prevStart, End: prevEnd, VentureID: ventureID})
		if err != nil {
			return fmt.Errorf("previous period: %w", err)
		}
		d.Previous = summarize(prevStart, prevEnd, totals)
		return nil
	})
	g.Go(func() error {
		dueTo := today.AddDays(upcomingDueDays)
		count, cents, err := a.store.UpcomingDue(gctx, today, dueTo, ventureID)
		if err != nil {
			return fmt.Errorf("upcoming due: %w", err)
		}
		d.UpcomingDue = UpcomingDue{From: today, To: dueTo, Count: count, TotalCents: cents}
		return nil
	})
	g.Go(func() error {
		n, err := a.store.CountVentures(gctx)
		if err != nil {
			return fmt.Errorf("venture count: %w", err)
		}
		d.VentureCount = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d.Changes = Changes{
		Total:   PercentageChange(d.Current.TotalCents, d.Previous.TotalCents),
		Pending: PercentageChange(d.Current.PendingCents, d.Previous.PendingCents),
		Paid:    PercentageChange(d.Current.PaidCents, d.Previous.PaidCents),
	}
	return d, nil
}

// PercentageChange returns the period-over-period delta in percent. An
// empty previous period reads as a flat zero when the current period is
// also empty, and a full hundred percent rise otherwise.
func PercentageChange(current, previous int64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

func summarize(start, end core.Date, t storage.Totals) PeriodSummary {
	return PeriodSummary{
		Start:        start,
		End:          end,
		TotalCents:   t.TotalCents,
		TotalCount:   t.TotalCount,
		PendingCents: t.PendingCents,
		PendingCount: t.PendingCount,
		PaidCents:    t.PaidCents,
		PaidCount:    t.PaidCount,
	}
}
