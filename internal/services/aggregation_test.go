package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"cantiere/internal/core"
	"cantiere/internal/storage"
)

func TestPercentageChange(t *testing.T) {
	tests := []struct {
		name     string
		current  int64
		previous int64
		want     float64
	}{
		{"both empty", 0, 0, 0},
		{"growth from nothing", 100, 0, 100},
		{"collapse to nothing", 0, 100, -100},
		{"half again", 150, 100, 50},
		{"decline", 75, 100, -25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PercentageChange(tt.current, tt.previous); got != tt.want {
				t.Errorf("PercentageChange(%d, %d) = %v, want %v", tt.current, tt.previous, got, tt.want)
			}
		})
	}
}

func newAggregationFixture(t *testing.T) (*AggregationEngine, *storage.Repository) {
	t.Helper()
	repo, err := storage.Open(filepath.Join(t.TempDir(), "cantiere.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine := NewAggregationEngine(repo)
	engine.today = func() core.Date { return core.NewDate(2026, 8, 31) }
	return engine, repo
}

func seedExpense(t *testing.T, repo *storage.Repository, id string, dueDate core.Date, cents int64, payment core.PaymentState) {
	t.Helper()
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	e := core.Expense{
		ID:            id,
		VentureID:     "v-1",
		Description:   "Rebar delivery",
		Value:         core.Money{Cents: cents},
		Date:          core.NewDate(2026, 7, 1),
		DueDate:       dueDate,
		Category:      core.CategoryMaterial,
		PaymentState:  payment,
		ApprovalState: core.ApprovalPending,
		CreatedBy:     "user-1",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.CreateExpense(context.Background(), e); err != nil {
		t.Fatalf("CreateExpense(%s) error = %v", id, err)
	}
}

func TestDashboardWindows(t *testing.T) {
	engine, repo := newAggregationFixture(t)
	ctx := context.Background()

	if err := repo.CreateVenture(ctx, testVentureRecord("v-1")); err != nil {
		t.Fatalf("CreateVenture() error = %v", err)
	}

	// Current window [2026-08-01, 2026-08-31]; previous [2026-07-01, 2026-07-31].
	seedExpense(t, repo, "e-1", core.NewDate(2026, 8, 10), 10000, core.PaymentPending)
	seedExpense(t, repo, "e-2", core.NewDate(2026, 8, 20), 5000, core.PaymentPaid)
	seedExpense(t, repo, "e-3", core.NewDate(2026, 7, 15), 10000, core.PaymentPaid)

	d, err := engine.Dashboard(ctx, core.NewDate(2026, 8, 1), core.NewDate(2026, 8, 31), "")
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	if d.Current.TotalCents != 15000 || d.Current.TotalCount != 2 {
		t.Errorf("current = %d cents / %d records", d.Current.TotalCents, d.Current.TotalCount)
	}
	if d.Previous.Start.String() != "2026-07-01" || d.Previous.End.String() != "2026-07-31" {
		t.Errorf("previous window = [%s, %s]", d.Previous.Start, d.Previous.End)
	}
	if d.Previous.TotalCents != 10000 {
		t.Errorf("previous total = %d, want 10000", d.Previous.TotalCents)
	}
	if d.Changes.Total != 50 {
		t.Errorf("total change = %v, want 50", d.Changes.Total)
	}
	// Previous window had no pending value; current does.
	if d.Changes.Pending != 100 {
		t.Errorf("pending change = %v, want 100", d.Changes.Pending)
	}
	if d.Changes.Paid != -50 {
		t.Errorf("paid change = %v, want -50", d.Changes.Paid)
	}
	if d.VentureCount != 1 {
		t.Errorf("venture count = %d, want 1", d.VentureCount)
	}
}

func TestDashboardDefaultsToTrailingThirtyDays(t *testing.T) {
	engine, _ := newAggregationFixture(t)

	d, err := engine.Dashboard(context.Background(), core.Date{}, core.Date{}, "")
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if d.Current.End.String() != "2026-08-31" {
		t.Errorf("window end = %s, want 2026-08-31", d.Current.End)
	}
	if d.Current.Start.String() != "2026-08-02" {
		t.Errorf("window start = %s, want 2026-08-02", d.Current.Start)
	}
	if d.Current.Start.DaysUntil(d.Current.End)+1 != 30 {
		t.Errorf("window length = %d days, want 30", d.Current.Start.DaysUntil(d.Current.End)+1)
	}
}

func TestDashboardUpcomingDue(t *testing.T) {
	engine, repo := newAggregationFixture(t)
	ctx := context.Background()

	// Today is 2026-08-31; the upcoming window is [today, today+7].
	seedExpense(t, repo, "e-1", core.NewDate(2026, 9, 2), 4000, core.PaymentDue)
	seedExpense(t, repo, "e-2", core.NewDate(2026, 9, 5), 6000, core.PaymentPending)
	seedExpense(t, repo, "e-3", core.NewDate(2026, 9, 20), 9000, core.PaymentDue)

	d, err := engine.Dashboard(ctx, core.Date{}, core.Date{}, "")
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if d.UpcomingDue.Count != 2 {
		t.Errorf("upcoming count = %d, want 2", d.UpcomingDue.Count)
	}
	if d.UpcomingDue.TotalCents != 10000 {
		t.Errorf("upcoming cents = %d, want 10000", d.UpcomingDue.TotalCents)
	}
}

func TestDashboardRejectsInvertedWindow(t *testing.T) {
	engine, _ := newAggregationFixture(t)
	_, err := engine.Dashboard(context.Background(), core.NewDate(2026, 8, 31), core.NewDate(2026, 8, 1), "")
	if !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("error = %v, want ErrInvalidDate", err)
	}
}

func testVentureRecord(id string) core.Venture {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	return core.Venture{ID: id, Name: "Harbor Tower", CreatedAt: now, UpdatedAt: now}
}
