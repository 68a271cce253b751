package services

import (
	"context"
	"time"

	"cantiere/internal/amqp"
	"cantiere/internal/core"
	"cantiere/internal/storage"
)

// Store ports consumed by the services. The SQLite repository satisfies
// all of them; tests substitute in-memory fakes.
type (
	ExpenseStore interface {
		CreateExpense(ctx context.Context, e core.Expense) error
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		UpdateExpense(ctx context.Context, e core.Expense) error
		DeleteExpense(ctx context.Context, id string) error
		ReviewExpense(ctx context.Context, id string, expected, decision core.ApprovalState, payment core.PaymentState, reviewedBy string, reviewedAt time.Time) error
		ListExpenses(ctx context.Context, f storage.ExpenseFilter) ([]core.Expense, int64, error)
		GetVenture(ctx context.Context, id string) (core.Venture, error)
	}

	VentureStore interface {
		CreateVenture(ctx context.Context, v core.Venture) error
		GetVenture(ctx context.Context, id string) (core.Venture, error)
		ListVentures(ctx context.Context) ([]core.Venture, error)
		SetVentureLedger(ctx context.Context, id, ledgerID string) error
	}

	AggregationStore interface {
		WindowTotals(ctx context.Context, w storage.Window) (storage.Totals, error)
		UpcomingDue(ctx context.Context, from, to core.Date, ventureID string) (int64, int64, error)
		CountVentures(ctx context.Context) (int64, error)
	}
)

// EventPublisher announces lifecycle mutations on the event feed.
// Publishing is best-effort; failures are logged and never fail the
// triggering operation.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error
}
