package ledger

import (
	"testing"

	"cantiere/internal/core"
)

func validRowExpense() core.Expense {
	return core.Expense{
		ID:            "e1",
		VentureID:     "v1",
		Description:   "Rebar delivery",
		Value:         core.Money{Cents: 100000},
		Date:          core.NewDate(2026, 3, 10),
		DueDate:       core.NewDate(2026, 3, 25),
		Category:      core.CategoryMaterial,
		PaymentState:  core.PaymentPending,
		ApprovalState: core.ApprovalPending,
		CreatedBy:     "u1",
	}
}

func TestExpenseRow(t *testing.T) {
	row := ExpenseRow(validRowExpense())
	if len(row) != Columns {
		t.Fatalf("expected %d columns, got %d", Columns, len(row))
	}
	if row[0] != "e1" {
		t.Errorf("column A must carry the expense id, got %q", row[0])
	}
	want := []string{"e1", "Rebar delivery", "material", "1000.00", "2026-03-10", "2026-03-25", "pending", "pending", "u1"}
	for i, w := range want {
		if row[i] != w {
			t.Errorf("column %d: got %q, want %q", i, row[i], w)
		}
	}
}

func TestHeaderWidth(t *testing.T) {
	if len(Header()) != Columns {
		t.Errorf("header width %d does not match row width %d", len(Header()), Columns)
	}
}
