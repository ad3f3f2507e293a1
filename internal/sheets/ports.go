package sheets

import (
	"context"

	"gastos/internal/core"
)

// Ports for outbound adapters.
type (
	// RowAppender appends rows after the last non-empty row of a sheet.
	RowAppender interface {
		AppendRows(ctx context.Context, sheet string, rows [][]any) (updatedRange string, err error)
	}

	// MonthReader returns one owner's expenses inside a date range.
	MonthReader interface {
		QueryExpenses(ctx context.Context, q core.ExpenseQuery) ([]core.Expense, error)
	}
)
