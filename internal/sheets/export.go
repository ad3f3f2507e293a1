// Package sheets exports a month of expenses to a spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	applog "gastos/internal/log"
)

const dateLayout = "2006-01-02"

var ErrMissingAccount = errors.New("account id is required")

// Header is the column order of exported rows.
var Header = []any{"Date", "Name", "Category", "Amount", "Note"}

// ExportResult describes one export run.
type ExportResult struct {
	Month        string
	Rows         int
	Total        decimal.Decimal
	UpdatedRange string
}

type Exporter struct {
	reader MonthReader
	sink   RowAppender
	sheet  string
	loc    *time.Location
	header bool
}

func NewExporter(reader MonthReader, sink RowAppender, sheet string, loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{reader: reader, sink: sink, sheet: sheet, loc: loc}
}

// WithHeader makes every non-empty export start with a Header row.
func (x *Exporter) WithHeader() *Exporter {
	x.header = true
	return x
}

// ExportMonth appends the month's expenses of accountID, oldest first. An
// empty month appends nothing.
func (x *Exporter) ExportMonth(ctx context.Context, accountID string, year, month0 int) (ExportResult, error) {
	if strings.TrimSpace(accountID) == "" {
		return ExportResult{}, ErrMissingAccount
	}
	year, month0 = core.NormalizeMonth(year, month0)
	res := ExportResult{Month: core.MonthKey(year, month0), Total: decimal.Zero}

	items, err := x.reader.QueryExpenses(ctx, core.QueryForMonth(accountID, year, month0, x.loc))
	if err != nil {
		return res, fmt.Errorf("query %s: %w", res.Month, err)
	}
	if len(items) == 0 {
		slog.InfoContext(ctx, "Nothing to export",
			applog.NewFields().
				WithComponent(applog.ComponentSheets).
				WithAccount(accountID).
				WithMonth(year, month0).
				ToSlice()...)
		return res, nil
	}

	rows := Rows(items, x.loc)
	out := rows
	if x.header {
		out = append([][]any{Header}, rows...)
	}
	updated, err := x.sink.AppendRows(ctx, x.sheet, out)
	if err != nil {
		return res, fmt.Errorf("append %d rows to %s: %w", len(out), x.sheet, err)
	}

	res.Rows = len(rows)
	res.Total = core.Total(items)
	res.UpdatedRange = updated

	fields := applog.NewFields().
		WithComponent(applog.ComponentSheets).
		WithOperation(applog.OpExport).
		WithAccount(accountID).
		WithMonth(year, month0)
	fields["rows"] = res.Rows
	fields["total"] = core.FormatAmount(res.Total)
	fields["range"] = updated
	slog.InfoContext(ctx, "Month exported", fields.ToSlice()...)
	return res, nil
}

// Rows converts expenses, newest first as queried, into chronological sheet rows.
func Rows(items []core.Expense, loc *time.Location) [][]any {
	rows := make([][]any, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		e := items[i]
		rows = append(rows, []any{
			e.Date.In(loc).Format(dateLayout),
			e.Name,
			e.Category.String(),
			core.FormatAmount(e.Amount),
			e.Note,
		})
	}
	return rows
}
