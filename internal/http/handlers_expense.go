package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/viewstate"
)

var errMonthChanged = errors.New("month selection superseded")

func handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]core.Category{"categories": core.Categories()})
}

// handleListExpenses selects the requested month (default: the month the
// client is on) and answers once its first result set has arrived.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request, c *client) {
	current := c.expenses.Snapshot()
	params := ParseMonthParams(r.URL.Query(), current.Year, current.Month0)

	if err := c.expenses.SelectMonth(r.Context(), params.Year, params.Month0); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), firstSnapshotWait)
	defer cancel()
	st, err := waitLoaded(ctx, c.expenses, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newExpensesResponse(st))
}

// waitLoaded returns the first loaded snapshot of month. A snapshot of any
// other month means a concurrent request moved the client elsewhere.
func waitLoaded(ctx context.Context, x *viewstate.Expenses, month MonthParams) (viewstate.ExpensesState, error) {
	for st := range x.Watch(ctx) {
		if st.Year != month.Year || st.Month0 != month.Month0 {
			return viewstate.ExpensesState{}, errMonthChanged
		}
		if !st.Loading {
			return st, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return viewstate.ExpensesState{}, err
	}
	return viewstate.ExpensesState{}, viewstate.ErrClosed
}

// handleStreamExpenses pushes every state change as a server-sent event
// until the client disconnects or its session ends.
func (s *Server) handleStreamExpenses(w http.ResponseWriter, r *http.Request, c *client) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, fmt.Errorf("streaming unsupported by response writer"))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	updates := c.expenses.Watch(ctx)
	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				fmt.Fprint(w, "event: closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, err := json.Marshal(newExpensesResponse(st))
			if err != nil {
				applog.FromContext(ctx).ErrorContext(ctx, "Failed to encode event", applog.FieldError, err)
				continue
			}
			fmt.Fprintf(w, "event: expenses\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request, c *client) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toNewExpense(s.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	id, err := c.expenses.AddExpense(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expense submitted",
		applog.NewFields().
			WithOperation(applog.OpCreate).
			WithExpense(id, core.FormatAmount(in.Amount), in.Category.String()).
			ToSlice()...)
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request, c *client) {
	id := strings.TrimSpace(r.PathValue("id"))
	if err := c.expenses.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
