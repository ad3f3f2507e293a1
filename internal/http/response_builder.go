// Package http provides HTTP server and handler implementations.
//
// This file maps domain outcomes onto JSON responses.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/middleware/trace"
	"gastos/internal/viewstate"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type authResponse struct {
	Token     string                 `json:"token"`
	ExpiresAt int64                  `json:"expiresAt"`
	Account   core.Account           `json:"account"`
	Session   viewstate.SessionState `json:"session"`
}

type sessionResponse struct {
	Session viewstate.SessionState `json:"session"`
	Account *core.Account          `json:"account,omitempty"`
}

type expensesResponse struct {
	viewstate.ExpensesState
	Month string `json:"month"`
}

func newExpensesResponse(st viewstate.ExpensesState) expensesResponse {
	return expensesResponse{ExpensesState: st, Month: core.MonthKey(st.Year, st.Month0)}
}

type createdResponse struct {
	ID string `json:"id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err)
	}
}

// writeError renders err as {"error": message} with the status its kind maps
// to. The request id lets a caller quote the failing request.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Request failed", err, "",
			applog.NewFields().
				WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
				WithErrorType(errorType(err)))
	}
	writeJSON(w, status, errorResponse{Error: message(err), RequestID: trace.GetRequestID(ctx)})
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return applog.ErrorTypeTimeout
	case errors.Is(err, core.ErrSubscription):
		return applog.ErrorTypeSubscription
	default:
		return applog.ErrorTypeInternal
	}
}

func message(err error) string {
	switch {
	case errors.Is(err, errBadRequest):
		return "Malformed request"
	case errors.Is(err, errInvalidToken):
		return core.Message(core.ErrNoActiveSession)
	case errors.Is(err, viewstate.ErrClosed):
		return "Session closed"
	case errors.Is(err, errMonthChanged):
		return "Another month was selected meanwhile"
	}
	return core.Message(err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errInvalidToken), errors.Is(err, core.ErrNoActiveSession), errors.Is(err, viewstate.ErrClosed):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrCommandPending), errors.Is(err, core.ErrAccountExists), errors.Is(err, errMonthChanged):
		return http.StatusConflict
	case errors.Is(err, core.ErrEmptyName), errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrMissingDate), errors.Is(err, core.ErrInvalidEmail),
		errors.Is(err, core.ErrWeakPassword):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrSubscription):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
