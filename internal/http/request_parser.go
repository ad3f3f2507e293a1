// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gastos/internal/core"
	"gastos/internal/viewstate"
)

const maxBodyBytes = 64 << 10

var errBadRequest = errors.New("bad request")

// MonthParams holds parsed year/month0 values from request parameters.
type MonthParams struct {
	Year   int
	Month0 int
}

// ParseMonthParams extracts year and month0 from query parameters, using the
// fallback for missing or unparseable values.
func ParseMonthParams(query url.Values, fallbackYear, fallbackMonth0 int) MonthParams {
	params := MonthParams{Year: fallbackYear, Month0: fallbackMonth0}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			params.Year = y
		}
	}
	if v := strings.TrimSpace(query.Get("month0")); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			params.Month0 = m
		}
	}

	params.Year, params.Month0 = core.NormalizeMonth(params.Year, params.Month0)
	return params
}

// decodeJSON reads one JSON object from the body, rejecting unknown fields
// and oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

type googleRequest struct {
	IDToken string `json:"idToken"`
}

// expenseRequest is the wire form of a new expense. Amounts travel as
// strings so no precision is lost.
type expenseRequest struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Category string `json:"category"`
	Date     string `json:"date"`
	Note     string `json:"note,omitempty"`
}

// toNewExpense parses the request in loc. Dates are YYYY-MM-DD or RFC 3339.
func (req expenseRequest) toNewExpense(loc *time.Location) (viewstate.NewExpense, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return viewstate.NewExpense{}, err
	}
	category, err := core.ParseCategory(req.Category)
	if err != nil {
		return viewstate.NewExpense{}, err
	}
	date, err := parseDate(req.Date, loc)
	if err != nil {
		return viewstate.NewExpense{}, err
	}
	return viewstate.NewExpense{
		Name:     sanitizeInput(req.Name),
		Amount:   amount,
		Category: category,
		Date:     date,
		Note:     sanitizeInput(req.Note),
	}, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, core.ErrMissingDate
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", core.ErrMissingDate, s)
	}
	return t.In(loc), nil
}

// bearerToken returns the Authorization bearer token. EventSource clients
// cannot set headers, so access_token in the query is accepted as well.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
