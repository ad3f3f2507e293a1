package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in  string
		out Category
		ok  bool
	}{
		{"FOOD", Food, true},
		{"food", Food, true},
		{" Transport ", Transport, true},
		{"entertainment", Entertainment, true},
		{"", "", false},
		{"ALIMENTACION", "", false},
	}
	for _, tc := range cases {
		got, err := ParseCategory(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if !errors.Is(err, ErrInvalidCategory) {
			t.Fatalf("%q expected ErrInvalidCategory, got %v", tc.in, err)
		}
	}
	if len(Categories()) != 6 {
		t.Fatalf("expected 6 categories, got %d", len(Categories()))
	}
}

func TestExpenseValidate(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	good := Expense{Name: "Groceries", Amount: decimal.RequireFromString("42.50"), Category: Food, Date: day}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}

	bads := []struct {
		e    Expense
		want error
	}{
		{Expense{Name: "  ", Amount: decimal.NewFromInt(1), Category: Food, Date: day}, ErrEmptyName},
		{Expense{Name: string(long), Amount: decimal.NewFromInt(1), Category: Food, Date: day}, ErrNameTooLong},
		{Expense{Name: "a", Amount: decimal.Zero, Category: Food, Date: day}, ErrInvalidAmount},
		{Expense{Name: "a", Amount: decimal.NewFromInt(-3), Category: Food, Date: day}, ErrInvalidAmount},
		{Expense{Name: "a", Amount: decimal.NewFromInt(1), Category: "", Date: day}, ErrInvalidCategory},
		{Expense{Name: "a", Amount: decimal.NewFromInt(1), Category: Food}, ErrMissingDate},
	}
	for i, tc := range bads {
		if err := tc.e.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestQueryMatchesAndTotal(t *testing.T) {
	q := QueryForMonth("A", 2024, 2, time.UTC)
	in := Expense{OwnerID: "A", Date: time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC), Amount: decimal.RequireFromString("1.25")}
	edge := Expense{OwnerID: "A", Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("2.50")}
	next := Expense{OwnerID: "A", Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	other := Expense{OwnerID: "B", Date: edge.Date}

	if !q.Matches(in) || !q.Matches(edge) {
		t.Fatalf("expected in-month expenses to match")
	}
	if q.Matches(next) || q.Matches(other) {
		t.Fatalf("expected next month and foreign owner to be excluded")
	}
	if got := Total([]Expense{in, edge}); !got.Equal(decimal.RequireFromString("3.75")) {
		t.Fatalf("expected total 3.75, got %s", got)
	}
	if !Total(nil).IsZero() {
		t.Fatalf("expected zero total for empty list")
	}
}

func TestMessage(t *testing.T) {
	if Message(nil) != "" {
		t.Fatalf("expected empty message for nil")
	}
	wrapped := errors.Join(ErrWrite, errors.New("permission denied"))
	if got := Message(wrapped); got != "The change could not be saved" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message(errors.New("boom")); got != "boom" {
		t.Fatalf("unexpected fallback message %q", got)
	}
}
