package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Food          Category = "FOOD"
	Transport     Category = "TRANSPORT"
	Home          Category = "HOME"
	Health        Category = "HEALTH"
	Entertainment Category = "ENTERTAINMENT"
	Other         Category = "OTHER"
)

const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

const maxNameLength = 200

type (
	Category string

	Expense struct {
		ID       string          `json:"id"`
		OwnerID  string          `json:"ownerId"`
		Name     string          `json:"name"`
		Amount   decimal.Decimal `json:"amount"`
		Category Category        `json:"category"`
		Date     time.Time       `json:"date"`
		Note     string          `json:"note,omitempty"`
	}

	// Account is the identity bound to an authenticated session.
	Account struct {
		ID          string `json:"accountId"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		Provider    string `json:"provider"`
	}

	// Profile is the users/{accountId} document. Zero-valued fields are treated
	// as "not supplied" by upserts and leave the stored value untouched.
	Profile struct {
		AccountID   string    `json:"accountId"`
		DisplayName string    `json:"displayName"`
		Email       string    `json:"email"`
		Provider    string    `json:"provider"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}

	// ExpenseQuery selects one owner's expenses with From <= date < To,
	// newest first.
	ExpenseQuery struct {
		OwnerID string
		From    time.Time
		To      time.Time
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyName       = errors.New("empty name")
	ErrNameTooLong     = fmt.Errorf("name too long (max %d characters)", maxNameLength)
	ErrInvalidCategory = errors.New("invalid category")
	ErrMissingDate     = errors.New("date cannot be zero")
)

// Categories returns the closed category set in display order.
func Categories() []Category {
	return []Category{Food, Transport, Home, Health, Entertainment, Other}
}

// ParseCategory maps a case-insensitive name onto the closed category set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

func (c Category) Valid() bool {
	switch c {
	case Food, Transport, Home, Health, Entertainment, Other:
		return true
	default:
		return false
	}
}

func (c Category) String() string {
	return string(c)
}

// Validate checks the input rules applied before an expense is submitted.
// OwnerID and ID are assigned later and are not checked here.
func (e Expense) Validate() error {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !e.Category.Valid() {
		return ErrInvalidCategory
	}
	if e.Date.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// Normalize trims text fields and rounds the amount to cents.
func (e Expense) Normalize() Expense {
	e.Name = strings.TrimSpace(e.Name)
	e.Note = strings.TrimSpace(e.Note)
	e.Amount = e.Amount.Round(2)
	return e
}

// Matches reports whether the expense falls inside the query.
func (q ExpenseQuery) Matches(e Expense) bool {
	if e.OwnerID != q.OwnerID {
		return false
	}
	return !e.Date.Before(q.From) && e.Date.Before(q.To)
}

// Total sums the amounts of the given expenses.
func Total(items []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range items {
		total = total.Add(e.Amount)
	}
	return total
}
