package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount rule strategies.
type Kind string

const (
	// KindPercentage discounts the whole order by a percentage once the
	// gross order value passes a threshold.
	KindPercentage Kind = "percentage"
	// KindFlat takes a fixed amount off for customers with enough previous
	// orders.
	KindFlat Kind = "flat"
	// KindCategory discounts items of one category once the customer's
	// combined historical and current quantity in that category passes a
	// threshold.
	KindCategory Kind = "category"
)

var (
	// ErrRuleNotFound is returned when a requested rule does not exist.
	ErrRuleNotFound = errors.New("discount rule not found")
	// ErrRulesUnavailable wraps failures to load the active rule set.
	// Evaluation fails closed rather than applying a stale snapshot.
	ErrRulesUnavailable = errors.New("discount rules unavailable")
)

// Meta holds the fields shared by every rule kind.
type Meta struct {
	ID          int64
	Name        string
	Description string
	Priority    int
	Active      bool
}

// Rule is a discount rule definition. Exactly one concrete type exists per
// Kind, each carrying only the fields relevant to it.
type Rule interface {
	Meta() Meta
	Kind() Kind
}

// PercentageRule discounts the running total by Percent when the gross order
// value is at least MinOrderValue.
type PercentageRule struct {
	RuleMeta      Meta
	MinOrderValue decimal.Decimal
	Percent       decimal.Decimal
}

func (r PercentageRule) Meta() Meta { return r.RuleMeta }
func (r PercentageRule) Kind() Kind { return KindPercentage }

// FlatRule takes Amount off the running total for customers with at least
// MinPreviousOrders completed orders. The amount is clamped to the running
// total so a single flat rule never drives it negative.
type FlatRule struct {
	RuleMeta          Meta
	MinPreviousOrders int
	Amount            decimal.Decimal
}

func (r FlatRule) Meta() Meta { return r.RuleMeta }
func (r FlatRule) Kind() Kind { return KindFlat }

// CategoryRule discounts every line item of one category by Percent when the
// customer's historical plus current quantity in that category is strictly
// greater than MinItems.
type CategoryRule struct {
	RuleMeta     Meta
	CategoryID   int64
	CategoryName string
	MinItems     int
	Percent      decimal.Decimal
}

func (r CategoryRule) Meta() Meta { return r.RuleMeta }
func (r CategoryRule) Kind() Kind { return KindCategory }

// Source supplies the active rule set sorted ascending by priority
// (ties broken by rule ID).
type Source interface {
	Rules(ctx context.Context) ([]Rule, error)
}

// Repository provides the admin surface over rule definitions plus the
// active-rule read used by evaluation.
type Repository interface {
	Source

	ListAll(ctx context.Context) ([]Rule, error)
	Get(ctx context.Context, id int64) (Rule, error)
	Create(ctx context.Context, r Rule) (Rule, error)
	Update(ctx context.Context, id int64, r Rule) (Rule, error)
	Delete(ctx context.Context, id int64) error
}

// History reads a user's order history for rule eligibility checks. Order
// evaluation binds an implementation to the in-flight transaction that
// excludes the order being created.
type History interface {
	// CompletedOrders counts the user's previously completed orders.
	CompletedOrders(ctx context.Context, userID string) (int, error)
	// CategoryQuantity sums item quantities across the user's past orders
	// for products in the given category.
	CategoryQuantity(ctx context.Context, userID string, categoryID int64) (int, error)
}
