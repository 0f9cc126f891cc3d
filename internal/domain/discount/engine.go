package discount

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineItem is a priced (product, quantity) tuple used for both cart preview
// and order evaluation. UnitPrice is snapshotted by the caller and never
// re-read from the live catalog during evaluation.
type LineItem struct {
	ProductID    string
	Name         string
	CategoryID   int64
	CategoryName string
	UnitPrice    decimal.Decimal
	Quantity     int
}

// Adjustment is a single named monetary discount applied to an order or cart.
type Adjustment struct {
	// RuleID references the originating rule; nil once the rule is deleted.
	RuleID      *int64
	Label       string
	Description string
	Amount      decimal.Decimal
}

// ItemDiscount carries a per-unit discounted price for one line item,
// produced by category rules. Index refers to the evaluated items slice.
type ItemDiscount struct {
	Index               int
	DiscountedUnitPrice decimal.Decimal
}

// Decomposition is the ordered list of applied adjustments plus the
// resulting totals. Amounts are kept at full precision; callers round at
// persistence or serialization time.
type Decomposition struct {
	Total           decimal.Decimal
	DiscountedTotal decimal.Decimal
	Adjustments     []Adjustment
	ItemDiscounts   []ItemDiscount
}

// TotalDiscount returns the sum of all adjustment amounts.
func (d *Decomposition) TotalDiscount() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range d.Adjustments {
		sum = sum.Add(a.Amount)
	}
	return sum
}

// Engine evaluates the active rule set against a priced line-item collection.
// It performs no writes; order placement persists the returned decomposition
// inside its own transaction.
type Engine struct {
	rules Source
}

// NewEngine creates an Engine reading rules from the given source.
func NewEngine(rules Source) *Engine {
	return &Engine{rules: rules}
}

// Evaluate applies every eligible active rule in priority order and returns
// the discount decomposition. Rules stack: each eligible rule applies
// regardless of how far earlier rules already reduced the total. Only flat
// rules clamp their own amount; a stack of large percentage and category
// rules can drive the discounted total negative, which is accepted behavior.
func (e *Engine) Evaluate(ctx context.Context, userID string, items []LineItem, hist History) (*Decomposition, error) {
	rules, err := e.rules.Rules(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrRulesUnavailable, err.Error())
	}

	dec := &Decomposition{Total: subtotal(items)}
	dec.DiscountedTotal = dec.Total

	for _, r := range rules {
		if !r.Meta().Active {
			continue
		}

		switch rule := r.(type) {
		case PercentageRule:
			e.applyPercentage(dec, rule)
		case FlatRule:
			if err := e.applyFlat(ctx, dec, rule, userID, hist); err != nil {
				return nil, err
			}
		case CategoryRule:
			if err := e.applyCategory(ctx, dec, rule, userID, items, hist); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Errorf("unsupported rule kind: %q", r.Kind())
		}
	}

	return dec, nil
}

// applyPercentage applies a percentage rule when the gross order value
// reaches the threshold. Eligibility is checked against the original,
// undiscounted total; the amount is computed from the current discounted
// total so stacked percentage rules compound.
func (e *Engine) applyPercentage(dec *Decomposition, rule PercentageRule) {
	if dec.Total.LessThan(rule.MinOrderValue) {
		return
	}

	amount := dec.DiscountedTotal.Mul(rule.Percent).Div(hundred)
	dec.DiscountedTotal = dec.DiscountedTotal.Sub(amount)
	dec.Adjustments = append(dec.Adjustments, Adjustment{
		RuleID:      ruleID(rule.RuleMeta),
		Label:       fmt.Sprintf("%s%% Discount", rule.Percent.String()),
		Description: fmt.Sprintf("Order value exceeds %s", rule.MinOrderValue.String()),
		Amount:      amount,
	})
}

// applyFlat applies a flat rule when the user has placed enough completed
// orders. The amount never exceeds the running discounted total.
func (e *Engine) applyFlat(ctx context.Context, dec *Decomposition, rule FlatRule, userID string, hist History) error {
	previous, err := hist.CompletedOrders(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "count previous orders")
	}
	if previous < rule.MinPreviousOrders {
		return nil
	}

	amount := decimal.Min(rule.Amount, dec.DiscountedTotal)
	dec.DiscountedTotal = dec.DiscountedTotal.Sub(amount)
	dec.Adjustments = append(dec.Adjustments, Adjustment{
		RuleID:      ruleID(rule.RuleMeta),
		Label:       "Loyal Customer Discount",
		Description: fmt.Sprintf("Flat discount for having %d previous orders", previous),
		Amount:      amount,
	})
	return nil
}

// applyCategory applies a category rule when the user's historical plus
// current quantity in the rule's category strictly exceeds the threshold.
// Matching line items get a discounted per-unit price; the whole category
// contributes a single adjustment.
func (e *Engine) applyCategory(ctx context.Context, dec *Decomposition, rule CategoryRule, userID string, items []LineItem, hist History) error {
	count, err := hist.CategoryQuantity(ctx, userID, rule.CategoryID)
	if err != nil {
		return errors.Wrap(err, "sum category quantity")
	}
	for _, item := range items {
		if item.CategoryID == rule.CategoryID {
			count += item.Quantity
		}
	}

	// Strict threshold: count == MinItems does not trigger.
	if count <= rule.MinItems {
		return nil
	}

	categoryTotal := decimal.Zero
	for i, item := range items {
		if item.CategoryID != rule.CategoryID {
			continue
		}

		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		categoryTotal = categoryTotal.Add(lineTotal.Mul(rule.Percent).Div(hundred))

		discountedUnit := item.UnitPrice.Sub(item.UnitPrice.Mul(rule.Percent).Div(hundred))
		dec.ItemDiscounts = append(dec.ItemDiscounts, ItemDiscount{
			Index:               i,
			DiscountedUnitPrice: discountedUnit,
		})
	}

	if !categoryTotal.IsPositive() {
		return nil
	}

	dec.DiscountedTotal = dec.DiscountedTotal.Sub(categoryTotal)
	dec.Adjustments = append(dec.Adjustments, Adjustment{
		RuleID:      ruleID(rule.RuleMeta),
		Label:       fmt.Sprintf("Category Discount on %s", rule.CategoryName),
		Description: fmt.Sprintf("%s%% off on %s items", rule.Percent.String(), rule.CategoryName),
		Amount:      categoryTotal,
	})
	return nil
}

// subtotal returns the sum of unit price * quantity across all items.
func subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

func ruleID(m Meta) *int64 {
	id := m.ID
	return &id
}
