package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meerkatlabs/storefront/internal/domain/discount"
)

const (
	ruleColumns = `r.id, r.name, r.description, r.kind,
		r.min_order_value, r.percentage,
		r.min_previous_orders, r.flat_amount,
		r.category_id, c.name, r.min_items_in_category, r.category_discount_percentage,
		r.priority, r.active`

	ruleFromSQL = ` FROM discount_rules r LEFT JOIN categories c ON c.id = r.category_id`

	insertRuleSQL = `INSERT INTO discount_rules
		(name, description, kind,
		 min_order_value, percentage,
		 min_previous_orders, flat_amount,
		 category_id, min_items_in_category, category_discount_percentage,
		 priority, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	updateRuleSQL = `UPDATE discount_rules SET
		name = $2, description = $3, kind = $4,
		min_order_value = $5, percentage = $6,
		min_previous_orders = $7, flat_amount = $8,
		category_id = $9, min_items_in_category = $10, category_discount_percentage = $11,
		priority = $12, active = $13, updated_at = now()
		WHERE id = $1`

	deleteRuleSQL = `DELETE FROM discount_rules WHERE id = $1`
)

var _ discount.Repository = (*RuleRepository)(nil)

// RuleRepository implements discount.Repository backed by PostgreSQL. The
// single discount_rules table carries nullable per-kind columns; rows are
// decoded into the rule union at this edge so the rest of the system only
// sees typed rules.
type RuleRepository struct {
	pool *pgxpool.Pool
}

// NewRuleRepository returns a RuleRepository that uses the given pool.
func NewRuleRepository(pool *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{pool: pool}
}

// Rules returns active rules ascending by priority, ties broken by ID.
func (r *RuleRepository) Rules(ctx context.Context) ([]discount.Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+ruleFromSQL+` WHERE r.active ORDER BY r.priority, r.id`)
	if err != nil {
		return nil, fmt.Errorf("listing active rules: %w", err)
	}
	return pgx.CollectRows(rows, scanRule)
}

// ListAll returns every rule, active or not, in priority order.
func (r *RuleRepository) ListAll(ctx context.Context) ([]discount.Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+ruleFromSQL+` ORDER BY r.priority, r.id`)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	return pgx.CollectRows(rows, scanRule)
}

// Get returns a single rule by ID.
func (r *RuleRepository) Get(ctx context.Context, id int64) (discount.Rule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+ruleFromSQL+` WHERE r.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting rule %d: %w", id, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrRuleNotFound
		}
		return nil, fmt.Errorf("getting rule %d: %w", id, err)
	}
	return rule, nil
}

// Create persists a new rule and returns it with the assigned ID.
func (r *RuleRepository) Create(ctx context.Context, rule discount.Rule) (discount.Rule, error) {
	cols := ruleToColumns(rule)

	var id int64
	err := r.pool.QueryRow(ctx, insertRuleSQL,
		cols.name, cols.description, cols.kind,
		cols.minOrderValue, cols.percentage,
		cols.minPreviousOrders, cols.flatAmount,
		cols.categoryID, cols.minItemsInCategory, cols.categoryPercentage,
		cols.priority, cols.active,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating rule: %w", err)
	}

	return r.Get(ctx, id)
}

// Update replaces a rule definition in place.
func (r *RuleRepository) Update(ctx context.Context, id int64, rule discount.Rule) (discount.Rule, error) {
	cols := ruleToColumns(rule)

	tag, err := r.pool.Exec(ctx, updateRuleSQL, id,
		cols.name, cols.description, cols.kind,
		cols.minOrderValue, cols.percentage,
		cols.minPreviousOrders, cols.flatAmount,
		cols.categoryID, cols.minItemsInCategory, cols.categoryPercentage,
		cols.priority, cols.active,
	)
	if err != nil {
		return nil, fmt.Errorf("updating rule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, discount.ErrRuleNotFound
	}

	return r.Get(ctx, id)
}

// Delete removes a rule definition. Applied discounts referencing it keep
// their denormalized name with a NULL rule reference.
func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteRuleSQL, id)
	if err != nil {
		return fmt.Errorf("deleting rule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrRuleNotFound
	}
	return nil
}

// ruleColumnValues is the flat row shape used for writes.
type ruleColumnValues struct {
	name               string
	description        string
	kind               string
	minOrderValue      *decimal.Decimal
	percentage         *decimal.Decimal
	minPreviousOrders  *int
	flatAmount         *decimal.Decimal
	categoryID         *int64
	minItemsInCategory *int
	categoryPercentage *decimal.Decimal
	priority           int
	active             bool
}

func ruleToColumns(rule discount.Rule) ruleColumnValues {
	m := rule.Meta()
	cols := ruleColumnValues{
		name:        m.Name,
		description: m.Description,
		kind:        string(rule.Kind()),
		priority:    m.Priority,
		active:      m.Active,
	}

	switch r := rule.(type) {
	case discount.PercentageRule:
		cols.minOrderValue = &r.MinOrderValue
		cols.percentage = &r.Percent
	case discount.FlatRule:
		cols.minPreviousOrders = &r.MinPreviousOrders
		cols.flatAmount = &r.Amount
	case discount.CategoryRule:
		cols.categoryID = &r.CategoryID
		cols.minItemsInCategory = &r.MinItems
		cols.categoryPercentage = &r.Percent
	}

	return cols
}

func scanRule(row pgx.CollectableRow) (discount.Rule, error) {
	var (
		meta               discount.Meta
		kind               string
		minOrderValue      *decimal.Decimal
		percentage         *decimal.Decimal
		minPreviousOrders  *int
		flatAmount         *decimal.Decimal
		categoryID         *int64
		categoryName       *string
		minItemsInCategory *int
		categoryPercentage *decimal.Decimal
	)
	err := row.Scan(
		&meta.ID, &meta.Name, &meta.Description, &kind,
		&minOrderValue, &percentage,
		&minPreviousOrders, &flatAmount,
		&categoryID, &categoryName, &minItemsInCategory, &categoryPercentage,
		&meta.Priority, &meta.Active,
	)
	if err != nil {
		return nil, err
	}

	switch discount.Kind(kind) {
	case discount.KindPercentage:
		return discount.PercentageRule{
			RuleMeta:      meta,
			MinOrderValue: deref(minOrderValue),
			Percent:       deref(percentage),
		}, nil
	case discount.KindFlat:
		rule := discount.FlatRule{RuleMeta: meta, Amount: deref(flatAmount)}
		if minPreviousOrders != nil {
			rule.MinPreviousOrders = *minPreviousOrders
		}
		return rule, nil
	case discount.KindCategory:
		rule := discount.CategoryRule{RuleMeta: meta, Percent: deref(categoryPercentage)}
		if categoryID != nil {
			rule.CategoryID = *categoryID
		}
		if categoryName != nil {
			rule.CategoryName = *categoryName
		}
		if minItemsInCategory != nil {
			rule.MinItems = *minItemsInCategory
		}
		return rule, nil
	default:
		return nil, fmt.Errorf("unknown rule kind %q in row %d", kind, meta.ID)
	}
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
