package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/meerkatlabs/storefront/internal/domain/discount"
)

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListAll(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, rule := range rules {
				encodeRule(e, rule)
			}
		})
	})
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	rule, err := h.rules.Get(r.Context(), id)
	if err != nil {
		ruleError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeRule(e, rule)
	})
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := decodeRule(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.rules.Create(r.Context(), rule)
	if err != nil {
		internalError(w, r, err)
		return
	}
	h.cache.Invalidate()
	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeRule(e, created)
	})
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	rule, err := decodeRule(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.rules.Update(r.Context(), id, rule)
	if err != nil {
		ruleError(w, r, err)
		return
	}
	h.cache.Invalidate()
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeRule(e, updated)
	})
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	if err := h.rules.Delete(r.Context(), id); err != nil {
		ruleError(w, r, err)
		return
	}
	h.cache.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func ruleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid rule id")
		return 0, false
	}
	return id, true
}

func ruleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, discount.ErrRuleNotFound) {
		writeError(w, r, http.StatusNotFound, "discount rule not found")
		return
	}
	internalError(w, r, err)
}

// rulePayload is the flat wire form of a rule. Which optional fields are
// required depends on the kind.
type rulePayload struct {
	kind        discount.Kind
	name        string
	description string
	priority    int
	active      bool

	minOrderValue     *decimal.Decimal
	percent           *decimal.Decimal
	minPreviousOrders *int
	amount            *decimal.Decimal
	categoryID        *int64
	minItems          *int
}

func decodeRule(r *http.Request) (discount.Rule, error) {
	p := rulePayload{active: true}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "kind":
			v, err := d.Str()
			p.kind = discount.Kind(v)
			return err
		case "name":
			v, err := d.Str()
			p.name = v
			return err
		case "description":
			v, err := d.Str()
			p.description = v
			return err
		case "priority":
			v, err := d.Int()
			p.priority = v
			return err
		case "active":
			v, err := d.Bool()
			p.active = v
			return err
		case "min_order_value":
			return decodeDecimal(d, &p.minOrderValue)
		case "percent":
			return decodeDecimal(d, &p.percent)
		case "min_previous_orders":
			v, err := d.Int()
			p.minPreviousOrders = &v
			return err
		case "amount":
			return decodeDecimal(d, &p.amount)
		case "category_id":
			v, err := d.Int64()
			p.categoryID = &v
			return err
		case "min_items":
			v, err := d.Int()
			p.minItems = &v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.New("invalid request body")
	}
	return p.toRule()
}

func decodeDecimal(d *jx.Decoder, dst **decimal.Decimal) error {
	f, err := d.Float64()
	if err != nil {
		return err
	}
	v := decimal.NewFromFloat(f)
	*dst = &v
	return nil
}

func (p rulePayload) toRule() (discount.Rule, error) {
	if p.name == "" {
		return nil, errors.New("name is required")
	}
	meta := discount.Meta{
		Name:        p.name,
		Description: p.description,
		Priority:    p.priority,
		Active:      p.active,
	}
	switch p.kind {
	case discount.KindPercentage:
		if p.minOrderValue == nil || p.percent == nil {
			return nil, errors.New("percentage rule requires min_order_value and percent")
		}
		if err := validPercent(*p.percent); err != nil {
			return nil, err
		}
		return discount.PercentageRule{
			RuleMeta:      meta,
			MinOrderValue: *p.minOrderValue,
			Percent:       *p.percent,
		}, nil
	case discount.KindFlat:
		if p.minPreviousOrders == nil || p.amount == nil {
			return nil, errors.New("flat rule requires min_previous_orders and amount")
		}
		if p.amount.IsNegative() {
			return nil, errors.New("amount must not be negative")
		}
		if *p.minPreviousOrders < 0 {
			return nil, errors.New("min_previous_orders must not be negative")
		}
		return discount.FlatRule{
			RuleMeta:          meta,
			MinPreviousOrders: *p.minPreviousOrders,
			Amount:            *p.amount,
		}, nil
	case discount.KindCategory:
		if p.categoryID == nil || p.minItems == nil || p.percent == nil {
			return nil, errors.New("category rule requires category_id, min_items and percent")
		}
		if err := validPercent(*p.percent); err != nil {
			return nil, err
		}
		if *p.minItems < 0 {
			return nil, errors.New("min_items must not be negative")
		}
		return discount.CategoryRule{
			RuleMeta:   meta,
			CategoryID: *p.categoryID,
			MinItems:   *p.minItems,
			Percent:    *p.percent,
		}, nil
	default:
		return nil, errors.New("kind must be one of percentage, flat, category")
	}
}

func validPercent(v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("percent must be between 0 and 100")
	}
	return nil
}

func encodeRule(e *jx.Encoder, rule discount.Rule) {
	m := rule.Meta()
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(m.ID) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(rule.Kind())) })
		e.Field("name", func(e *jx.Encoder) { e.Str(m.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(m.Description) })
		e.Field("priority", func(e *jx.Encoder) { e.Int(m.Priority) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(m.Active) })
		switch r := rule.(type) {
		case discount.PercentageRule:
			e.Field("min_order_value", func(e *jx.Encoder) { money(e, r.MinOrderValue) })
			e.Field("percent", func(e *jx.Encoder) { money(e, r.Percent) })
		case discount.FlatRule:
			e.Field("min_previous_orders", func(e *jx.Encoder) { e.Int(r.MinPreviousOrders) })
			e.Field("amount", func(e *jx.Encoder) { money(e, r.Amount) })
		case discount.CategoryRule:
			e.Field("category_id", func(e *jx.Encoder) { e.Int64(r.CategoryID) })
			e.Field("category", func(e *jx.Encoder) { e.Str(r.CategoryName) })
			e.Field("min_items", func(e *jx.Encoder) { e.Int(r.MinItems) })
			e.Field("percent", func(e *jx.Encoder) { money(e, r.Percent) })
		}
	})
}
