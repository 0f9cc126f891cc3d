package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/meerkatlabs/storefront/internal/domain/discount"
	"github.com/meerkatlabs/storefront/internal/domain/order"
)

// PlaceOrder converts the user's cart into an order inside one
// transaction. On success the response carries the persisted order with
// its items and applied discounts.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	placed, err := h.orders.CreateOrder(r.Context(), p.UserID)
	if err != nil {
		orderError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, placed)
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), p.UserID, p.Admin)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetOrder(r.Context(), p.UserID, p.Admin, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "order not found")
			return
		}
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func orderError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *order.InsufficientStockError
	switch {
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, r, http.StatusBadRequest, "cart is empty")
	case errors.As(err, &stockErr):
		writeError(w, r, http.StatusConflict, stockErr.Error())
	case errors.Is(err, discount.ErrRulesUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "discounts temporarily unavailable")
	default:
		internalError(w, r, err)
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("total_amount", func(e *jx.Encoder) { money(e, o.TotalAmount) })
		e.Field("discounted_amount", func(e *jx.Encoder) { money(e, o.DiscountedAmount) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format("2006-01-02T15:04:05Z07:00")) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					encodeOrderItem(e, it)
				}
			})
		})
		e.Field("applied_discounts", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, d := range o.Discounts {
					encodeAppliedDiscount(e, d)
				}
			})
		})
	})
}

func encodeOrderItem(e *jx.Encoder, it order.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
		e.Field("unit_price", func(e *jx.Encoder) { money(e, it.UnitPrice) })
		e.Field("discounted_price", func(e *jx.Encoder) { money(e, it.DiscountedPrice) })
	})
}

func encodeAppliedDiscount(e *jx.Encoder, d order.AppliedDiscount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("rule_id", func(e *jx.Encoder) {
			if d.RuleID == nil {
				e.Null()
				return
			}
			e.Int64(*d.RuleID)
		})
		e.Field("name", func(e *jx.Encoder) { e.Str(d.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(d.Description) })
		e.Field("amount", func(e *jx.Encoder) { money(e, d.Amount) })
	})
}
