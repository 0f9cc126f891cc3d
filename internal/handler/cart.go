package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/meerkatlabs/storefront/internal/domain/cart"
	"github.com/meerkatlabs/storefront/internal/domain/discount"
	"github.com/meerkatlabs/storefront/internal/domain/product"
)

// GetCart returns the user's cart lines together with the discount preview:
// original total, total discount, discounted total, and the adjustment
// breakdown. Nothing is persisted.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	lines, err := h.carts.Lines(r.Context(), p.UserID)
	if err != nil {
		internalError(w, r, err)
		return
	}

	dec, err := h.engine.Evaluate(r.Context(), p.UserID, cart.LineItems(lines), h.history)
	if err != nil {
		if errors.Is(err, discount.ErrRulesUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "discounts temporarily unavailable")
			return
		}
		internalError(w, r, err)
		return
	}

	totalQuantity := 0
	for _, l := range lines {
		totalQuantity += l.Quantity
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, l := range lines {
						encodeCartLine(e, l)
					}
				})
			})
			e.Field("total_quantity", func(e *jx.Encoder) { e.Int(totalQuantity) })
			e.Field("original_price", func(e *jx.Encoder) { money(e, dec.Total) })
			e.Field("total_discount", func(e *jx.Encoder) { money(e, dec.TotalDiscount()) })
			e.Field("discounted_price", func(e *jx.Encoder) { money(e, dec.DiscountedTotal) })
			e.Field("applied_discounts", func(e *jx.Encoder) {
				encodeAdjustments(e, dec.Adjustments)
			})
		})
	})
}

// AddCartItem adds a product to the cart, merging quantities with an
// existing line for the same product.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var (
		productID string
		quantity  = 1
	)
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "product_id":
			v, err := d.Str()
			productID = v
			return err
		case "quantity":
			v, err := d.Int()
			quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if productID == "" {
		writeError(w, r, http.StatusBadRequest, "product_id is required")
		return
	}

	if err := h.carts.AddItem(r.Context(), p.UserID, productID, quantity); err != nil {
		cartError(w, r, err)
		return
	}
	h.writeCartLines(w, r, p.UserID, http.StatusCreated)
}

// UpdateCartItem replaces the quantity of one cart line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	productID := r.PathValue("productID")

	quantity := 0
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "quantity" {
			v, err := d.Int()
			quantity = v
			return err
		}
		return d.Skip()
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.carts.SetQuantity(r.Context(), p.UserID, productID, quantity); err != nil {
		cartError(w, r, err)
		return
	}
	h.writeCartLines(w, r, p.UserID, http.StatusOK)
}

// RemoveCartItem deletes one cart line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(r.Context(), p.UserID, r.PathValue("productID")); err != nil {
		cartError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeCartLines(w http.ResponseWriter, r *http.Request, userID string, status int) {
	lines, err := h.carts.Lines(r.Context(), userID)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, status, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, l := range lines {
				encodeCartLine(e, l)
			}
		})
	})
}

// cartError maps cart domain errors to HTTP statuses.
func cartError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *cart.NotEnoughStockError
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrProductInactive):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, product.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &stockErr):
		writeError(w, r, http.StatusConflict, stockErr.Error())
	default:
		internalError(w, r, err)
	}
}

func encodeCartLine(e *jx.Encoder, l cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
		e.Field("category", func(e *jx.Encoder) { e.Str(l.CategoryName) })
		e.Field("unit_price", func(e *jx.Encoder) { money(e, l.UnitPrice) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
	})
}

func encodeAdjustments(e *jx.Encoder, adjustments []discount.Adjustment) {
	e.Arr(func(e *jx.Encoder) {
		for _, a := range adjustments {
			e.Obj(func(e *jx.Encoder) {
				e.Field("rule_id", func(e *jx.Encoder) {
					if a.RuleID == nil {
						e.Null()
						return
					}
					e.Int64(*a.RuleID)
				})
				e.Field("name", func(e *jx.Encoder) { e.Str(a.Label) })
				e.Field("description", func(e *jx.Encoder) { e.Str(a.Description) })
				e.Field("amount", func(e *jx.Encoder) { money(e, a.Amount) })
			})
		}
	})
}
