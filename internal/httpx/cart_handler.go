package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-storefront-checkout/internal/cart"
)

type CartHandler struct {
	Cart *cart.Service
	Log  zerolog.Logger
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.get)
	r.Delete("/cart", h.clear)
	r.Post("/cart/items", h.add)
	r.Put("/cart/items/{skuId}", h.setQuantity)
	r.Delete("/cart/items/{skuId}", h.remove)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	h.writeCart(ctx, w, principal(r).UserID, nil)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SKUID    string `json:"skuId"`
		Quantity int    `json:"quantity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	lines, err := h.Cart.Add(ctx, principal(r).UserID, req.SKUID, req.Quantity)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	userID := principal(r).UserID
	err := h.Cart.Store.SetQuantity(ctx, userID, chi.URLParam(r, "skuId"), req.Quantity)
	h.writeCart(ctx, w, userID, err)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	userID := principal(r).UserID
	err := h.Cart.Store.Remove(ctx, userID, chi.URLParam(r, "skuId"))
	h.writeCart(ctx, w, userID, err)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	userID := principal(r).UserID
	h.writeCart(ctx, w, userID, h.Cart.Clear(ctx, userID))
}

// writeCart reports err or else the current snapshot.
func (h *CartHandler) writeCart(ctx context.Context, w http.ResponseWriter, userID string, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	lines, err := h.Cart.Snapshot(ctx, userID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, lines)
}
