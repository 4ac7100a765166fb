package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
)

type InventoryHandler struct {
	Store inventory.Store
	Log   zerolog.Logger
}

type adjustReq struct {
	Action   inventory.AdjustMode `json:"action"`
	Quantity int                  `json:"quantity"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/inventory/{skuId}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Get("/inventory/low-stock", h.lowStock)
		r.Get("/inventory/out-of-stock", h.outOfStock)
		r.Post("/inventory", h.upsert)
		r.Put("/inventory/{skuId}", h.adjust)
	})
}

func (h *InventoryHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sku, err := h.Store.Get(ctx, chi.URLParam(r, "skuId"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sku)
}

func (h *InventoryHandler) upsert(w http.ResponseWriter, r *http.Request) {
	var sku inventory.SKU
	if !decodeJSON(w, r, &sku) {
		return
	}
	if sku.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "sku_id is required", Reason: "invalid_request"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.Upsert(ctx, sku); err != nil {
		writeError(w, h.Log, err)
		return
	}
	stored, err := h.Store.Get(ctx, sku.ID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustReq
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	skuID := chi.URLParam(r, "skuId")
	sku, err := h.Store.Adjust(ctx, skuID, req.Quantity, req.Action)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.Log.Info().Str("sku_id", skuID).Str("action", string(req.Action)).Int("quantity", req.Quantity).
		Int("stock", sku.StockQuantity).Str("by", principal(r).UserID).Msg("stock adjusted")
	writeJSON(w, http.StatusOK, sku)
}

func (h *InventoryHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	// without a query threshold every SKU is judged by its own
	threshold := 0
	if q := r.URL.Query().Get("threshold"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "threshold must be a non-negative integer", Reason: "invalid_request"})
			return
		}
		threshold = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	skus, err := h.Store.LowStock(ctx, threshold)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, skus)
}

func (h *InventoryHandler) outOfStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	skus, err := h.Store.OutOfStock(ctx)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, skus)
}
