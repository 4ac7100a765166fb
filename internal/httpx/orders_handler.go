package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
)

type OrdersHandler struct {
	Orders   orders.Store
	Checkout *checkout.Orchestrator
	Redis    *redis.Client // optional status cache
	Log      zerolog.Logger
}

// statusView is what the tracking page polls. It is cached in Redis.
type statusView struct {
	OrderID   string        `json:"order_id"`
	UserID    string        `json:"user_id"`
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.With(requireAdmin).Put("/orders/{id}/status", h.setStatus)
}

func actorOf(r *http.Request) checkout.Actor {
	p := principal(r)
	return checkout.Actor{UserID: p.UserID, Admin: p.Admin}
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Orders.ListByUser(ctx, principal(r).UserID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if p := principal(r); !p.Admin && o.UserID != p.UserID {
		writeError(w, h.Log, orders.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	v, ok := h.cachedStatus(ctx, orderID)
	if !ok {
		// 2) store, then fill the cache
		o, err := h.Orders.GetByID(ctx, orderID)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		v = statusView{OrderID: o.ID, UserID: o.UserID, Status: o.Status, UpdatedAt: o.UpdatedAt}
		h.cacheStatus(ctx, v)
	}
	if p := principal(r); !p.Admin && v.UserID != p.UserID {
		writeError(w, h.Log, orders.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	o, err := h.Checkout.Cancel(ctx, orderID, actorOf(r))
	h.invalidate(ctx, orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status orders.Status `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("unknown status %q", req.Status), Reason: "invalid_request"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	o, err := h.Checkout.AdvanceStatus(ctx, orderID, req.Status, actorOf(r))
	h.invalidate(ctx, orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cachedStatus(ctx context.Context, orderID string) (statusView, bool) {
	if h.Redis == nil {
		return statusView{}, false
	}
	b, err := h.Redis.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Bytes()
	if err != nil {
		return statusView{}, false
	}
	var v statusView
	if err := json.Unmarshal(b, &v); err != nil {
		return statusView{}, false
	}
	return v, true
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, v statusView) {
	if h.Redis == nil {
		return
	}
	b, _ := json.Marshal(v)
	if err := h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, v.OrderID), b, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn().Err(err).Str("order_id", v.OrderID).Msg("cache order status")
	}
}

func (h *OrdersHandler) invalidate(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	if err := h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err(); err != nil {
		h.Log.Warn().Err(err).Str("order_id", orderID).Msg("invalidate order status")
	}
}
