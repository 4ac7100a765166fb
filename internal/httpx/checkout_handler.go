package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/pricing"
)

type CheckoutHandler struct {
	Checkout *checkout.Orchestrator
	Limiter  *RateLimiter
	Log      zerolog.Logger
}

type placedResp struct {
	Status  string         `json:"status"`
	OrderID string         `json:"orderId"`
	Totals  pricing.Totals `json:"totals"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.With(h.Limiter.Middleware).Post("/checkout/place", h.submit)
	r.Route("/checkout/attempts", func(r chi.Router) {
		r.Post("/", h.start)
		r.Get("/{id}", h.get)
		r.Put("/{id}/address", h.selectAddress)
		r.Put("/{id}/payment", h.selectPayment)
		r.Put("/{id}/review", h.review)
		r.With(h.Limiter.Middleware).Post("/{id}/place", h.place)
	})
}

func (h *CheckoutHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req checkout.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	// placement writes to several stores; give it more room than reads
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Checkout.Submit(ctx, principal(r).UserID, req)
	h.writePlaced(w, o, err)
}

func (h *CheckoutHandler) place(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Checkout.Place(ctx, principal(r).UserID, chi.URLParam(r, "id"))
	h.writePlaced(w, o, err)
}

func (h *CheckoutHandler) writePlaced(w http.ResponseWriter, o orders.Order, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, placedResp{Status: "placed", OrderID: o.ID, Totals: o.Totals})
}

func (h *CheckoutHandler) start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AttemptID string `json:"attemptId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, err := h.Checkout.Start(ctx, principal(r).UserID, req.AttemptID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *CheckoutHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, err := h.Checkout.Get(ctx, principal(r).UserID, chi.URLParam(r, "id"))
	h.writeAttempt(w, a, err)
}

func (h *CheckoutHandler) selectAddress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AddressID string `json:"addressId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, err := h.Checkout.SelectAddress(ctx, principal(r).UserID, chi.URLParam(r, "id"), req.AddressID)
	h.writeAttempt(w, a, err)
}

func (h *CheckoutHandler) selectPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentMethod pricing.PaymentMethod `json:"paymentMethod"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, err := h.Checkout.SelectPayment(ctx, principal(r).UserID, chi.URLParam(r, "id"), req.PaymentMethod)
	h.writeAttempt(w, a, err)
}

func (h *CheckoutHandler) review(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TermsAccepted bool   `json:"termsAccepted"`
		CouponCode    string `json:"couponCode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	a, err := h.Checkout.Review(ctx, principal(r).UserID, chi.URLParam(r, "id"), req.TermsAccepted, req.CouponCode)
	h.writeAttempt(w, a, err)
}

func (h *CheckoutHandler) writeAttempt(w http.ResponseWriter, a checkout.Attempt, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
