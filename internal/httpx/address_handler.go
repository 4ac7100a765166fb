package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-storefront-checkout/internal/address"
)

type AddressHandler struct {
	Book address.Book
	Log  zerolog.Logger
}

func (h *AddressHandler) Register(r chi.Router) {
	r.Get("/addresses", h.list)
	r.Post("/addresses", h.add)
	r.Put("/addresses/{id}/default", h.setDefault)
	r.Delete("/addresses/{id}", h.delete)
}

func (h *AddressHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	as, err := h.Book.List(ctx, principal(r).UserID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

func (h *AddressHandler) add(w http.ResponseWriter, r *http.Request) {
	var a address.Address
	if !decodeJSON(w, r, &a) {
		return
	}
	// identity comes from the token, never the body
	a.ID, a.UserID = "", principal(r).UserID

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	saved, err := h.Book.Add(ctx, a)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *AddressHandler) setDefault(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Book.SetDefault(ctx, principal(r).UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AddressHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Book.Delete(ctx, principal(r).UserID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
