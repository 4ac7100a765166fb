package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/go-storefront-checkout/internal/address"
	"github.com/ariefcatur/go-storefront-checkout/internal/cart"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/inventory"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	Field  string `json:"field,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

// failedBody is the client contract for a checkout that did not place.
type failedBody struct {
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	SKUID     string `json:"skuId,omitempty"`
	Requested *int   `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json", Reason: "invalid_request"})
		return false
	}
	return true
}

func failureStatus(reason string) int {
	switch reason {
	case checkout.ReasonOutOfStock, checkout.ReasonReservationExpired:
		return http.StatusConflict
	case checkout.ReasonPaymentDeclined:
		return http.StatusPaymentRequired
	case checkout.ReasonOrderWriteFailed, checkout.ReasonInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// writeError maps domain errors to a status code and a machine readable reason.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		failed *checkout.FailedError
		dup    *checkout.DuplicateAttemptError
		step   *checkout.StepError
		neg    *inventory.NegativeStockError
		oos    *inventory.OutOfStockError
		ill    *orders.IllegalTransitionError
		inval  *address.ValidationError
	)
	switch {
	case errors.As(err, &failed):
		f := failed.Failure
		body := failedBody{Status: "failed", Reason: f.Reason, SKUID: f.SKUID, Detail: f.Detail}
		if f.Reason == checkout.ReasonOutOfStock {
			body.Requested, body.Available = &f.Requested, &f.Available
		}
		if failureStatus(f.Reason) == http.StatusInternalServerError {
			log.Error().Err(err).Msg("checkout failed")
		}
		writeJSON(w, failureStatus(f.Reason), body)
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Reason: "duplicate_attempt"})
	case errors.As(err, &step):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Reason: "invalid_step"})
	case errors.As(err, &neg):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Reason: "negative_stock"})
	case errors.As(err, &oos):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Reason: "out_of_stock"})
	case errors.As(err, &ill):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Reason: "illegal_transition", From: string(ill.From), To: string(ill.To)})
	case errors.As(err, &inval):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: "invalid_address", Field: inval.Field})
	case errors.Is(err, checkout.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Reason: "forbidden"})
	case errors.Is(err, checkout.ErrMissingAttemptID),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidMode),
		errors.Is(err, cart.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: "invalid_request"})
	case errors.Is(err, checkout.ErrAttemptNotFound),
		errors.Is(err, orders.ErrNotFound),
		errors.Is(err, inventory.ErrSKUNotFound),
		errors.Is(err, address.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Reason: "not_found"})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Reason: "internal"})
	}
}
