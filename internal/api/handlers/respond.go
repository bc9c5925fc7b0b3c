package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"poolvault/pkg/errors"
	"poolvault/pkg/logger"
)

// envelope is the generic JSON response body
type envelope map[string]interface{}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError maps a service error onto the HTTP taxonomy:
// validation and domain rejections are 400, capability and secret
// mismatches 401, unknown resources 404, exhausted valuation tiers
// and everything else 500.
func respondError(w http.ResponseWriter, log *logger.Logger, err error) {
	code := http.StatusInternalServerError
	message := err.Error()

	var ve *errors.ValidationError
	switch {
	case errors.As(err, &ve):
		code = http.StatusBadRequest
		message = fmt.Sprintf("%s: %s", ve.Field, ve.Message)
	case errors.Is(err, errors.ErrInvalidInput),
		errors.Is(err, errors.ErrBelowMinimumDeposit),
		errors.Is(err, errors.ErrInsufficientShares),
		errors.Is(err, errors.ErrNotMember),
		errors.Is(err, errors.ErrInvalidAllocation),
		errors.Is(err, errors.ErrRebalanceCooldown):
		code = http.StatusBadRequest
	case errors.Is(err, errors.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, errors.ErrNotFound):
		code = http.StatusNotFound
	}

	if code == http.StatusInternalServerError {
		log.Errorw("Request failed", "error", err)
		// Internal detail stays in the logs
		message = "internal error"
		if errors.Is(err, errors.ErrValuationUnavailable) {
			message = errors.ErrValuationUnavailable.Error()
		}
	}

	respondJSON(w, code, envelope{"success": false, "error": message})
}

// decodeJSON parses a request body, rejecting unknown fields
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, err.Error())
	}
	return nil
}
