package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error any    `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status the error kind maps to. Gateway errors
// that carry the upstream payload return it as the error value.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: "Internal server error"}
	var e *apperr.Error
	if errors.As(err, &e) {
		body.Code = e.Code
		switch {
		case e.Detail != nil:
			body.Error = e.Detail
		case e.Message != "":
			body.Error = e.Message
		}
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		log.Info("request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

var errInvalidJSON = apperr.Validation("invalid_json", "invalid json")

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errInvalidJSON
	}
	return nil
}
