package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/redisx"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Idempotency interface {
	Begin(ctx context.Context, scope, key string) (*redisx.StoredResponse, error)
	Complete(ctx context.Context, scope, key string, status int, body any) error
	Release(ctx context.Context, scope, key string) error
}

// operation does the work of a request. key is the caller's Idempotency-Key,
// empty when none was sent.
type operation func(ctx context.Context, key string) (int, any, error)

// serveIdempotent runs op at most once per Idempotency-Key and scope. A
// repeat of a finished request gets the stored response; a repeat of one
// still running gets 409. Failures release the key so the caller can retry.
func serveIdempotent(w http.ResponseWriter, r *http.Request, idem Idempotency, log *zap.Logger, scope string, op operation) {
	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if key == "" || idem == nil {
		status, body, err := op(ctx, key)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, status, body)
		return
	}

	stored, err := idem.Begin(ctx, scope, key)
	switch {
	case errors.Is(err, redisx.ErrInFlight):
		e := apperr.Conflict("A request with this Idempotency-Key is still being processed")
		e.Code = "request_in_flight"
		writeError(w, log, e)
		return
	case err != nil:
		writeError(w, log, apperr.Persistence("Could not reserve idempotency key", err))
		return
	case stored != nil:
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
		return
	}

	status, body, err := op(ctx, key)
	if err != nil {
		if rerr := idem.Release(context.WithoutCancel(ctx), scope, key); rerr != nil {
			log.Warn("idempotency key not released", zap.String("scope", scope), zap.Error(rerr))
		}
		writeError(w, log, err)
		return
	}
	if cerr := idem.Complete(context.WithoutCancel(ctx), scope, key, status, body); cerr != nil {
		log.Warn("idempotent response not stored", zap.String("scope", scope), zap.Error(cerr))
	}
	writeJSON(w, status, body)
}
