package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/orders"
)

type OrdersHandler struct {
	Orders orders.Store
	Log    *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/api/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	o, err := h.Orders.GetOrder(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, log, apperr.NotFound("Order not found"))
		return
	}
	if err != nil {
		writeError(w, log, apperr.Persistence("Could not load order", err))
		return
	}
	writeJSON(w, http.StatusOK, o)
}
