package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/rfq"
)

type RFQHandler struct {
	RFQ *rfq.Service
	Log *zap.Logger
}

func (h *RFQHandler) Register(r chi.Router) {
	r.Post("/api/rfqs", h.broadcast)
}

type broadcastReq struct {
	rfq.Inquiry
	Suppliers []rfq.Supplier `json:"suppliers"`
}

func (h *RFQHandler) broadcast(w http.ResponseWriter, r *http.Request) {
	log := logging.OrNop(h.Log)
	var req broadcastReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	out, err := h.RFQ.Broadcast(ctx, req.Inquiry, req.Suppliers)
	if err != nil {
		writeError(w, log, err)
		return
	}
	status := http.StatusOK
	if out.Failed {
		// sebagian supplier gagal; yang berhasil tetap tersimpan
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, out)
}
