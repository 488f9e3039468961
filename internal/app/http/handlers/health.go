package handlers

import (
	"net/http"

	"impresos-uribe/cotizaciones/internal/app/controller"
)

type healthResponse struct {
	Status string           `json:"status"`
	Phase  controller.Phase `json:"phase"`
	Live   bool             `json:"live"`
}

// Health reports liveness. The process is healthy even when access to the
// store was denied; phase tells the two apart.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	s := h.Ctrl.State()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Phase: s.Phase, Live: s.Live})
}
