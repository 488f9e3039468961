package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"impresos-uribe/cotizaciones/internal/app/controller"
)

type emailDefaults struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// EmailDefaults prefills the email dialog for a quote.
func (h *Handlers) EmailDefaults(w http.ResponseWriter, r *http.Request) {
	q, err := h.Ctrl.Quote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emailDefaults{Subject: controller.DefaultSubject(q), Message: controller.DefaultEmailBody})
}

func (h *Handlers) EmailQuote(w http.ResponseWriter, r *http.Request) {
	var req controller.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := h.Ctrl.Quote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Ctrl.Email(r.Context(), q, req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": controller.MsgEmailSent})
}
