package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"impresos-uribe/cotizaciones/internal/app/controller"
	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/domain/quote/render"
)

type quoteView struct {
	quote.Quote
	Total string `json:"total"`
}

func viewOf(q quote.Quote) quoteView {
	return quoteView{Quote: q, Total: render.Money(q.Total())}
}

type listResponse struct {
	Quotes  []quoteView `json:"quotes"`
	Count   int         `json:"count"`
	Summary string      `json:"summary"`
}

func summary(n int) string {
	if n == 1 {
		return "1 documento encontrado"
	}
	return fmt.Sprintf("%d documentos encontrados", n)
}

func (h *Handlers) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Ctrl.State())
}

// ListQuotes serves the dashboard list, filtered by ?q= on client or quote name.
func (h *Handlers) ListQuotes(w http.ResponseWriter, r *http.Request) {
	if err := h.requireListable(); err != nil {
		writeError(w, err)
		return
	}
	found := h.Ctrl.Search(r.URL.Query().Get("q"))
	resp := listResponse{Quotes: make([]quoteView, 0, len(found)), Count: len(found), Summary: summary(len(found))}
	for _, q := range found {
		resp.Quotes = append(resp.Quotes, viewOf(q))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.Ctrl.Quote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(q))
}

func (h *Handlers) DeleteQuote(w http.ResponseWriter, r *http.Request) {
	if err := h.Ctrl.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Ctrl.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Ctrl.State())
}

func (h *Handlers) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.Ctrl.Retry(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.Ctrl.State())
}

func (h *Handlers) requireListable() error {
	s := h.Ctrl.State()
	if s.Phase == controller.PhaseAccessDenied && s.Alert != nil {
		return quote.NewPermissionError("list", errors.New(s.Alert.Detail))
	}
	return nil
}
