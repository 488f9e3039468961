package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"impresos-uribe/cotizaciones/internal/domain/quote"
)

func (h *Handlers) NewDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.Ctrl.CreateNew()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handlers) EditQuote(w http.ResponseWriter, r *http.Request) {
	d, err := h.Ctrl.Edit(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) GetDraft(w http.ResponseWriter, r *http.Request) {
	s := h.Ctrl.State()
	if s.Draft == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "no hay borrador abierto"})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*s.Draft))
}

func (h *Handlers) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var q quote.Quote
	if !decode(w, r, &q) {
		return
	}
	d, err := h.Ctrl.UpdateDraft(q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(d))
}

func (h *Handlers) AddItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.Ctrl.AddItem()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *Handlers) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Ctrl.RemoveItem(chi.URLParam(r, "itemID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SaveDraft(w http.ResponseWriter, r *http.Request) {
	saved, err := h.Ctrl.Save(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(saved))
}

func (h *Handlers) CancelDraft(w http.ResponseWriter, r *http.Request) {
	h.Ctrl.Cancel()
	w.WriteHeader(http.StatusNoContent)
}
