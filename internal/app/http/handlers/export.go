package handlers

import (
	"bytes"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"impresos-uribe/cotizaciones/internal/app/controller"
	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf/raster"
)

// QuotePDF downloads a stored quote. ?tier=attachment returns the small copy.
func (h *Handlers) QuotePDF(w http.ResponseWriter, r *http.Request) {
	tier := pdf.TierDownload
	if v := r.URL.Query().Get("tier"); v != "" {
		t, err := pdf.ParseTier(v)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		tier = t
	}

	q, err := h.Ctrl.Quote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Ctrl.Export(r.Context(), q, tier)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(res.Size))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Bytes)
}

// QuotePreview returns the rendered page of a stored quote.
func (h *Handlers) QuotePreview(w http.ResponseWriter, r *http.Request) {
	q, err := h.Ctrl.Quote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.preview(w, r, q)
}

// DraftPreview renders the draft as it is, unsaved.
func (h *Handlers) DraftPreview(w http.ResponseWriter, r *http.Request) {
	s := h.Ctrl.State()
	if s.Draft == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "no hay borrador abierto"})
		return
	}
	h.preview(w, r, *s.Draft)
}

// preview writes the layout as JSON, or as a PNG with ?format=png.
func (h *Handlers) preview(w http.ResponseWriter, r *http.Request, q quote.Quote) {
	doc := h.Ctrl.Preview(q)
	if r.URL.Query().Get("format") != "png" {
		writeJSON(w, http.StatusOK, doc)
		return
	}
	if h.Assets == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: controller.CodeExport, Message: controller.MsgExport, Detail: "preview assets not configured"})
		return
	}

	assets, err := h.Assets.Ready(r.Context())
	if err != nil {
		writeError(w, &pdf.ExportError{Stage: "assets", Err: err})
		return
	}
	img, err := raster.Draw(doc, assets, 1)
	if err != nil {
		writeError(w, &pdf.ExportError{Stage: "raster", Err: err})
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		writeError(w, &pdf.ExportError{Stage: "encode", Err: err})
		return
	}
	h.Log.Debug("http: preview rendered", slog.String("id", q.ID), slog.Int("bytes", buf.Len()))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
