package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"impresos-uribe/cotizaciones/internal/app/controller"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf"
	"impresos-uribe/cotizaciones/internal/platform/logging"
)

type Handlers struct {
	Ctrl *controller.Controller
	// Assets feeds the PNG preview; nil disables it.
	Assets pdf.AssetSource
	Log    *slog.Logger
}

func New(ctrl *controller.Controller, assets pdf.AssetSource, log *slog.Logger) *Handlers {
	return &Handlers{
		Ctrl:   ctrl,
		Assets: assets,
		Log:    logging.OrDiscard(log),
	}
}

const maxBody = 1 << 20

type errorBody struct {
	Error   controller.Code `json:"error"`
	Message string          `json:"message"`
	Detail  string          `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an application error to its HTTP status and the user
// facing alert.
func writeError(w http.ResponseWriter, err error) {
	a := controller.Describe(err)
	writeJSON(w, statusFor(a.Code), errorBody{Error: a.Code, Message: a.Message, Detail: a.Detail})
}

func statusFor(code controller.Code) int {
	switch code {
	case controller.CodeValidation:
		return http.StatusUnprocessableEntity
	case controller.CodePermission:
		return http.StatusForbidden
	case controller.CodeNotFound:
		return http.StatusNotFound
	case controller.CodeOversize:
		return http.StatusRequestEntityTooLarge
	case controller.CodeInvalidState:
		return http.StatusConflict
	case controller.CodeStorage, controller.CodeExport, controller.CodeDispatch:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "bad_request", Message: "request body too large"})
			return false
		}
		badRequest(w, "bad request")
		return false
	}
	return true
}
