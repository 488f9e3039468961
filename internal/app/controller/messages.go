package controller

import (
	"errors"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/domain/quote/pdf"
	"impresos-uribe/cotizaciones/internal/infra/notify"
)

const (
	MsgClientRequired = "Por favor ingresa el nombre del cliente."
	MsgDateRequired   = "Por favor selecciona una fecha."
	MsgPriceNegative  = "El precio de cada concepto debe ser cero o mayor."
	MsgEmailInvalid   = "Por favor ingresa un correo electrónico válido."
	MsgChatIDInvalid  = "Por favor ingresa un chat de Telegram válido (número o @canal)."

	MsgAccessDenied = "No tienes permiso para acceder a las cotizaciones. Revisa la configuración de acceso de la base de datos."
	MsgSaveDenied   = "No tienes permiso para guardar cambios en la base de datos."
	MsgStorage      = "No se pudo completar la operación con la base de datos. Revisa tu conexión e inténtalo de nuevo."
	MsgNotFound     = "La cotización ya no existe."
	MsgExport       = "Hubo un error generando el PDF."
	MsgOversize     = "El PDF es demasiado grande para enviarse por correo. Reduce el contenido o descárgalo y envíalo manualmente."
	MsgDispatch     = "No se pudo enviar el correo."
	MsgEmailSent    = "Cotización enviada correctamente."
	MsgBusy         = "Espera a que termine la operación en curso."
	MsgNotReady     = "Las cotizaciones todavía no están disponibles."

	DefaultEmailBody = "Adjunto envío la cotización solicitada. Quedo a sus órdenes."
)

// Code classifies an error for API clients.
type Code string

const (
	CodeValidation   Code = "validation"
	CodePermission   Code = "permission_denied"
	CodeNotFound     Code = "not_found"
	CodeStorage      Code = "storage"
	CodeExport       Code = "export"
	CodeOversize     Code = "dispatch_oversize"
	CodeDispatch     Code = "dispatch"
	CodeInvalidState Code = "invalid_state"
	CodeInternal     Code = "internal"
)

// Alert is what the user sees after a failed action.
type Alert struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Describe maps any error of the application to an Alert.
func Describe(err error) Alert {
	var (
		verr *ValidationError
		serr *StateError
		derr *notify.DispatchError
	)
	switch {
	case err == nil:
		return Alert{}
	case errors.As(err, &verr):
		return Alert{Code: CodeValidation, Message: verr.Message, Detail: verr.Error()}
	case errors.As(err, &serr):
		return Alert{Code: CodeInvalidState, Message: serr.Message, Detail: serr.Error()}
	case quote.IsPermissionDenied(err):
		return Alert{Code: CodePermission, Message: MsgSaveDenied, Detail: err.Error()}
	case quote.IsNotFound(err):
		return Alert{Code: CodeNotFound, Message: MsgNotFound, Detail: err.Error()}
	case errors.Is(err, quote.ErrStorage):
		return Alert{Code: CodeStorage, Message: MsgStorage, Detail: err.Error()}
	case errors.Is(err, pdf.ErrExport):
		return Alert{Code: CodeExport, Message: MsgExport, Detail: err.Error()}
	case errors.As(err, &derr) && notify.IsOversize(err):
		return Alert{Code: CodeOversize, Message: MsgOversize, Detail: derr.Diagnostic()}
	case errors.As(err, &derr):
		return Alert{Code: CodeDispatch, Message: MsgDispatch + " " + derr.Diagnostic(), Detail: derr.Diagnostic()}
	}
	return Alert{Code: CodeInternal, Message: MsgStorage, Detail: err.Error()}
}
