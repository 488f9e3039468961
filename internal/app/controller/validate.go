package controller

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"impresos-uribe/cotizaciones/internal/domain/quote"
	"impresos-uribe/cotizaciones/internal/infra/notify"
)

var validate *validator.Validate

// chatIDPattern accepts numeric chat ids (negative for groups) and @channel names.
var chatIDPattern = regexp.MustCompile(`^(-?[0-9]+|@[A-Za-z][A-Za-z0-9_]{4,})$`)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("chatid", func(fl validator.FieldLevel) bool {
		return chatIDPattern.MatchString(fl.Field().String())
	})
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

var ErrValidation = errors.New("validation failed")

// ValidationError lists failing fields by JSON name. Message is the user
// text for the first failure.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, m := range e.Fields {
		parts = append(parts, f+": "+m)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidateQuote runs the presence checks done before saving. Blank-only
// client names count as missing.
func ValidateQuote(q quote.Quote) error {
	q.ClientName = strings.TrimSpace(q.ClientName)
	return toValidationError(validate.Struct(q))
}

// EmailRequest is the input of the email dialog.
type EmailRequest struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type telegramRecipient struct {
	To string `json:"to" validate:"required,chatid"`
}

// ValidateRecipient checks req.To against what channel delivers to: an email
// address, or a Telegram chat for notify.ChannelTelegram.
func ValidateRecipient(req EmailRequest, channel string) error {
	req.To = strings.TrimSpace(req.To)
	if channel == notify.ChannelTelegram {
		return toValidationError(validate.Struct(telegramRecipient{To: req.To}))
	}
	return toValidationError(validate.Struct(req))
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := &ValidationError{Fields: map[string]string{}}
	for _, fe := range ve {
		msg := fieldMessage(fe)
		out.Fields[fe.Namespace()] = msg
		if out.Message == "" {
			out.Message = msg
		}
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "clientName":
		return MsgClientRequired
	case "date":
		return MsgDateRequired
	case "price":
		return MsgPriceNegative
	case "to":
		if strings.HasPrefix(fe.Namespace(), "telegramRecipient.") {
			return MsgChatIDInvalid
		}
		return MsgEmailInvalid
	}
	return "Revisa el campo " + fe.Field() + "."
}
