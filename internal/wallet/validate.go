package wallet

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"bizwallet/internal/apperr"
	"bizwallet/internal/money"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// MinReasonLength applies to every privileged action.
const MinReasonLength = 10

// AdjustmentInput is the admin adjust body. A negative Amount debits.
type AdjustmentInput struct {
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	Reason        string          `json:"reason" validate:"reason"`
	Currency      string          `json:"currency" validate:"currency"`
	AllowNegative bool            `json:"allow_negative"`
}

// FreezeInput is the body of both freeze and unfreeze.
type FreezeInput struct {
	Reason string `json:"reason" validate:"reason"`
}

type TopUpInput struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
}

type ChargeSavedInput struct {
	PaymentMethodID string          `json:"payment_method_id" validate:"required,uuid"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
}

type CancelAttemptInput struct {
	AttemptID string `json:"attempt_id" validate:"required,uuid"`
}

type AutoRechargeSettingsInput struct {
	Enabled         bool            `json:"enabled"`
	Threshold       decimal.Decimal `json:"threshold" validate:"gte=0"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMethodID string          `json:"payment_method_id" validate:"omitempty,uuid"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// Amounts are compared as numbers by the builtin tags.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		d, ok := field.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(AutoRechargeSettingsInput)
		if in.Enabled && in.PaymentMethodID == "" {
			sl.ReportError(in.PaymentMethodID, "payment_method_id", "PaymentMethodID", "required_if", "Enabled true")
		}
	}, AutoRechargeSettingsInput{})

	mustRegister(v, "reason", func(fl validator.FieldLevel) bool {
		return len([]rune(strings.TrimSpace(fl.Field().String()))) >= MinReasonLength
	})
	mustRegister(v, "currency", func(fl validator.FieldLevel) bool {
		return money.IsCurrencyCode(fl.Field().String())
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s: %v", tag, err))
	}
}

// Validate checks an input struct. On failure it returns a validation
// *apperr.Error whose message is the first field message. It has no side
// effects.
func Validate(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal("validation failed", err)
	}
	fields := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperr.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return apperr.ValidationFields(fields)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		if field == "amount" {
			return "amount must be a non-zero number"
		}
		return field + " is required"
	case "required_if":
		return field + " is required"
	case "gt":
		return field + " must be greater than 0"
	case "gte":
		return field + " must be 0 or greater"
	case "reason":
		return fmt.Sprintf("reason must be at least %d characters", MinReasonLength)
	case "currency":
		return "currency must be a 3-letter uppercase code"
	case "uuid":
		return field + " must be a valid UUID"
	default:
		return field + " is invalid"
	}
}
