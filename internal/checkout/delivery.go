package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/veya/storefront/internal/apiclient"
	apierrors "github.com/veya/storefront/internal/errors"
)

// pageDelivery is the full checkout page's tag set: every field is required.
type pageDelivery struct {
	FullName        string `json:"full_name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"required,phone10"`
	ShippingAddress string `json:"shipping_address" validate:"required"`
	City            string `json:"city" validate:"required"`
	State           string `json:"state" validate:"required"`
	Pincode         string `json:"pincode" validate:"required,len=6,numeric"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// Punctuation is tolerated; ten digits must remain once it is stripped.
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return len(digits(fl.Field().String())) == 10
	})
	return v
}

// ValidationError is a delivery form problem shown to the customer as is.
type ValidationError struct {
	Field   string
	Message string
	code    apierrors.ErrorCode
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) ErrorCode() apierrors.ErrorCode { return e.code }

var invalidMessages = map[string]string{
	"email":   "Please enter a valid email address",
	"phone":   "Please enter a valid 10-digit phone number",
	"pincode": "Please enter a valid 6-digit pincode",
}

// NormalizeDelivery trims every field.
func NormalizeDelivery(d apiclient.DeliveryDetails) apiclient.DeliveryDetails {
	d.FullName = strings.TrimSpace(d.FullName)
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = strings.TrimSpace(d.Phone)
	d.ShippingAddress = strings.TrimSpace(d.ShippingAddress)
	d.City = strings.TrimSpace(d.City)
	d.State = strings.TrimSpace(d.State)
	d.Pincode = strings.TrimSpace(d.Pincode)
	return d
}

// ValidateDelivery checks d. Name, phone and address are always required;
// strict also requires email, city, state and pincode. Format checks apply to
// every field that is filled in. A missing field is reported before a
// malformed one.
func ValidateDelivery(d apiclient.DeliveryDetails, strict bool) error {
	d = NormalizeDelivery(d)
	var err error
	if strict {
		err = validate.Struct(pageDelivery(d))
	} else {
		err = validate.Struct(d)
	}
	if err == nil {
		return nil
	}

	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return &ValidationError{Message: "Please check your delivery details", code: apierrors.ErrCodeInvalidField}
	}
	for _, fe := range fields {
		if fe.Tag() == "required" {
			return &ValidationError{Field: fe.Field(), Message: "Please fill in all required fields", code: apierrors.ErrCodeMissingField}
		}
	}
	fe := fields[0]
	msg, ok := invalidMessages[fe.Field()]
	if !ok {
		msg = "Please check your delivery details"
	}
	return &ValidationError{Field: fe.Field(), Message: msg, code: apierrors.ErrCodeInvalidField}
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
