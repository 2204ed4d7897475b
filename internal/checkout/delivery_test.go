package checkout

import (
	"errors"
	"testing"

	"github.com/veya/storefront/internal/apiclient"
	apierrors "github.com/veya/storefront/internal/errors"
)

func validDelivery() apiclient.DeliveryDetails {
	return apiclient.DeliveryDetails{
		FullName:        "Asha Rao",
		Email:           "asha@example.com",
		Phone:           "98765 43210",
		ShippingAddress: "12 MG Road",
		City:            "Bengaluru",
		State:           "KA",
		Pincode:         "560001",
	}
}

func TestValidateDelivery(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(d *apiclient.DeliveryDetails)
		strict    bool
		wantField string
		wantCode  apierrors.ErrorCode
	}{
		{"complete", func(*apiclient.DeliveryDetails) {}, true, "", ""},
		{"quick needs only three fields", func(d *apiclient.DeliveryDetails) {
			d.Email, d.City, d.State, d.Pincode = "", "", "", ""
		}, false, "", ""},
		{"strict requires pincode", func(d *apiclient.DeliveryDetails) { d.Pincode = "" }, true, "pincode", apierrors.ErrCodeMissingField},
		{"missing name", func(d *apiclient.DeliveryDetails) { d.FullName = " " }, false, "full_name", apierrors.ErrCodeMissingField},
		{"missing address", func(d *apiclient.DeliveryDetails) { d.ShippingAddress = "" }, false, "shipping_address", apierrors.ErrCodeMissingField},
		{"short phone", func(d *apiclient.DeliveryDetails) { d.Phone = "12345" }, false, "phone", apierrors.ErrCodeInvalidField},
		{"phone with punctuation", func(d *apiclient.DeliveryDetails) { d.Phone = "(987) 654-3210" }, false, "", ""},
		{"bad email when given", func(d *apiclient.DeliveryDetails) { d.Email = "asha@" }, false, "email", apierrors.ErrCodeInvalidField},
		{"bad pincode when given", func(d *apiclient.DeliveryDetails) { d.Pincode = "5600" }, false, "pincode", apierrors.ErrCodeInvalidField},
		{"letters in pincode", func(d *apiclient.DeliveryDetails) { d.Pincode = "56000a" }, true, "pincode", apierrors.ErrCodeInvalidField},
		{"strict requires email", func(d *apiclient.DeliveryDetails) { d.Email = "" }, true, "email", apierrors.ErrCodeMissingField},
		{"strict rejects bad email", func(d *apiclient.DeliveryDetails) { d.Email = "asha.example.com" }, true, "email", apierrors.ErrCodeInvalidField},
		{"missing reported before malformed", func(d *apiclient.DeliveryDetails) {
			d.Email, d.City = "asha@", ""
		}, true, "city", apierrors.ErrCodeMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDelivery()
			tt.mutate(&d)
			err := ValidateDelivery(d, tt.strict)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.wantField || ve.ErrorCode() != tt.wantCode {
				t.Errorf("got field %q code %q, want %q %q", ve.Field, ve.ErrorCode(), tt.wantField, tt.wantCode)
			}
		})
	}
}
