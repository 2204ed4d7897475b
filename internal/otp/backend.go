package otp

import (
	"context"
	"fmt"

	"github.com/veya/storefront/internal/apiclient"
	apierrors "github.com/veya/storefront/internal/errors"
)

// Client is the slice of the REST API the OTP flows use.
type Client interface {
	SendEmailOTP(ctx context.Context, email string) (string, error)
	VerifyEmailOTP(ctx context.Context, email, otp string) (apiclient.OTPResult, error)
	SendMobileOTP(ctx context.Context, phone string) (string, error)
	VerifyMobileOTP(ctx context.Context, phone, otp string) (apiclient.OTPResult, error)
	RegisterSendOTP(ctx context.Context, email string) (string, error)
	RegisterVerifyOTP(ctx context.Context, email, otp string) (apiclient.OTPResult, error)
	PasswordResetRequest(ctx context.Context, email string) (string, error)
	PasswordResetVerify(ctx context.Context, email, otp string) (apiclient.OTPResult, error)
	PasswordResetConfirm(ctx context.Context, email, otp, newPassword, confirmPassword string) (string, error)
}

// Funcs adapts a pair of functions to Backend.
type Funcs struct {
	SendFunc   func(ctx context.Context, identifier string) (string, error)
	VerifyFunc func(ctx context.Context, identifier, code string) (apiclient.OTPResult, error)
}

func (f Funcs) Send(ctx context.Context, identifier string) (string, error) {
	return f.SendFunc(ctx, identifier)
}

func (f Funcs) Verify(ctx context.Context, identifier, code string) (apiclient.OTPResult, error) {
	return f.VerifyFunc(ctx, identifier, code)
}

// BackendFor binds c's endpoints for v.
func BackendFor(c Client, v Variant) (Backend, error) {
	switch v {
	case VariantEmail:
		return Funcs{SendFunc: c.SendEmailOTP, VerifyFunc: c.VerifyEmailOTP}, nil
	case VariantMobile:
		return Funcs{SendFunc: c.SendMobileOTP, VerifyFunc: c.VerifyMobileOTP}, nil
	case VariantRegister:
		return Funcs{SendFunc: c.RegisterSendOTP, VerifyFunc: c.RegisterVerifyOTP}, nil
	case VariantPasswordReset:
		return Funcs{
			SendFunc: func(ctx context.Context, email string) (string, error) {
				msg, err := c.PasswordResetRequest(ctx, email)
				if err == nil && msg == "" {
					msg = "If this email is registered, an OTP has been sent."
				}
				return msg, err
			},
			VerifyFunc: func(ctx context.Context, email, code string) (apiclient.OTPResult, error) {
				res, err := c.PasswordResetVerify(ctx, email, code)
				if err == nil && res.Message == "" {
					res.Message = "OTP verified. Please set your new password."
				}
				return res, err
			},
		}, nil
	}
	return nil, fmt.Errorf("otp: unknown variant %q", v)
}

// ConfirmPasswordReset sets a new password for a verified password-reset flow.
// On success the flow returns to collect.
func ConfirmPasswordReset(ctx context.Context, f *Flow, c Client, newPassword, confirmPassword string) (string, error) {
	if f.Variant() != VariantPasswordReset {
		return "", fmt.Errorf("otp: %s flow cannot reset passwords", f.Variant())
	}
	if newPassword == "" || newPassword != confirmPassword {
		return "", &Error{Code: apierrors.ErrCodeInvalidField, Message: "Passwords do not match."}
	}
	email, code, ok := f.VerifiedCode()
	if !ok {
		return "", ErrNotSent
	}

	msg, err := c.PasswordResetConfirm(ctx, email, code, newPassword, confirmPassword)
	if err != nil {
		return "", &Error{
			Code:    classify(err, apierrors.ErrCodeInvalidField),
			Message: serverMessageOr(err, "Unable to reset password. Please try again."),
			Err:     err,
		}
	}
	f.Reset()
	if msg == "" {
		msg = "Password reset successful. Redirecting to login..."
	}
	return msg, nil
}
