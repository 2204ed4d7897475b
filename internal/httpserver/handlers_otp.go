package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veya/storefront/internal/otp"
	"github.com/veya/storefront/internal/session"
	"github.com/veya/storefront/pkg/responders"
)

type sendOTPRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type verifyOTPRequest struct {
	OTP string `json:"otp"`
}

type passwordResetConfirmRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// otpFlow resolves the {variant} URL parameter against the session.
func otpFlow(r *http.Request, s *session.Session) (*otp.Flow, bool) {
	v, ok := otp.ParseVariant(chi.URLParam(r, "variant"))
	if !ok {
		return nil, false
	}
	f := s.OTP(v)
	return f, f != nil
}

func (h *handlers) sendOTP(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	flow, ok := otpFlow(r, s)
	if !ok {
		writeError(w, r, errUnknownVariant, "")
		return
	}
	var req sendOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	identifier := req.Email
	if flow.Variant() == otp.VariantMobile {
		identifier = req.Phone
	}

	status, err := flow.RequestCode(r.Context(), identifier)
	if err != nil {
		writeStateError(w, r, err, otp.MsgSendFailed, "otp", status)
		return
	}
	responders.OK(w, status)
}

// verifyOTP checks a code. A reward coupon from a promotional flow is
// announced as a toast as well as returned.
func (h *handlers) verifyOTP(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	flow, ok := otpFlow(r, s)
	if !ok {
		writeError(w, r, errUnknownVariant, "")
		return
	}
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	status, err := flow.VerifyCode(r.Context(), req.OTP)
	if err != nil {
		writeStateError(w, r, err, otp.MsgVerifyFailed, "otp", status)
		return
	}
	if status.Reward != nil && status.Reward.Code != "" {
		s.Notifier.Success("Verified! Your coupon code is " + status.Reward.Code)
	}
	responders.OK(w, status)
}

func (h *handlers) otpStatus(w http.ResponseWriter, r *http.Request) {
	flow, ok := otpFlow(r, sessionFrom(r.Context()))
	if !ok {
		writeError(w, r, errUnknownVariant, "")
		return
	}
	responders.OK(w, flow.Status())
}

// resetOTP lets the visitor change the email or phone they entered.
func (h *handlers) resetOTP(w http.ResponseWriter, r *http.Request) {
	flow, ok := otpFlow(r, sessionFrom(r.Context()))
	if !ok {
		writeError(w, r, errUnknownVariant, "")
		return
	}
	flow.Reset()
	responders.OK(w, flow.Status())
}

func (h *handlers) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	var req passwordResetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	flow := s.OTP(otp.VariantPasswordReset)
	msg, err := otp.ConfirmPasswordReset(r.Context(), flow, s.API, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		writeStateError(w, r, err, "Unable to reset password. Please try again.", "otp", flow.Status())
		return
	}
	s.Notifier.Success(msg)
	responders.OK(w, map[string]any{"message": msg, "redirect": "/login"})
}

// popup reports whether the marketing OTP dialog is due on the current page.
// The page sends a fresh page id on every load.
func (h *handlers) popup(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	pageID := strings.TrimSpace(r.URL.Query().Get("page"))
	if pageID == "" {
		pageID = "default"
	}
	responders.OK(w, s.Popup.Poll(pageID))
}
