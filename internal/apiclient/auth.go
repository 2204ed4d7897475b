package apiclient

import (
	"context"
	"net/http"
	"strings"
)

// Login starts a backend session; the session cookie lands in this client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (User, error) {
	return call[User](ctx, c, "auth.login", http.MethodPost, "/auth/login/", map[string]string{
		"username": username,
		"password": password,
	})
}

// Register creates an account. The backend requires a verified registration OTP first.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	return call[User](ctx, c, "auth.register", http.MethodPost, "/auth/register/", req)
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, "auth.logout", http.MethodPost, "/auth/logout/", nil, struct{}{})
	return err
}

// Me returns the signed-in user or ErrUnauthenticated.
func (c *Client) Me(ctx context.Context) (User, error) {
	return call[User](ctx, c, "users.me", http.MethodGet, "/users/me/", nil)
}

// UpdateMe partially updates the signed-in user's profile. Username and
// join date are read-only on the backend.
func (c *Client) UpdateMe(ctx context.Context, upd ProfileUpdate) (User, error) {
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		upd.Email = &email
	}
	return call[User](ctx, c, "users.me.update", http.MethodPatch, "/users/me/", upd)
}

type message struct {
	Message string `json:"message"`
}

func (c *Client) postMessage(ctx context.Context, op, path string, payload any) (string, error) {
	m, err := call[message](ctx, c, op, http.MethodPost, path, payload)
	return m.Message, err
}

// SendEmailOTP requests a promotional code by email.
func (c *Client) SendEmailOTP(ctx context.Context, email string) (string, error) {
	return c.postMessage(ctx, "otp.email.send", "/auth/email/send-otp/", map[string]string{"email": email})
}

// VerifyEmailOTP verifies a promotional email code and may unlock a reward coupon.
func (c *Client) VerifyEmailOTP(ctx context.Context, email, otp string) (OTPResult, error) {
	return call[OTPResult](ctx, c, "otp.email.verify", http.MethodPost, "/auth/email/verify-otp/", map[string]string{"email": email, "otp": otp})
}

// SendMobileOTP requests a code by SMS.
func (c *Client) SendMobileOTP(ctx context.Context, phone string) (string, error) {
	return c.postMessage(ctx, "otp.mobile.send", "/auth/mobile/send-otp/", map[string]string{"phone": phone})
}

// VerifyMobileOTP verifies an SMS code.
func (c *Client) VerifyMobileOTP(ctx context.Context, phone, otp string) (OTPResult, error) {
	return call[OTPResult](ctx, c, "otp.mobile.verify", http.MethodPost, "/auth/mobile/verify-otp/", map[string]string{"phone": phone, "otp": otp})
}

// RegisterSendOTP sends the email verification code that gates registration.
func (c *Client) RegisterSendOTP(ctx context.Context, email string) (string, error) {
	return c.postMessage(ctx, "otp.register.send", "/auth/register/send-otp/", map[string]string{"email": email})
}

// RegisterVerifyOTP verifies the registration code.
func (c *Client) RegisterVerifyOTP(ctx context.Context, email, otp string) (OTPResult, error) {
	return call[OTPResult](ctx, c, "otp.register.verify", http.MethodPost, "/auth/register/verify-otp/", map[string]string{"email": email, "otp": otp})
}

// PasswordResetRequest sends a 6-digit reset code. The backend answers the same
// way whether or not the address is registered.
func (c *Client) PasswordResetRequest(ctx context.Context, email string) (string, error) {
	return c.postMessage(ctx, "password_reset.request", "/auth/password-reset/request/", map[string]string{"email": email})
}

// PasswordResetVerify checks a reset code without consuming it.
func (c *Client) PasswordResetVerify(ctx context.Context, email, otp string) (OTPResult, error) {
	return call[OTPResult](ctx, c, "password_reset.verify", http.MethodPost, "/auth/password-reset/verify/", map[string]string{"email": email, "otp": otp})
}

// PasswordResetConfirm sets the new password.
func (c *Client) PasswordResetConfirm(ctx context.Context, email, otp, newPassword, confirmPassword string) (string, error) {
	return c.postMessage(ctx, "password_reset.confirm", "/auth/password-reset/confirm/", map[string]string{
		"email":            email,
		"otp":              otp,
		"new_password":     newPassword,
		"confirm_password": confirmPassword,
	})
}

// SubscribeNewsletter adds an address to the mailing list.
func (c *Client) SubscribeNewsletter(ctx context.Context, email string) (string, error) {
	return c.postMessage(ctx, "newsletter.subscribe", "/newsletter/subscribe/", map[string]string{"email": email})
}

// RequestBulkOrder submits a wholesale enquiry.
func (c *Client) RequestBulkOrder(ctx context.Context, req BulkOrderRequest) (string, error) {
	return c.postMessage(ctx, "bulk_orders.request", "/bulk-orders/request/", req)
}
