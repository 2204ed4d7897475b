package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veya/storefront/internal/apiclient"
	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/otp"
	"github.com/veya/storefront/pkg/responders"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type meResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          *apiclient.User `json:"user,omitempty"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "Please enter your username and password")
		return
	}

	user, err := s.API.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if status := apiclient.StatusOf(err); status == http.StatusBadRequest || status == http.StatusUnauthorized {
			log := logger.FromContext(r.Context())
			log.Info().Msg("auth.login.rejected")
			apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidCredentials, messageOr(err, "Invalid username or password"))
			return
		}
		writeError(w, r, err, "Login failed. Please try again.")
		return
	}

	s.SetUser(&user)
	log := logger.FromContext(r.Context())
	log.Info().Int64("user_id", user.ID).Msg("auth.login.succeeded")
	s.Notifier.Success("Welcome back, " + displayName(user) + "!")
	responders.OK(w, meResponse{Authenticated: true, User: &user})
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	var req apiclient.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "Please fill in all required fields")
		return
	}

	user, err := s.API.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "Registration failed. Please try again.")
		return
	}

	s.OTP(otp.VariantRegister).Reset()
	s.SetUser(&user)
	log := logger.FromContext(r.Context())
	log.Info().Int64("user_id", user.ID).Msg("auth.register.succeeded")
	s.Notifier.Success("Account created successfully!")
	responders.JSON(w, http.StatusCreated, meResponse{Authenticated: true, User: &user})
}

// logout always clears the local identity, even if the backend call fails.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if err := s.API.Logout(r.Context()); err != nil && !errors.Is(err, apiclient.ErrUnauthenticated) {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Msg("auth.logout.failed")
	}
	s.SetUser(nil)
	_ = s.Checkout.Reset()
	s.Notifier.Info("Logged out successfully")
	responders.OK(w, meResponse{})
}

// me reports the signed-in user. A guest is not an error.
func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if u := s.User(); u != nil {
		responders.OK(w, meResponse{Authenticated: true, User: u})
		return
	}
	user, err := s.API.Me(r.Context())
	if errors.Is(err, apiclient.ErrUnauthenticated) {
		responders.OK(w, meResponse{})
		return
	}
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	s.SetUser(&user)
	responders.OK(w, meResponse{Authenticated: true, User: &user})
}

type profileRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// updateMe saves profile edits and refreshes the session's user.
func (h *handlers) updateMe(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Email == nil && req.FirstName == nil && req.LastName == nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "Nothing to update")
		return
	}

	user, err := s.API.UpdateMe(r.Context(), apiclient.ProfileUpdate{
		Email:     trimmed(req.Email),
		FirstName: trimmed(req.FirstName),
		LastName:  trimmed(req.LastName),
	})
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthenticated) {
			s.SetUser(nil)
		}
		_, text, _ := classifyError(err, "Failed to update profile. Please try again.")
		s.Notifier.Error(text)
		writeError(w, r, err, "Failed to update profile. Please try again.")
		return
	}

	s.SetUser(&user)
	log := logger.FromContext(r.Context())
	log.Info().Int64("user_id", user.ID).Msg("profile.updated")
	s.Notifier.Success("Profile updated successfully!")
	responders.OK(w, meResponse{Authenticated: true, User: &user})
}

func trimmed(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func displayName(u apiclient.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

type newsletterRequest struct {
	Email string `json:"email"`
}

// subscribeNewsletter surfaces backend failures unless the deployment asks
// for them to be masked.
func (h *handlers) subscribeNewsletter(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	var req newsletterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, r, errMissingEmail, "")
		return
	}

	msg, err := s.API.SubscribeNewsletter(r.Context(), email)
	if err != nil {
		if !h.cfg.Marketing.MaskNewsletterErrors {
			_, text, _ := classifyError(err, "Subscription failed. Please try again.")
			s.Notifier.Error(text)
			writeError(w, r, err, "Subscription failed. Please try again.")
			return
		}
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).
			Str("email", logger.RedactEmail(email)).
			Msg("newsletter.subscribe.masked_failure")
		msg = ""
	}
	if msg == "" {
		msg = "Thank you for subscribing!"
	}
	s.Notifier.Success(msg)
	responders.OK(w, map[string]any{"message": msg})
}

func (h *handlers) requestBulkOrder(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	var req apiclient.BulkOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" ||
		strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Quantity) == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "Please fill in all required fields")
		return
	}

	msg, err := s.API.RequestBulkOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err, "Failed to submit request. Please try again.")
		return
	}
	if msg == "" {
		msg = "Thank you! We'll contact you shortly."
	}
	s.Notifier.Success(msg)
	responders.OK(w, map[string]any{"message": msg})
}

// notifications drains the visitor's active toasts.
func (h *handlers) notifications(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	responders.OK(w, map[string]any{"notifications": s.Notifier.Drain()})
}

func (h *handlers) dismissNotification(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if !s.Notifier.Dismiss(chi.URLParam(r, "id")) {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeResourceNotFound, "notification not found")
		return
	}
	responders.NoContent(w)
}
