package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/httputil"
	"github.com/manzil-bh/manzil-backend/internal/logging"
	"github.com/manzil-bh/manzil-backend/internal/middleware"
	"github.com/manzil-bh/manzil-backend/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

const ChallengeCookie = "otp_challenge"

type Handler struct {
	store        Store
	tokens       *TokenService
	mailer       Mailer
	cookieSecure bool
	now          func() time.Time
}

func NewHandler(store Store, tokens *TokenService, mailer Mailer, cookieSecure bool) *Handler {
	return &Handler{
		store:        store,
		tokens:       tokens,
		mailer:       mailer,
		cookieSecure: cookieSecure,
		now:          time.Now,
	}
}

// cookie builds an httpOnly cookie. Cross-site front ends need
// SameSite=None, which browsers only accept on Secure cookies.
func (h *Handler) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	}
	if h.cookieSecure {
		c.SameSite = http.SameSiteNoneMode
	}
	if maxAge < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.store.FindUserByEmail(r.Context(), req.Email)
	if errors.Is(err, db.ErrNotFound) {
		httputil.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)) != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	code, err := GenerateOTP()
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	hash, err := hashOTP(code)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	challenge := &OTPChallenge{
		ChallengeID: uuid.NewString(),
		UserID:      user.UserID,
		CodeHash:    hash,
		ExpiresAt:   h.now().Add(OTPTTL),
	}
	if err := h.store.ReplaceChallenge(r.Context(), challenge); err != nil {
		httputil.Fail(w, r, err)
		return
	}

	if err := h.mailer.SendOTP(r.Context(), user.Email, code); err != nil {
		_ = h.store.DeleteChallenge(r.Context(), challenge.ChallengeID)
		httputil.Fail(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("otp issued", "user_id", user.UserID)
	http.SetCookie(w, h.cookie(ChallengeCookie, challenge.ChallengeID, OTPTTL))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "A login code was sent to your email",
	})
}

type verifyRequest struct {
	OTP string `json:"otp"`
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(ChallengeCookie)
	if err != nil || cookie.Value == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "Login again to request a new code")
		return
	}

	var req verifyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Fail(w, r, err)
		return
	}
	code := strings.TrimSpace(req.OTP)
	if len(code) != OTPDigits {
		httputil.WriteError(w, http.StatusBadRequest, "OTP must be 6 digits")
		return
	}

	ctx := r.Context()
	ch, err := h.store.ClaimAttempt(ctx, cookie.Value, MaxOTPAttempts, h.now())
	if errors.Is(err, db.ErrNotFound) {
		_ = h.store.DeleteChallenge(ctx, cookie.Value)
		http.SetCookie(w, h.cookie(ChallengeCookie, "", -1))
		httputil.WriteError(w, http.StatusUnauthorized, "Code expired, login again")
		return
	}
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	if !checkOTP(ch.CodeHash, code) {
		httputil.WriteError(w, http.StatusUnauthorized, "Invalid code")
		return
	}

	if err := h.store.DeleteChallenge(ctx, ch.ChallengeID); err != nil {
		httputil.Fail(w, r, err)
		return
	}

	user, err := h.store.FindUserByID(ctx, ch.UserID)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	token, _, err := h.tokens.Issue(user.UserID)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}

	http.SetCookie(w, h.cookie(ChallengeCookie, "", -1))
	http.SetCookie(w, h.cookie(middleware.TokenCookie, token, h.tokens.TTL()))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    h.meResponse(r, user),
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie(middleware.TokenCookie, "", -1))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

type MeResponse struct {
	UserID   string  `json:"user_id"`
	Email    string  `json:"email"`
	FullName string  `json:"full_name"`
	Role     string  `json:"role"`
	FirmID   *string `json:"firm_id"`
	FirmName string  `json:"firm_name,omitempty"`
}

func (h *Handler) meResponse(r *http.Request, u *User) MeResponse {
	out := MeResponse{
		UserID:   u.UserID,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
		FirmID:   u.FirmID,
	}
	if u.FirmID != nil {
		if f, err := h.store.FindFirm(r.Context(), *u.FirmID); err == nil {
			out.FirmName = f.Name
		}
	}
	return out
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, err := h.store.FindUserByID(r.Context(), userID)
	if err != nil {
		httputil.Fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.meResponse(r, user))
}
