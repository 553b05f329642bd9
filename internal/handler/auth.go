package handler

import (
	"log/slog"
	"net/http"

	"github.com/templui/refinekit/internal/ctxkeys"
	"github.com/templui/refinekit/internal/model"
	"github.com/templui/refinekit/internal/service"
)

type AuthHandler struct {
	authService  *service.AuthService
	resetService *service.PasswordResetService
	otpService   *service.OTPService
}

func NewAuthHandler(authService *service.AuthService, resetService *service.PasswordResetService, otpService *service.OTPService) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		resetService: resetService,
		otpService:   otpService,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type resetRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.authService.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.startSession(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.startSession(w, r, http.StatusOK, user)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, status int, user *model.User) {
	token, err := h.authService.StartSession(w, user)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "session started", "user_id", user.ID)
	writeJSON(w, status, map[string]any{
		"success": true,
		"token":   token,
		"user":    user.Public(),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authService.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := ctxkeys.User(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user.Public(),
	})
}

// ForgotPassword always answers the same way, registered email or not.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.resetService.Request(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	body := map[string]any{
		"success": true,
		"message": service.ResetRequestMessage,
	}
	if result.Token != "" {
		body["token"] = result.Token
		body["reset_url"] = result.ResetURL
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *AuthHandler) VerifyResetToken(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = h.resetService.Verify(r.Context(), req.Token, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	err = h.resetService.Consume(r.Context(), req.Token, req.Email, req.NewPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": service.ResetCompleteMessage,
	})
}

func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.otpService.RequestOTP(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    result.Message,
		"expires_in": result.ExpiresIn,
	})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.otpService.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    result.Message,
		"temp_token": result.TempToken,
		"expires_in": result.ExpiresIn,
	})
}
