package handler

import (
	"context"
	"net/http"

	"hdnotes-server/internal/domain"
	"hdnotes-server/internal/logging"
	"hdnotes-server/internal/middleware"
	"hdnotes-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

type AuthService interface {
	RequestSignupCode(ctx context.Context, req *domain.SignupRequest) (*domain.MessageResponse, error)
	RequestLoginCode(ctx context.Context, req *domain.LoginRequest) (*domain.MessageResponse, error)
	VerifyCode(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.AuthResponse, error)
	FederatedLogin(ctx context.Context, req *domain.FederatedLoginRequest) (*domain.AuthResponse, error)
	Profile(ctx context.Context, accountID string) (*domain.AccountSummary, error)
}

type AuthHandler struct {
	authService AuthService
	validator   *validator.Validate
	log         logging.Logger
}

func NewAuthHandler(authService AuthService, log logging.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   newValidator(),
		log:         log,
	}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, validationMessage(err))
		return
	}

	resp, err := h.authService.RequestSignupCode(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Message(w, http.StatusOK, resp.Message)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, validationMessage(err))
		return
	}

	resp, err := h.authService.RequestLoginCode(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Message(w, http.StatusOK, resp.Message)
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, validationMessage(err))
		return
	}

	resp, err := h.authService.VerifyCode(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, resp)
}

func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req domain.FederatedLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, validationMessage(err))
		return
	}

	resp, err := h.authService.FederatedLogin(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, resp)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	if userID == "" {
		response.Unauthorized(w, "Access denied. No token provided.")
		return
	}

	profile, err := h.authService.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, profile)
}
