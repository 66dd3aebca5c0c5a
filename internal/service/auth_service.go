package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"hdnotes-server/internal/domain"
	"hdnotes-server/internal/logging"
	"hdnotes-server/internal/mailer"
	"hdnotes-server/internal/repository"
	"hdnotes-server/pkg/hash"
	"hdnotes-server/pkg/jwt"
	"hdnotes-server/pkg/otp"

	"github.com/google/uuid"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	msgInternal       = "Internal server error"
	msgCodeSent       = "OTP sent successfully"
	msgLoginCodeSent  = "OTP sent for login"
	msgSignupComplete = "Sign up successful"
	msgLoginComplete  = "Login successful"
	msgGoogleComplete = "Google login successful"
)

type AuthConfig struct {
	JWTSecret       string
	TokenExpiration time.Duration
	CodeLength      int
	CodeExpiration  time.Duration
}

type AuthOption func(*AuthService)

// WithClock replaces time.Now for code expiry decisions.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		s.now = now
	}
}

// WithIdentityVerifier makes FederatedLogin require a provider ID token
// instead of trusting the identity fields in the request.
func WithIdentityVerifier(v IdentityVerifier) AuthOption {
	return func(s *AuthService) {
		s.verifier = v
	}
}

func WithCodeGenerator(gen func(length int) (string, error)) AuthOption {
	return func(s *AuthService) {
		s.generate = gen
	}
}

type AuthService struct {
	accounts repository.AccountRepository
	sender   mailer.Sender
	verifier IdentityVerifier
	log      logging.Logger
	cfg      AuthConfig
	now      func() time.Time
	generate func(length int) (string, error)
}

func NewAuthService(accounts repository.AccountRepository, sender mailer.Sender, cfg AuthConfig, log logging.Logger, opts ...AuthOption) *AuthService {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = otp.DefaultLength
	}
	if cfg.CodeExpiration <= 0 {
		cfg.CodeExpiration = 5 * time.Minute
	}
	if cfg.TokenExpiration <= 0 {
		cfg.TokenExpiration = 24 * time.Hour
	}

	s := &AuthService{
		accounts: accounts,
		sender:   sender,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
		generate: otp.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestSignupCode creates or refreshes an unverified account and mails it a
// fresh code. A verified account with the same email is a conflict.
func (s *AuthService) RequestSignupCode(ctx context.Context, req *domain.SignupRequest) (*domain.MessageResponse, error) {
	name := strings.TrimSpace(req.Name)
	dob := strings.TrimSpace(req.DOB)
	email := domain.NormalizeEmail(req.Email)

	if name == "" || dob == "" || email == "" {
		return nil, InvalidInput("All fields are required")
	}
	if !emailPattern.MatchString(email) {
		return nil, InvalidInput("Invalid email format")
	}

	code, codeHash, expiresAt, err := s.newCode()
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, email, repository.WithSecrets())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		account = &domain.Account{
			ID:    uuid.New().String(),
			Email: email,
			Name:  name,
			DOB:   dob,
		}
		account.SetPendingCode(codeHash, expiresAt)

		err = s.accounts.Create(ctx, account)
		if errors.Is(err, repository.ErrConflict) {
			// Lost a race with another signup for the same email.
			account, err = s.accounts.FindByEmail(ctx, email, repository.WithSecrets())
			if err != nil {
				return nil, Internal(msgInternal, err)
			}
			if err := s.refreshSignup(ctx, account, name, dob, codeHash, expiresAt); err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, Internal(msgInternal, err)
		}
	case err != nil:
		return nil, Internal(msgInternal, err)
	default:
		if err := s.refreshSignup(ctx, account, name, dob, codeHash, expiresAt); err != nil {
			return nil, err
		}
	}

	if err := s.dispatch(ctx, email, code); err != nil {
		return nil, err
	}

	return &domain.MessageResponse{Message: msgCodeSent}, nil
}

func (s *AuthService) refreshSignup(ctx context.Context, account *domain.Account, name, dob, codeHash string, expiresAt time.Time) error {
	if account.Verified {
		return Conflict("User already exists")
	}

	account.Name = name
	account.DOB = dob
	account.SetPendingCode(codeHash, expiresAt)

	if err := s.accounts.Save(ctx, account); err != nil {
		return Internal(msgInternal, err)
	}
	return nil
}

// RequestLoginCode replaces the pending code of an existing account.
func (s *AuthService) RequestLoginCode(ctx context.Context, req *domain.LoginRequest) (*domain.MessageResponse, error) {
	email := domain.NormalizeEmail(req.Email)
	if email == "" {
		return nil, InvalidInput("Email is required")
	}

	account, err := s.accounts.FindByEmail(ctx, email, repository.WithSecrets())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		return nil, Internal(msgInternal, err)
	}

	if !account.Verified {
		s.log.Warn(ctx, "login code requested for unverified account", "account_id", account.ID)
	}

	code, codeHash, expiresAt, err := s.newCode()
	if err != nil {
		return nil, err
	}

	account.SetPendingCode(codeHash, expiresAt)
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, Internal(msgInternal, err)
	}

	if err := s.dispatch(ctx, email, code); err != nil {
		return nil, err
	}

	return &domain.MessageResponse{Message: msgLoginCodeSent}, nil
}

// VerifyCode consumes the pending code. Expiry is checked before the code
// itself; on success the account is verified, the code cleared and a session
// token issued.
func (s *AuthService) VerifyCode(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.AuthResponse, error) {
	email := domain.NormalizeEmail(req.Email)
	submitted := normalizeCode(strings.TrimSpace(req.OTP.String()), s.cfg.CodeLength)

	if email == "" || submitted == "" {
		return nil, InvalidInput("Email and OTP are required")
	}

	account, err := s.accounts.FindByEmail(ctx, email, repository.WithSecrets())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		return nil, Internal(msgInternal, err)
	}

	if account.PendingCodeExpiry != nil && account.PendingCodeExpired(s.now()) {
		return nil, InvalidInput("OTP has expired")
	}
	if !account.HasPendingCode() {
		return nil, InvalidInput("Invalid OTP")
	}
	if err := hash.Compare(account.PendingCodeHash, submitted); err != nil {
		return nil, InvalidInput("Invalid OTP")
	}

	message := msgLoginComplete
	if !account.Verified {
		message = msgSignupComplete
	}

	account.Verified = true
	account.ClearPendingCode()
	if err := s.accounts.Save(ctx, account); err != nil {
		return nil, Internal(msgInternal, err)
	}

	return s.issue(message, account)
}

// FederatedLogin finds or creates the account linked to an external provider
// identity. Repeating it with the same identity returns the same account.
func (s *AuthService) FederatedLogin(ctx context.Context, req *domain.FederatedLoginRequest) (*domain.AuthResponse, error) {
	ident, err := s.resolveIdentity(ctx, req)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByExternalID(ctx, ident.ID)
	if errors.Is(err, repository.ErrNotFound) {
		account, err = s.createFederated(ctx, ident)
	}
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) {
			return nil, err
		}
		return nil, Internal(msgInternal, err)
	}

	return s.issue(msgGoogleComplete, account)
}

func (s *AuthService) resolveIdentity(ctx context.Context, req *domain.FederatedLoginRequest) (*ExternalIdentity, error) {
	if s.verifier != nil {
		if strings.TrimSpace(req.IDToken) == "" {
			return nil, InvalidInput("idToken is required")
		}
		ident, err := s.verifier.Verify(ctx, req.IDToken)
		if err != nil {
			s.log.Warn(ctx, "federated token rejected", "error", err)
			return nil, Unauthorized("Invalid identity token")
		}
		return ident, nil
	}

	ident := &ExternalIdentity{
		ID:    strings.TrimSpace(req.GoogleID),
		Email: req.Email,
		Name:  strings.TrimSpace(req.Name),
	}
	if ident.ID == "" {
		return nil, InvalidInput("googleId is required")
	}
	return ident, nil
}

func (s *AuthService) createFederated(ctx context.Context, ident *ExternalIdentity) (*domain.Account, error) {
	email := domain.NormalizeEmail(ident.Email)
	if email == "" || !emailPattern.MatchString(email) {
		return nil, InvalidInput("A valid email is required")
	}

	account := &domain.Account{
		ID:         uuid.New().String(),
		Email:      email,
		ExternalID: ident.ID,
		Name:       ident.Name,
		Verified:   true,
	}

	err := s.accounts.Create(ctx, account)
	if errors.Is(err, repository.ErrConflict) {
		// Either a concurrent login created it first, or the email already
		// belongs to a code-based account.
		existing, findErr := s.accounts.FindByExternalID(ctx, ident.ID)
		if findErr == nil {
			return existing, nil
		}
		return nil, Internal(msgInternal, err)
	}
	if err != nil {
		return nil, err
	}

	account.StripSecrets()
	return account, nil
}

// Authenticate resolves a bearer token to the identity it was issued for.
func (s *AuthService) Authenticate(token string) (*domain.Identity, error) {
	if token == "" {
		return nil, Unauthorized("Access denied. No token provided.")
	}

	claims, err := jwt.ValidateToken(token, s.cfg.JWTSecret)
	if err != nil {
		return nil, Unauthorized("Invalid or expired token")
	}

	return &domain.Identity{AccountID: claims.UserID, Email: claims.Email}, nil
}

// GetProfile returns the account summary for a bearer token.
func (s *AuthService) GetProfile(ctx context.Context, token string) (*domain.AccountSummary, error) {
	ident, err := s.Authenticate(token)
	if err != nil {
		return nil, err
	}
	return s.Profile(ctx, ident.AccountID)
}

// Profile returns the account summary for an already authenticated account.
func (s *AuthService) Profile(ctx context.Context, accountID string) (*domain.AccountSummary, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		return nil, Internal(msgInternal, err)
	}

	return account.Summary(), nil
}

func (s *AuthService) newCode() (code, codeHash string, expiresAt time.Time, err error) {
	code, err = s.generate(s.cfg.CodeLength)
	if err != nil {
		return "", "", time.Time{}, Internal(msgInternal, err)
	}

	codeHash, err = hash.Hash(code)
	if err != nil {
		return "", "", time.Time{}, Internal(msgInternal, err)
	}

	return code, codeHash, s.now().Add(s.cfg.CodeExpiration), nil
}

// dispatch sends the code after it has been stored. A failed send leaves the
// stored code in place; the caller simply asks for a new one.
func (s *AuthService) dispatch(ctx context.Context, email, code string) error {
	if err := s.sender.SendOTP(ctx, email, code); err != nil {
		s.log.Error(ctx, "failed to send otp", "error", err)
		return Internal("Failed to send OTP email", err)
	}
	return nil
}

func (s *AuthService) issue(message string, account *domain.Account) (*domain.AuthResponse, error) {
	token, err := jwt.GenerateToken(account.ID, account.Email, s.cfg.TokenExpiration, s.cfg.JWTSecret)
	if err != nil {
		return nil, Internal(msgInternal, err)
	}

	return &domain.AuthResponse{
		Message: message,
		Token:   token,
		User:    account.Summary(),
	}, nil
}

// normalizeCode restores leading zeros lost when a client sends the code as
// a JSON number.
func normalizeCode(code string, length int) string {
	if code == "" || len(code) >= length {
		return code
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return code
		}
	}
	return strings.Repeat("0", length-len(code)) + code
}
