package service

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/idtoken"
)

// ExternalIdentity is what a federated provider vouches for.
type ExternalIdentity struct {
	ID    string
	Email string
	Name  string
}

type IdentityVerifier interface {
	Verify(ctx context.Context, rawToken string) (*ExternalIdentity, error)
}

// GoogleVerifier checks Google-issued ID tokens against the configured
// OAuth client id.
type GoogleVerifier struct {
	clientID  string
	validator *idtoken.Validator
}

func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is required")
	}

	v, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create google token validator: %w", err)
	}

	return &GoogleVerifier{clientID: clientID, validator: v}, nil
}

func (g *GoogleVerifier) Verify(ctx context.Context, rawToken string) (*ExternalIdentity, error) {
	payload, err := g.validator.Validate(ctx, rawToken, g.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid google id token: %w", err)
	}
	return identityFromClaims(payload.Subject, payload.Claims)
}

func identityFromClaims(subject string, claims map[string]interface{}) (*ExternalIdentity, error) {
	if subject == "" {
		return nil, errors.New("id token has no subject")
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, errors.New("id token has no email")
	}
	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return nil, errors.New("id token email is not verified")
	}

	name, _ := claims["name"].(string)
	return &ExternalIdentity{ID: subject, Email: email, Name: name}, nil
}
