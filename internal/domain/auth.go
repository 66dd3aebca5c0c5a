package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Code is a submitted one-time passcode. Clients send it either as a JSON
// string or as a JSON number; both decode to the same string form.
type Code string

func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("otp must be a string or a number: %w", err)
	}
	*c = Code(n.String())
	return nil
}

func (c Code) String() string {
	return string(c)
}

type SignupRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	DOB   string `json:"dob" validate:"required,max=32"`
	Email string `json:"email" validate:"required,email,max=254"`
}

type LoginRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	OTP   Code   `json:"otp" validate:"required,max=32"`
}

// FederatedLoginRequest carries either a provider ID token or, when no
// verifier is configured, the provider identity fields directly.
type FederatedLoginRequest struct {
	GoogleID string `json:"googleId" validate:"required_without=IDToken,max=255"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Name     string `json:"name" validate:"max=100"`
	IDToken  string `json:"idToken"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type AuthResponse struct {
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    *AccountSummary `json:"user"`
}
