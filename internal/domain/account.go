package domain

import (
	"strings"
	"time"
)

// Account is the persisted identity. The credential fields carry json:"-" so
// an Account can never be serialized to a client by accident; use Summary.
type Account struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	ExternalID        string     `json:"-"`
	PasswordHash      string     `json:"-"`
	PendingCodeHash   string     `json:"-"`
	PendingCodeExpiry *time.Time `json:"-"`
	Verified          bool       `json:"verified"`
	Name              string     `json:"name,omitempty"`
	DOB               string     `json:"dob,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type AccountSummary struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		ID:        a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Verified:  a.Verified,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// SetPendingCode stores the hash and expiry together.
func (a *Account) SetPendingCode(codeHash string, expiresAt time.Time) {
	a.PendingCodeHash = codeHash
	a.PendingCodeExpiry = &expiresAt
}

func (a *Account) ClearPendingCode() {
	a.PendingCodeHash = ""
	a.PendingCodeExpiry = nil
}

func (a *Account) HasPendingCode() bool {
	return a.PendingCodeHash != "" && a.PendingCodeExpiry != nil
}

// PendingCodeExpired reports whether the pending code is unusable at now.
// An account without a pending code is treated as expired.
func (a *Account) PendingCodeExpired(now time.Time) bool {
	if a.PendingCodeExpiry == nil {
		return true
	}
	return !now.Before(*a.PendingCodeExpiry)
}

// StripSecrets clears every field excluded from default reads.
func (a *Account) StripSecrets() {
	a.PasswordHash = ""
	a.ClearPendingCode()
}

// Identity is what a verified session token resolves to.
type Identity struct {
	AccountID string `json:"id"`
	Email     string `json:"email"`
}
