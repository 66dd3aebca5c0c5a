package repository

import (
	"context"
	"errors"
	"time"

	"hdnotes-server/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// AccountRepository is the credential store. Reads strip the password hash
// and pending code unless WithSecrets is passed. Save persists the whole
// record, so callers that mutate and save must have read WithSecrets.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	FindByEmail(ctx context.Context, email string, opts ...ReadOption) (*domain.Account, error)
	FindByExternalID(ctx context.Context, externalID string, opts ...ReadOption) (*domain.Account, error)
	FindByID(ctx context.Context, id string, opts ...ReadOption) (*domain.Account, error)
	Save(ctx context.Context, account *domain.Account) error
}

type NoteRepository interface {
	Create(ctx context.Context, note *domain.Note) error
	FindByID(ctx context.Context, id string) (*domain.Note, error)
	// ListByOwner returns the owner's notes, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error)
	Save(ctx context.Context, note *domain.Note) error
	Delete(ctx context.Context, id string) error
}

type ReadOptions struct {
	IncludeSecrets bool
}

type ReadOption func(*ReadOptions)

func WithSecrets() ReadOption {
	return func(o *ReadOptions) {
		o.IncludeSecrets = true
	}
}

func ApplyReadOptions(opts []ReadOption) ReadOptions {
	var o ReadOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTimeout bounds a single store call. A non-positive d leaves ctx as is.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Touch is the explicit replacement for a pre-save hook: every mutating
// store call stamps UpdatedAt itself.
func Touch(updatedAt *time.Time) {
	*updatedAt = time.Now().UTC()
}
