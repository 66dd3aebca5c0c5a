package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hdnotes-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// CouchDB has no secondary unique indexes, so uniqueness of email and
// external id is enforced with claim documents keyed by the value itself.
// Creating a claim that already exists fails with 409.
type couchAccountRepository struct {
	db      *kivik.DB
	timeout time.Duration
}

type accountDoc struct {
	ID                string     `json:"_id"`
	Rev               string     `json:"_rev,omitempty"`
	DocType           string     `json:"doc_type"`
	AccountID         string     `json:"account_id"`
	Email             string     `json:"email"`
	ExternalID        string     `json:"external_id,omitempty"`
	PasswordHash      string     `json:"password_hash,omitempty"`
	PendingCodeHash   string     `json:"pending_code_hash,omitempty"`
	PendingCodeExpiry *time.Time `json:"pending_code_expiry,omitempty"`
	Verified          bool       `json:"verified"`
	Name              string     `json:"name,omitempty"`
	DOB               string     `json:"dob,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type claimDoc struct {
	ID        string    `json:"_id"`
	Rev       string    `json:"_rev,omitempty"`
	DocType   string    `json:"doc_type"`
	AccountID string    `json:"account_id"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// staleClaimAfter is how old a claim without an account must be before
// another create may take it over. Younger claims may belong to a create
// that has not written its account yet.
const staleClaimAfter = 2 * time.Minute

func NewAccountRepository(client *kivik.Client, dbName string, timeout time.Duration) AccountRepository {
	return &couchAccountRepository{
		db:      client.DB(dbName),
		timeout: timeout,
	}
}

func accountDocID(id string) string       { return "account:" + id }
func emailClaimID(email string) string    { return "email:" + email }
func externalClaimID(extID string) string { return "extid:" + extID }

func (r *couchAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	account.Email = domain.NormalizeEmail(account.Email)
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	emailClaim := emailClaimID(account.Email)
	if err := r.claim(ctx, emailClaim, docTypeEmailClaim, account.ID); err != nil {
		return err
	}

	if account.ExternalID != "" {
		if err := r.claim(ctx, externalClaimID(account.ExternalID), docTypeExtIDClaim, account.ID); err != nil {
			r.release(ctx, emailClaim, account.ID)
			return err
		}
	}

	doc := toAccountDoc(account)
	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		r.release(ctx, emailClaim, account.ID)
		if account.ExternalID != "" {
			r.release(ctx, externalClaimID(account.ExternalID), account.ID)
		}
		if isConflict(err) {
			return fmt.Errorf("account %s: %w", account.ID, ErrConflict)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

func (r *couchAccountRepository) FindByEmail(ctx context.Context, email string, opts ...ReadOption) (*domain.Account, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.findByClaim(ctx, emailClaimID(domain.NormalizeEmail(email)), ApplyReadOptions(opts))
}

func (r *couchAccountRepository) FindByExternalID(ctx context.Context, externalID string, opts ...ReadOption) (*domain.Account, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.findByClaim(ctx, externalClaimID(externalID), ApplyReadOptions(opts))
}

func (r *couchAccountRepository) FindByID(ctx context.Context, id string, opts ...ReadOption) (*domain.Account, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromAccountDoc(doc, ApplyReadOptions(opts)), nil
}

func (r *couchAccountRepository) Save(ctx context.Context, account *domain.Account) error {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	existing, err := r.get(ctx, account.ID)
	if err != nil {
		return err
	}

	if account.ExternalID != existing.ExternalID && account.ExternalID != "" {
		if err := r.claim(ctx, externalClaimID(account.ExternalID), docTypeExtIDClaim, account.ID); err != nil {
			return err
		}
		if existing.ExternalID != "" {
			r.release(ctx, externalClaimID(existing.ExternalID), account.ID)
		}
	}

	Touch(&account.UpdatedAt)
	doc := toAccountDoc(account)
	doc.Rev = existing.Rev
	// Email is the claim key and stays fixed for the life of the account.
	doc.Email = existing.Email

	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	return nil
}

func (r *couchAccountRepository) get(ctx context.Context, id string) (*accountDoc, error) {
	var doc accountDoc
	if err := r.db.Get(ctx, accountDocID(id)).ScanDoc(&doc); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return &doc, nil
}

func (r *couchAccountRepository) findByClaim(ctx context.Context, claimID string, o ReadOptions) (*domain.Account, error) {
	var claim claimDoc
	if err := r.db.Get(ctx, claimID).ScanDoc(&claim); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("account %s: %w", claimID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query account claim: %w", err)
	}

	doc, err := r.get(ctx, claim.AccountID)
	if err != nil {
		return nil, err
	}
	return fromAccountDoc(doc, o), nil
}

func (r *couchAccountRepository) claim(ctx context.Context, claimID, docType, accountID string) error {
	doc := claimDoc{
		ID:        claimID,
		DocType:   docType,
		AccountID: accountID,
		ClaimedAt: time.Now().UTC(),
	}

	_, err := r.db.Put(ctx, claimID, doc)
	if isConflict(err) {
		existing, stale := r.staleClaim(ctx, claimID)
		if !stale {
			return fmt.Errorf("%s: %w", claimID, ErrConflict)
		}
		doc.Rev = existing.Rev
		_, err = r.db.Put(ctx, claimID, doc)
		if isConflict(err) {
			return fmt.Errorf("%s: %w", claimID, ErrConflict)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to claim %s: %w", claimID, err)
	}
	return nil
}

// staleClaim reports whether the claim was left behind by a create that
// never wrote its account.
func (r *couchAccountRepository) staleClaim(ctx context.Context, claimID string) (*claimDoc, bool) {
	var existing claimDoc
	if err := r.db.Get(ctx, claimID).ScanDoc(&existing); err != nil {
		return nil, false
	}
	if time.Since(existing.ClaimedAt) < r.claimGrace() {
		return nil, false
	}
	if _, err := r.get(ctx, existing.AccountID); !errors.Is(err, ErrNotFound) {
		return nil, false
	}
	return &existing, true
}

func (r *couchAccountRepository) claimGrace() time.Duration {
	if grace := 2 * r.timeout; grace > staleClaimAfter {
		return grace
	}
	return staleClaimAfter
}

// release drops a claim held by accountID. It is best effort.
func (r *couchAccountRepository) release(ctx context.Context, claimID, accountID string) {
	var claim claimDoc
	if err := r.db.Get(ctx, claimID).ScanDoc(&claim); err != nil || claim.AccountID != accountID {
		return
	}
	r.db.Delete(ctx, claimID, claim.Rev)
}

func toAccountDoc(a *domain.Account) *accountDoc {
	return &accountDoc{
		ID:                accountDocID(a.ID),
		DocType:           docTypeAccount,
		AccountID:         a.ID,
		Email:             a.Email,
		ExternalID:        a.ExternalID,
		PasswordHash:      a.PasswordHash,
		PendingCodeHash:   a.PendingCodeHash,
		PendingCodeExpiry: a.PendingCodeExpiry,
		Verified:          a.Verified,
		Name:              a.Name,
		DOB:               a.DOB,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func fromAccountDoc(doc *accountDoc, o ReadOptions) *domain.Account {
	a := &domain.Account{
		ID:                doc.AccountID,
		Email:             doc.Email,
		ExternalID:        doc.ExternalID,
		PasswordHash:      doc.PasswordHash,
		PendingCodeHash:   doc.PendingCodeHash,
		PendingCodeExpiry: doc.PendingCodeExpiry,
		Verified:          doc.Verified,
		Name:              doc.Name,
		DOB:               doc.DOB,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
	if !o.IncludeSecrets {
		a.StripSecrets()
	}
	return a
}
