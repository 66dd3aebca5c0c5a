package mongostore

import (
	"context"
	"time"

	"hdnotes-server/internal/domain"
	"hdnotes-server/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// secretsProjection mirrors select:false on the sensitive fields.
var secretsProjection = bson.M{
	"password_hash":       0,
	"pending_code_hash":   0,
	"pending_code_expiry": 0,
}

type accountRecord struct {
	ID                string     `bson:"_id"`
	Email             string     `bson:"email"`
	ExternalID        string     `bson:"external_id,omitempty"`
	PasswordHash      string     `bson:"password_hash,omitempty"`
	PendingCodeHash   string     `bson:"pending_code_hash,omitempty"`
	PendingCodeExpiry *time.Time `bson:"pending_code_expiry,omitempty"`
	Verified          bool       `bson:"verified"`
	Name              string     `bson:"name,omitempty"`
	DOB               string     `bson:"dob,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

type AccountRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

var _ repository.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository(db *mongo.Database, timeout time.Duration) *AccountRepository {
	return &AccountRepository{
		coll:    db.Collection(accountsCollection),
		timeout: timeout,
	}
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	account.Email = domain.NormalizeEmail(account.Email)
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, toAccountRecord(account))
	return mapError(err, "failed to create account")
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string, opts ...repository.ReadOption) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": domain.NormalizeEmail(email)}, opts)
}

func (r *AccountRepository) FindByExternalID(ctx context.Context, externalID string, opts ...repository.ReadOption) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"external_id": externalID}, opts)
}

func (r *AccountRepository) FindByID(ctx context.Context, id string, opts ...repository.ReadOption) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id}, opts)
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	repository.Touch(&account.UpdatedAt)
	rec := toAccountRecord(account)

	// Email is immutable, so it stays out of the $set.
	set := bson.M{
		"verified":   rec.Verified,
		"name":       rec.Name,
		"dob":        rec.DOB,
		"updated_at": rec.UpdatedAt,
	}
	unset := bson.M{}
	setOrUnset(set, unset, "external_id", rec.ExternalID)
	setOrUnset(set, unset, "password_hash", rec.PasswordHash)
	setOrUnset(set, unset, "pending_code_hash", rec.PendingCodeHash)
	if rec.PendingCodeExpiry != nil {
		set["pending_code_expiry"] = *rec.PendingCodeExpiry
	} else {
		unset["pending_code_expiry"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": account.ID}, update)
	if err != nil {
		return mapError(err, "failed to update account")
	}
	if res.MatchedCount == 0 {
		return mapError(mongo.ErrNoDocuments, "account "+account.ID)
	}
	return nil
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M, opts []repository.ReadOption) (*domain.Account, error) {
	ctx, cancel := repository.WithTimeout(ctx, r.timeout)
	defer cancel()

	findOpts := options.FindOne()
	if !repository.ApplyReadOptions(opts).IncludeSecrets {
		findOpts.SetProjection(secretsProjection)
	}

	var rec accountRecord
	if err := r.coll.FindOne(ctx, filter, findOpts).Decode(&rec); err != nil {
		return nil, mapError(err, "failed to find account")
	}
	return fromAccountRecord(&rec), nil
}

func setOrUnset(set, unset bson.M, field, value string) {
	if value != "" {
		set[field] = value
		return
	}
	unset[field] = ""
}

func toAccountRecord(a *domain.Account) *accountRecord {
	return &accountRecord{
		ID:                a.ID,
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

func fromAccountRecord(rec *accountRecord) *domain.Account {
	return &domain.Account{
		ID:                rec.ID,
		Email:             rec.Email,
		ExternalID:        rec.ExternalID,
		PasswordHash:      rec.PasswordHash,
		PendingCodeHash:   rec.PendingCodeHash,
		PendingCodeExpiry: rec.PendingCodeExpiry,
		Verified:          rec.Verified,
		Name:              rec.Name,
		DOB:               rec.DOB,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}
