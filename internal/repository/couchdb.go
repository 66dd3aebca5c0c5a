package repository

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kivik/kivik/v4"
)

const (
	docTypeAccount    = "account"
	docTypeEmailClaim = "email_claim"
	docTypeExtIDClaim = "external_id_claim"
	docTypeNote       = "note"
)

const (
	notesIndexDDoc = "notes-by-owner"
	notesIndexName = "doc_type-owner_id-created_at"

	// listPageSize bounds one _find round trip. CouchDB applies a limit of
	// 25 when none is sent.
	listPageSize = 200
)

// EnsureCouchDB creates the database and the Mango index used to list notes
// by owner if they do not exist yet.
func EnsureCouchDB(ctx context.Context, client *kivik.Client, dbName string) (created bool, err error) {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil && kivik.HTTPStatus(err) != http.StatusPreconditionFailed {
			return false, fmt.Errorf("failed to create database: %w", err)
		}
		created = true
	}

	index := map[string]interface{}{
		"fields": []string{"doc_type", "owner_id", "created_at"},
	}
	if err := client.DB(dbName).CreateIndex(ctx, notesIndexDDoc, notesIndexName, index); err != nil {
		return created, fmt.Errorf("failed to create notes index: %w", err)
	}

	return created, nil
}

func isNotFound(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusConflict
}
