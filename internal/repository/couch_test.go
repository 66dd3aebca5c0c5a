package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"hdnotes-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/driver"
	"github.com/go-kivik/kivik/v4/mockdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDBName = "hdnotes"

// couchStatus satisfies the status coder kivik.HTTPStatus looks for.
type couchStatus int

func (s couchStatus) Error() string   { return http.StatusText(int(s)) }
func (s couchStatus) HTTPStatus() int { return int(s) }

func newCouchMock(t *testing.T) (*kivik.Client, *mockdb.DB) {
	t.Helper()
	client, mock := mockdb.NewT(t)
	db := mock.NewDB()
	mock.ExpectDB().WithName(testDBName).WillReturn(db)
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
	return client, db
}

// decodeInto round trips a document handed to the driver into v.
func decodeInto(t *testing.T, doc interface{}, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func claimFor(id, accountID string, claimedAt time.Time) claimDoc {
	return claimDoc{
		ID:        id,
		Rev:       "1-claim",
		DocType:   docTypeEmailClaim,
		AccountID: accountID,
		ClaimedAt: claimedAt,
	}
}

func storedAccount(id, email string) accountDoc {
	exp := time.Date(2025, 1, 1, 0, 5, 0, 0, time.UTC)
	return accountDoc{
		ID:                accountDocID(id),
		Rev:               "3-acct",
		DocType:           docTypeAccount,
		AccountID:         id,
		Email:             email,
		PasswordHash:      "pw-hash",
		PendingCodeHash:   "code-hash",
		PendingCodeExpiry: &exp,
		Name:              "Ann",
		DOB:               "1990-04-01",
		CreatedAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCouchAccountRepository_CreateDuplicateEmail(t *testing.T) {
	client, db := newCouchMock(t)
	const claimID = "email:ann@example.com"

	db.ExpectPut().WithDocID(claimID).WillReturnError(couchStatus(http.StatusConflict))
	db.ExpectGet().WithDocID(claimID).
		WillReturn(mockdb.DocumentT(t, claimFor(claimID, "a0", time.Now().Add(-time.Hour))))
	db.ExpectGet().WithDocID("account:a0").
		WillReturn(mockdb.DocumentT(t, storedAccount("a0", "ann@example.com")))

	repo := NewAccountRepository(client, testDBName, time.Second)
	err := repo.Create(context.Background(), &domain.Account{ID: "a1", Email: " Ann@Example.com "})

	assert.ErrorIs(t, err, ErrConflict)
}

func TestCouchAccountRepository_FreshClaimIsNotTakenOver(t *testing.T) {
	client, db := newCouchMock(t)
	const claimID = "email:ann@example.com"

	// The account of a create still in flight does not exist yet.
	db.ExpectPut().WithDocID(claimID).WillReturnError(couchStatus(http.StatusConflict))
	db.ExpectGet().WithDocID(claimID).
		WillReturn(mockdb.DocumentT(t, claimFor(claimID, "a0", time.Now())))

	repo := NewAccountRepository(client, testDBName, time.Second)
	err := repo.Create(context.Background(), &domain.Account{ID: "a1", Email: "ann@example.com"})

	assert.ErrorIs(t, err, ErrConflict)
}

func TestCouchAccountRepository_StaleClaimIsTakenOver(t *testing.T) {
	client, db := newCouchMock(t)
	const claimID = "email:ann@example.com"

	var written claimDoc
	db.ExpectPut().WithDocID(claimID).WillReturnError(couchStatus(http.StatusConflict))
	db.ExpectGet().WithDocID(claimID).
		WillReturn(mockdb.DocumentT(t, claimFor(claimID, "ghost", time.Now().Add(-time.Hour))))
	db.ExpectGet().WithDocID("account:ghost").WillReturnError(couchStatus(http.StatusNotFound))
	db.ExpectPut().WithDocID(claimID).WillExecute(
		func(_ context.Context, _ string, doc interface{}, _ driver.Options) (string, error) {
			decodeInto(t, doc, &written)
			return "2-claim", nil
		})
	db.ExpectPut().WithDocID("account:a1").WillReturn("1-acct")

	repo := NewAccountRepository(client, testDBName, time.Second)
	err := repo.Create(context.Background(), &domain.Account{ID: "a1", Email: "ann@example.com"})

	require.NoError(t, err)
	assert.Equal(t, "1-claim", written.Rev, "takeover must update the existing claim")
	assert.Equal(t, "a1", written.AccountID)
	assert.False(t, written.ClaimedAt.IsZero())
}

func TestCouchAccountRepository_DuplicateExternalIDReleasesEmail(t *testing.T) {
	client, db := newCouchMock(t)
	const emailClaim = "email:ann@example.com"
	const extClaim = "extid:g-1"

	db.ExpectPut().WithDocID(emailClaim).WillReturn("1-email")
	db.ExpectPut().WithDocID(extClaim).WillReturnError(couchStatus(http.StatusConflict))
	db.ExpectGet().WithDocID(extClaim).
		WillReturn(mockdb.DocumentT(t, claimFor(extClaim, "a0", time.Now().Add(-time.Hour))))
	db.ExpectGet().WithDocID("account:a0").
		WillReturn(mockdb.DocumentT(t, storedAccount("a0", "other@example.com")))
	db.ExpectGet().WithDocID(emailClaim).
		WillReturn(mockdb.DocumentT(t, claimFor(emailClaim, "a1", time.Now())))
	db.ExpectDelete().WithDocID(emailClaim).WillReturn("2-email")

	repo := NewAccountRepository(client, testDBName, time.Second)
	err := repo.Create(context.Background(), &domain.Account{
		ID:         "a1",
		Email:      "ann@example.com",
		ExternalID: "g-1",
		Verified:   true,
	})

	assert.ErrorIs(t, err, ErrConflict)
}

func TestCouchAccountRepository_ReleaseLeavesForeignClaim(t *testing.T) {
	client, db := newCouchMock(t)
	const emailClaim = "email:ann@example.com"

	db.ExpectPut().WithDocID(emailClaim).WillReturn("1-email")
	db.ExpectPut().WithDocID("account:a1").WillReturnError(couchStatus(http.StatusInternalServerError))
	// Another account owns the claim by now; no Delete may follow.
	db.ExpectGet().WithDocID(emailClaim).
		WillReturn(mockdb.DocumentT(t, claimFor(emailClaim, "a2", time.Now())))

	repo := NewAccountRepository(client, testDBName, time.Second)
	err := repo.Create(context.Background(), &domain.Account{ID: "a1", Email: "ann@example.com"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestCouchAccountRepository_FindByEmailSecrets(t *testing.T) {
	tests := []struct {
		name        string
		opts        []ReadOption
		wantSecrets bool
	}{
		{name: "default read strips secrets"},
		{name: "WithSecrets keeps them", opts: []ReadOption{WithSecrets()}, wantSecrets: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, db := newCouchMock(t)
			const claimID = "email:ann@example.com"

			db.ExpectGet().WithDocID(claimID).
				WillReturn(mockdb.DocumentT(t, claimFor(claimID, "a1", time.Now())))
			db.ExpectGet().WithDocID("account:a1").
				WillReturn(mockdb.DocumentT(t, storedAccount("a1", "ann@example.com")))

			repo := NewAccountRepository(client, testDBName, time.Second)
			account, err := repo.FindByEmail(context.Background(), "ANN@example.com", tt.opts...)
			require.NoError(t, err)

			assert.Equal(t, "a1", account.ID)
			assert.Equal(t, "Ann", account.Name)
			if tt.wantSecrets {
				assert.Equal(t, "code-hash", account.PendingCodeHash)
				assert.NotNil(t, account.PendingCodeExpiry)
			} else {
				assert.Empty(t, account.PendingCodeHash)
				assert.Empty(t, account.PasswordHash)
				assert.Nil(t, account.PendingCodeExpiry)
			}
		})
	}
}

func TestCouchAccountRepository_StatusMapping(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantNotFound bool
	}{
		{name: "404 is not found", status: http.StatusNotFound, wantNotFound: true},
		{name: "500 is a plain failure", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, db := newCouchMock(t)
			db.ExpectGet().WithDocID("account:nope").WillReturnError(couchStatus(tt.status))

			repo := NewAccountRepository(client, testDBName, time.Second)
			_, err := repo.FindByID(context.Background(), "nope")

			require.Error(t, err)
			assert.Equal(t, tt.wantNotFound, errors.Is(err, ErrNotFound))
		})
	}
}

func TestCouchAccountRepository_SavePinsEmail(t *testing.T) {
	client, db := newCouchMock(t)

	var written accountDoc
	db.ExpectGet().WithDocID("account:a1").
		WillReturn(mockdb.DocumentT(t, storedAccount("a1", "ann@example.com")))
	db.ExpectPut().WithDocID("account:a1").WillExecute(
		func(_ context.Context, _ string, doc interface{}, _ driver.Options) (string, error) {
			decodeInto(t, doc, &written)
			return "4-acct", nil
		})

	repo := NewAccountRepository(client, testDBName, time.Second)
	err := repo.Save(context.Background(), &domain.Account{
		ID:       "a1",
		Email:    "someone-else@example.com",
		Name:     "Ann B",
		Verified: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "3-acct", written.Rev)
	assert.Equal(t, "ann@example.com", written.Email)
	assert.Equal(t, "Ann B", written.Name)
	assert.True(t, written.Verified)
	assert.False(t, written.UpdatedAt.IsZero())
}

func storedNote(id, ownerID string, createdAt time.Time) noteDoc {
	return noteDoc{
		ID:        noteDocID(id),
		Rev:       "2-note",
		DocType:   docTypeNote,
		NoteID:    id,
		OwnerID:   ownerID,
		Title:     "title " + id,
		Content:   "content",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestCouchNoteRepository_SavePinsOwnerAndCreation(t *testing.T) {
	client, db := newCouchMock(t)
	created := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

	var written noteDoc
	db.ExpectGet().WithDocID("note:n1").WillReturn(mockdb.DocumentT(t, storedNote("n1", "u1", created)))
	db.ExpectPut().WithDocID("note:n1").WillExecute(
		func(_ context.Context, _ string, doc interface{}, _ driver.Options) (string, error) {
			decodeInto(t, doc, &written)
			return "3-note", nil
		})

	repo := NewNoteRepository(client, testDBName, time.Second)
	err := repo.Save(context.Background(), &domain.Note{ID: "n1", OwnerID: "u2", Title: "New", Content: "Body"})
	require.NoError(t, err)

	assert.Equal(t, "2-note", written.Rev)
	assert.Equal(t, "u1", written.OwnerID)
	assert.True(t, written.CreatedAt.Equal(created))
	assert.Equal(t, "New", written.Title)
	assert.True(t, written.UpdatedAt.After(created))
}

func TestCouchNoteRepository_Errors(t *testing.T) {
	t.Run("create conflict", func(t *testing.T) {
		client, db := newCouchMock(t)
		db.ExpectPut().WithDocID("note:n1").WillReturnError(couchStatus(http.StatusConflict))

		repo := NewNoteRepository(client, testDBName, time.Second)
		err := repo.Create(context.Background(), &domain.Note{ID: "n1", OwnerID: "u1"})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("delete missing", func(t *testing.T) {
		client, db := newCouchMock(t)
		db.ExpectGet().WithDocID("note:n1").WillReturnError(couchStatus(http.StatusNotFound))

		repo := NewNoteRepository(client, testDBName, time.Second)
		err := repo.Delete(context.Background(), "n1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete existing", func(t *testing.T) {
		client, db := newCouchMock(t)
		db.ExpectGet().WithDocID("note:n1").WillReturn(mockdb.DocumentT(t, storedNote("n1", "u1", time.Now())))
		db.ExpectDelete().WithDocID("note:n1").WillReturn("3-note")

		repo := NewNoteRepository(client, testDBName, time.Second)
		assert.NoError(t, repo.Delete(context.Background(), "n1"))
	})
}

// bookmarkRows adds the paging bookmark CouchDB returns with _find results.
type bookmarkRows struct {
	driver.Rows
	bookmark string
}

func (r bookmarkRows) Bookmark() string { return r.bookmark }

func noteRows(t *testing.T, notes ...noteDoc) *mockdb.Rows {
	t.Helper()
	rows := mockdb.NewRows()
	for _, n := range notes {
		raw, err := json.Marshal(n)
		require.NoError(t, err)
		rows.AddRow(&driver.Row{ID: n.ID, Doc: bytes.NewReader(raw)})
	}
	return rows
}

func TestCouchNoteRepository_ListByOwnerQuery(t *testing.T) {
	client, db := newCouchMock(t)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	var query map[string]interface{}
	db.ExpectFind().WillExecute(
		func(_ context.Context, q interface{}, _ driver.Options) (driver.Rows, error) {
			decodeInto(t, q, &query)
			return noteRows(t,
				storedNote("old", "u1", base),
				storedNote("new", "u1", base.Add(time.Hour)),
			).Final(), nil
		})

	repo := NewNoteRepository(client, testDBName, time.Second)
	notes, err := repo.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, notes, 2)
	assert.Equal(t, "new", notes[0].ID)
	assert.Equal(t, "old", notes[1].ID)

	assert.Equal(t, map[string]interface{}{"doc_type": docTypeNote, "owner_id": "u1"}, query["selector"])
	assert.Equal(t, float64(listPageSize), query["limit"], "an explicit limit avoids the server default of 25")
	assert.Equal(t, []interface{}{
		map[string]interface{}{"doc_type": "desc"},
		map[string]interface{}{"owner_id": "desc"},
		map[string]interface{}{"created_at": "desc"},
	}, query["sort"])
	assert.NotContains(t, query, "bookmark")
}

func TestCouchNoteRepository_ListByOwnerFollowsBookmark(t *testing.T) {
	client, db := newCouchMock(t)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	firstPage := make([]noteDoc, 0, listPageSize)
	for i := 0; i < listPageSize; i++ {
		firstPage = append(firstPage, storedNote(fmt.Sprintf("n%03d", i), "u1", base.Add(time.Duration(i)*time.Minute)))
	}
	newest := storedNote("latest", "u1", base.Add(24*time.Hour))

	var second map[string]interface{}
	db.ExpectFind().WillExecute(
		func(_ context.Context, _ interface{}, _ driver.Options) (driver.Rows, error) {
			return bookmarkRows{Rows: noteRows(t, firstPage...).Final(), bookmark: "page-2"}, nil
		})
	db.ExpectFind().WillExecute(
		func(_ context.Context, q interface{}, _ driver.Options) (driver.Rows, error) {
			decodeInto(t, q, &second)
			return bookmarkRows{Rows: noteRows(t, newest).Final(), bookmark: "page-3"}, nil
		})

	repo := NewNoteRepository(client, testDBName, time.Second)
	notes, err := repo.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "page-2", second["bookmark"])
	require.Len(t, notes, listPageSize+1)
	assert.Equal(t, "latest", notes[0].ID, "a note beyond the first page is still listed first")
}

func TestEnsureCouchDB(t *testing.T) {
	client, mock := mockdb.NewT(t)
	db := mock.NewDB()

	mock.ExpectDBExists().WithName(testDBName).WillReturn(false)
	mock.ExpectCreateDB().WithName(testDBName)
	mock.ExpectDB().WithName(testDBName).WillReturn(db)
	db.ExpectCreateIndex().
		WithDDocID(notesIndexDDoc).
		WithName(notesIndexName).
		WithIndex(map[string]interface{}{
			"fields": []string{"doc_type", "owner_id", "created_at"},
		})

	created, err := EnsureCouchDB(context.Background(), client, testDBName)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}
