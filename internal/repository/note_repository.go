package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"hdnotes-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

type couchNoteRepository struct {
	db      *kivik.DB
	timeout time.Duration
}

type noteDoc struct {
	ID        string    `json:"_id"`
	Rev       string    `json:"_rev,omitempty"`
	DocType   string    `json:"doc_type"`
	NoteID    string    `json:"note_id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewNoteRepository(client *kivik.Client, dbName string, timeout time.Duration) NoteRepository {
	return &couchNoteRepository{
		db:      client.DB(dbName),
		timeout: timeout,
	}
}

func noteDocID(id string) string { return "note:" + id }

func (r *couchNoteRepository) Create(ctx context.Context, note *domain.Note) error {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	now := time.Now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now

	doc := toNoteDoc(note)
	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		if isConflict(err) {
			return fmt.Errorf("note %s: %w", note.ID, ErrConflict)
		}
		return fmt.Errorf("failed to create note: %w", err)
	}

	return nil
}

func (r *couchNoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromNoteDoc(doc), nil
}

func (r *couchNoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Note, error) {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	notes := make([]*domain.Note, 0)
	bookmark := ""
	for {
		page, next, err := r.listPage(ctx, ownerID, bookmark)
		if err != nil {
			return nil, err
		}
		notes = append(notes, page...)
		// _find caps every response, so keep following the bookmark until a
		// short page comes back.
		if len(page) < listPageSize || next == "" || next == bookmark {
			break
		}
		bookmark = next
	}

	SortNewestFirst(notes)
	return notes, nil
}

func (r *couchNoteRepository) listPage(ctx context.Context, ownerID, bookmark string) ([]*domain.Note, string, error) {
	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": docTypeNote,
			"owner_id": ownerID,
		},
		"sort": []map[string]string{
			{"doc_type": "desc"},
			{"owner_id": "desc"},
			{"created_at": "desc"},
		},
		"use_index": []string{notesIndexDDoc, notesIndexName},
		"limit":     listPageSize,
	}
	if bookmark != "" {
		query["bookmark"] = bookmark
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*domain.Note, 0)
	for rows.Next() {
		var doc noteDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, "", fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, fromNoteDoc(&doc))
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("failed to list notes: %w", err)
	}

	var next string
	if meta, err := rows.Metadata(); err == nil {
		next = meta.Bookmark
	}
	return notes, next, nil
}

func (r *couchNoteRepository) Save(ctx context.Context, note *domain.Note) error {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	existing, err := r.get(ctx, note.ID)
	if err != nil {
		return err
	}

	Touch(&note.UpdatedAt)
	doc := toNoteDoc(note)
	doc.Rev = existing.Rev
	doc.OwnerID = existing.OwnerID
	doc.CreatedAt = existing.CreatedAt

	if _, err := r.db.Put(ctx, doc.ID, doc); err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	return nil
}

func (r *couchNoteRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := WithTimeout(ctx, r.timeout)
	defer cancel()

	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := r.db.Delete(ctx, doc.ID, doc.Rev); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("note %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete note: %w", err)
	}

	return nil
}

func (r *couchNoteRepository) get(ctx context.Context, id string) (*noteDoc, error) {
	var doc noteDoc
	if err := r.db.Get(ctx, noteDocID(id)).ScanDoc(&doc); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return &doc, nil
}

// SortNewestFirst orders by creation time descending, id breaking ties so the
// order is stable across backends.
func SortNewestFirst(notes []*domain.Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].ID > notes[j].ID
		}
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
}

func toNoteDoc(n *domain.Note) *noteDoc {
	return &noteDoc{
		ID:        noteDocID(n.ID),
		DocType:   docTypeNote,
		NoteID:    n.ID,
		OwnerID:   n.OwnerID,
		Title:     n.Title,
		Content:   n.Content,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func fromNoteDoc(doc *noteDoc) *domain.Note {
	return &domain.Note{
		ID:        doc.NoteID,
		OwnerID:   doc.OwnerID,
		Title:     doc.Title,
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
