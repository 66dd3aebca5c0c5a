package domain

import "time"

const (
	MaxNoteTitleLength   = 100
	MaxNoteContentLength = 10000
)

type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NoteRequest is the body of both create and update; the original API
// replaces title and content together.
type NoteRequest struct {
	Title   string `json:"title" validate:"required,max=100"`
	Content string `json:"content" validate:"required,max=10000"`
}
