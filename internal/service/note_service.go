package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"hdnotes-server/internal/domain"
	"hdnotes-server/internal/logging"
	"hdnotes-server/internal/repository"

	"github.com/google/uuid"
)

// NotePublisher is told about every committed note change. It must not block.
type NotePublisher interface {
	NoteCreated(note *domain.Note)
	NoteUpdated(note *domain.Note)
	NoteDeleted(ownerID, noteID string)
}

type NoteService struct {
	repo      repository.NoteRepository
	publisher NotePublisher
	log       logging.Logger
}

// NewNoteService builds the service. publisher may be nil.
func NewNoteService(repo repository.NoteRepository, publisher NotePublisher, log logging.Logger) *NoteService {
	return &NoteService{
		repo:      repo,
		publisher: publisher,
		log:       log,
	}
}

func (s *NoteService) List(ctx context.Context, ownerID string) ([]*domain.Note, error) {
	notes, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, Internal(msgInternal, err)
	}
	if notes == nil {
		notes = []*domain.Note{}
	}
	return notes, nil
}

func (s *NoteService) Create(ctx context.Context, ownerID string, req *domain.NoteRequest) (*domain.Note, error) {
	title, content, err := validateNote(req)
	if err != nil {
		return nil, err
	}

	note := &domain.Note{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Title:   title,
		Content: content,
	}

	if err := s.repo.Create(ctx, note); err != nil {
		return nil, Internal(msgInternal, err)
	}

	s.log.Debug(ctx, "note created", "note_id", note.ID, "owner_id", ownerID)
	if s.publisher != nil {
		s.publisher.NoteCreated(note)
	}
	return note, nil
}

// Update replaces the title and content of a note the caller owns.
func (s *NoteService) Update(ctx context.Context, ownerID, noteID string, req *domain.NoteRequest) (*domain.Note, error) {
	title, content, err := validateNote(req)
	if err != nil {
		return nil, err
	}

	note, err := s.owned(ctx, ownerID, noteID)
	if err != nil {
		return nil, err
	}

	note.Title = title
	note.Content = content

	err = s.repo.Save(ctx, note)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("Note not found")
	}
	if err != nil {
		return nil, Internal(msgInternal, err)
	}

	if s.publisher != nil {
		s.publisher.NoteUpdated(note)
	}
	return note, nil
}

func (s *NoteService) Delete(ctx context.Context, ownerID, noteID string) (*domain.MessageResponse, error) {
	if _, err := s.owned(ctx, ownerID, noteID); err != nil {
		return nil, err
	}

	err := s.repo.Delete(ctx, noteID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("Note not found")
	}
	if err != nil {
		return nil, Internal(msgInternal, err)
	}

	s.log.Debug(ctx, "note deleted", "note_id", noteID, "owner_id", ownerID)
	if s.publisher != nil {
		s.publisher.NoteDeleted(ownerID, noteID)
	}
	return &domain.MessageResponse{Message: "Note deleted successfully"}, nil
}

func (s *NoteService) owned(ctx context.Context, ownerID, noteID string) (*domain.Note, error) {
	note, err := s.repo.FindByID(ctx, noteID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NotFound("Note not found")
	}
	if err != nil {
		return nil, Internal(msgInternal, err)
	}

	if note.OwnerID != ownerID {
		return nil, Forbidden("You do not have access to this note")
	}
	return note, nil
}

func validateNote(req *domain.NoteRequest) (string, string, error) {
	title := strings.TrimSpace(req.Title)
	content := req.Content

	if title == "" || strings.TrimSpace(content) == "" {
		return "", "", InvalidInput("Title and content are required")
	}
	if utf8.RuneCountInString(title) > domain.MaxNoteTitleLength {
		return "", "", InvalidInput(fmt.Sprintf("Title must be at most %d characters", domain.MaxNoteTitleLength))
	}
	if utf8.RuneCountInString(content) > domain.MaxNoteContentLength {
		return "", "", InvalidInput(fmt.Sprintf("Content must be at most %d characters", domain.MaxNoteContentLength))
	}
	return title, content, nil
}
