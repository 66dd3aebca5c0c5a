package handler

import (
	"context"
	"net/http"

	"hdnotes-server/internal/domain"
	"hdnotes-server/internal/logging"
	"hdnotes-server/internal/middleware"
	"hdnotes-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type NoteService interface {
	List(ctx context.Context, ownerID string) ([]*domain.Note, error)
	Create(ctx context.Context, ownerID string, req *domain.NoteRequest) (*domain.Note, error)
	Update(ctx context.Context, ownerID, noteID string, req *domain.NoteRequest) (*domain.Note, error)
	Delete(ctx context.Context, ownerID, noteID string) (*domain.MessageResponse, error)
}

type NoteHandler struct {
	service  NoteService
	validate *validator.Validate
	log      logging.Logger
}

func NewNoteHandler(service NoteService, log logging.Logger) *NoteHandler {
	return &NoteHandler{
		service:  service,
		validate: newValidator(),
		log:      log,
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessage(err))
		return
	}

	note, err := h.service.Create(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.service.List(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if noteID == "" {
		response.BadRequest(w, "Note ID is required")
		return
	}

	var req domain.NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, validationMessage(err))
		return
	}

	note, err := h.service.Update(r.Context(), middleware.GetUserID(r), noteID, &req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if noteID == "" {
		response.BadRequest(w, "Note ID is required")
		return
	}

	resp, err := h.service.Delete(r.Context(), middleware.GetUserID(r), noteID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	response.Message(w, http.StatusOK, resp.Message)
}
