package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sells-group/agency-crm/internal/model"
)

type noteRequest struct {
	Body      string  `json:"body" validate:"required"`
	CompanyID *string `json:"company_id"`
	ContactID *string `json:"contact_id"`
	DealID    *string `json:"deal_id"`
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	n := &model.Note{
		ID:        uuid.New().String(),
		Body:      req.Body,
		CompanyID: req.CompanyID,
		ContactID: req.ContactID,
		DealID:    req.DealID,
		AuthorID:  currentUserID(r),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateNote(r.Context(), n); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, n)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	notes, err := s.store.ListNotes(r.Context(), q.Get("deal_id"), q.Get("company_id"), q.Get("contact_id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, notes)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type activityRequest struct {
	Kind      string     `json:"kind" validate:"required,oneof=CALL MEETING EMAIL TASK"`
	Subject   string     `json:"subject" validate:"required"`
	DueAt     *time.Time `json:"due_at"`
	Done      bool       `json:"done"`
	CompanyID *string    `json:"company_id"`
	ContactID *string    `json:"contact_id"`
	DealID    *string    `json:"deal_id"`
}

func (req activityRequest) apply(a *model.Activity) {
	a.Kind = model.ActivityKind(req.Kind)
	a.Subject = req.Subject
	a.DueAt = req.DueAt
	a.Done = req.Done
	a.CompanyID = req.CompanyID
	a.ContactID = req.ContactID
	a.DealID = req.DealID
}

func (s *Server) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	a := &model.Activity{
		ID:        uuid.New().String(),
		OwnerID:   currentUserID(r),
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.apply(a)

	if err := s.store.CreateActivity(r.Context(), a); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	var done *bool
	switch r.URL.Query().Get("done") {
	case "true":
		t := true
		done = &t
	case "false":
		f := false
		done = &f
	}

	activities, err := s.store.ListActivities(r.Context(), r.URL.Query().Get("owner_id"), done)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, activities)
}

func (s *Server) handleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	a := &model.Activity{
		ID:        chi.URLParam(r, "id"),
		OwnerID:   currentUserID(r),
		UpdatedAt: now,
	}
	req.apply(a)

	if err := s.store.UpdateActivity(r.Context(), a); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteActivity(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
