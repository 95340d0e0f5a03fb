package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

type contactRequest struct {
	FirstName string  `json:"first_name" validate:"required_without=LastName"`
	LastName  string  `json:"last_name" validate:"required_without=FirstName"`
	Email     string  `json:"email" validate:"omitempty,email"`
	Phone     string  `json:"phone"`
	JobTitle  string  `json:"job_title"`
	CompanyID *string `json:"company_id"`
}

func (req contactRequest) apply(c *model.Contact) {
	c.FirstName = req.FirstName
	c.LastName = req.LastName
	c.Email = req.Email
	c.Phone = req.Phone
	c.JobTitle = req.JobTitle
	c.CompanyID = req.CompanyID
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	c := &model.Contact{
		ID:        uuid.New().String(),
		OwnerID:   currentUserID(r),
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.apply(c)

	if err := s.store.CreateContact(r.Context(), c); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetContact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	filter := store.ContactFilter{
		CompanyID: r.URL.Query().Get("company_id"),
		Search:    r.URL.Query().Get("search"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	contacts, err := s.store.ListContacts(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.store.GetContact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	req.apply(c)
	c.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateContact(r.Context(), c); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteContact(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
