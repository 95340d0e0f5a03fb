package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sells-group/agency-crm/internal/auth"
	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

type companyRequest struct {
	Name          string           `json:"name" validate:"required"`
	Domain        string           `json:"domain"`
	Phone         string           `json:"phone"`
	City          string           `json:"city"`
	Country       string           `json:"country"`
	Size          string           `json:"size" validate:"omitempty,oneof=SOLO SMALL MEDIUM LARGE ENTERPRISE CORPORATION"`
	Type          string           `json:"type" validate:"omitempty,oneof=PROSPECT LEAD OPPORTUNITY CUSTOMER PARTNER VENDOR OTHER"`
	AnnualRevenue *decimal.Decimal `json:"annual_revenue"`
}

func (req companyRequest) apply(c *model.Company) {
	c.Name = req.Name
	c.Domain = req.Domain
	c.Phone = req.Phone
	c.City = req.City
	c.Country = req.Country
	if req.Size != "" {
		size := model.CompanySize(req.Size)
		c.Size = &size
	}
	if req.Type != "" {
		c.Type = model.CompanyType(req.Type)
	}
	if req.AnnualRevenue != nil {
		c.AnnualRevenue = *req.AnnualRevenue
	}
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	c := &model.Company{
		ID:        uuid.New().String(),
		Type:      model.TypeProspect,
		Source:    model.SourceManual,
		OwnerID:   currentUserID(r),
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.apply(c)

	if err := s.store.CreateCompany(r.Context(), c); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCompany(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	filter := store.CompanyFilter{
		Type:   model.CompanyType(r.URL.Query().Get("type")),
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	companies, err := s.store.ListCompanies(r.Context(), filter)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, companies)
}

func (s *Server) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.store.GetCompany(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	req.apply(c)
	c.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateCompany(r.Context(), c); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCompany(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// currentUserID returns the authenticated user's ID. Handlers behind
// requireAuth always have one.
func currentUserID(r *http.Request) string {
	if claims, ok := auth.UserFromContext(r.Context()); ok {
		return claims.Subject
	}
	return ""
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}
