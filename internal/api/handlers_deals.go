package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/deal"
	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

type createDealRequest struct {
	Name              string           `json:"name" validate:"required"`
	Value             *decimal.Decimal `json:"value"`
	Currency          string           `json:"currency" validate:"omitempty,len=3"`
	Probability       int              `json:"probability" validate:"min=0,max=100"`
	Stage             string           `json:"stage"`
	ExpectedCloseDate *time.Time       `json:"expected_close_date"`
	CompanyID         string           `json:"company_id" validate:"required"`
}

func (s *Server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := deal.CreateParams{
		Name:              req.Name,
		Currency:          req.Currency,
		Probability:       req.Probability,
		Stage:             model.DealStage(req.Stage),
		ExpectedCloseDate: req.ExpectedCloseDate,
		CompanyID:         req.CompanyID,
		OwnerID:           currentUserID(r),
	}
	if req.Value != nil {
		p.Value = *req.Value
	}

	d, err := s.deals.Create(r.Context(), p)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetDeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := s.store.ListDeals(r.Context(), dealFilterFromQuery(r))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, deals)
}

func dealFilterFromQuery(r *http.Request) store.DealFilter {
	return store.DealFilter{
		Stage:        model.DealStage(r.URL.Query().Get("stage")),
		ClosedStatus: model.ClosedStatus(r.URL.Query().Get("closed_status")),
		CompanyID:    r.URL.Query().Get("company_id"),
		Limit:        queryInt(r, "limit"),
		Offset:       queryInt(r, "offset"),
	}
}

type updateDealRequest struct {
	Name              *string          `json:"name"`
	Value             *decimal.Decimal `json:"value"`
	Probability       *int             `json:"probability" validate:"omitempty,min=0,max=100"`
	Currency          *string          `json:"currency" validate:"omitempty,len=3"`
	ExpectedCloseDate *time.Time       `json:"expected_close_date"`
	OwnerID           *string          `json:"owner_id"`
	CompanyID         *string          `json:"company_id"`
}

func (s *Server) handleUpdateDeal(w http.ResponseWriter, r *http.Request) {
	var req updateDealRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.deals.Update(r.Context(), chi.URLParam(r, "id"), deal.UpdateParams{
		Name:              req.Name,
		Value:             req.Value,
		Probability:       req.Probability,
		Currency:          req.Currency,
		ExpectedCloseDate: req.ExpectedCloseDate,
		OwnerID:           req.OwnerID,
		CompanyID:         req.CompanyID,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteDeal(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDeal(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeStageRequest struct {
	Stage          string `json:"stage" validate:"required"`
	LostReason     string `json:"lost_reason" validate:"omitempty,oneof=PRICE TIMING COMPETITOR NO_BUDGET NO_RESPONSE SCOPE OTHER"`
	LostReasonNote string `json:"lost_reason_note"`
}

func (s *Server) handleChangeStage(w http.ResponseWriter, r *http.Request) {
	var req changeStageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.deals.ChangeStage(r.Context(),
		chi.URLParam(r, "id"),
		model.DealStage(req.Stage),
		currentUserID(r),
		deal.ChangeStageParams{
			LostReason:     model.LostReason(req.LostReason),
			LostReasonNote: req.LostReasonNote,
		},
	)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleStageHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.deals.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleExportDeals(w http.ResponseWriter, r *http.Request) {
	// Buffered so a mid-export failure can still return a JSON error.
	var buf bytes.Buffer
	if _, err := s.exporter.WriteDeals(r.Context(), &buf, dealFilterFromQuery(r)); err != nil {
		respondStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="deals.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, &buf); err != nil {
		s.log.Error("export deals: write response", zap.Error(err))
	}
}
