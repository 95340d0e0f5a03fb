package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/auth"
	"github.com/sells-group/agency-crm/internal/backup"
	"github.com/sells-group/agency-crm/internal/deal"
	"github.com/sells-group/agency-crm/internal/importer"
	"github.com/sells-group/agency-crm/internal/store"
)

// validate checks request DTO struct tags. One instance, it caches struct
// metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			zap.L().Error("api: encode response", zap.Error(err))
		}
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg})
}

// respondStoreError maps service errors onto HTTP statuses. Unknown errors
// are logged server-side and reported as a bare 500 so internals never leak.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, store.ErrNotFound),
		eris.Is(err, backup.ErrArtifactNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case eris.Is(err, deal.ErrInvalidStage),
		eris.Is(err, deal.ErrInvalidProbability),
		eris.Is(err, deal.ErrLostReasonRequired),
		eris.Is(err, deal.ErrLostReasonNotAllowed),
		eris.Is(err, deal.ErrDealClosed),
		eris.Is(err, deal.ErrCompanyRequired),
		eris.Is(err, backup.ErrInvalidID),
		eris.Is(err, importer.ErrNoFiles):
		respondError(w, http.StatusBadRequest, err.Error())
	case eris.Is(err, importer.ErrBusy):
		respondError(w, http.StatusConflict, err.Error())
	case eris.Is(err, auth.ErrInvalidCredentials),
		eris.Is(err, auth.ErrInvalidToken):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	default:
		zap.L().Error("api: internal error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeAndValidate parses the JSON body into dst and runs tag validation.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return eris.Wrap(err, "api: decode request body")
	}
	if err := validate.Struct(dst); err != nil {
		return eris.Wrap(err, "api: validate request")
	}
	return nil
}
