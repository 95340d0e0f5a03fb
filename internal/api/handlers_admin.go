package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agency-crm/internal/importer"
)

// maxImportBytes bounds one uploaded CSV. HubSpot exports for this team are
// a few megabytes at most.
const maxImportBytes = 32 << 20

// handleImport accepts a multipart form with optional "companies",
// "contacts" and "deals" file parts and runs the import synchronously.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var files importer.Files
	for _, part := range []struct {
		field string
		dst   *[]byte
	}{
		{"companies", &files.Companies},
		{"contacts", &files.Contacts},
		{"deals", &files.Deals},
	} {
		data, err := formFile(r, part.field)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		*part.dst = data
	}

	result, err := s.importer.Run(r.Context(), files)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// formFile reads one optional file part; a missing part returns nil bytes.
func formFile(r *http.Request, field string) ([]byte, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		if eris.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "api: read %s file", field)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImportBytes))
	if err != nil {
		return nil, eris.Wrapf(err, "api: read %s file", field)
	}
	return data, nil
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.backups.Create(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, artifact)
}

func (s *Server) handleListBackups(w http.ResponseWriter, _ *http.Request) {
	artifacts, err := s.backups.List()
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, artifacts)
}

// handleRestoreBackup replaces the database with a snapshot. It takes the
// same gate as import, so a restore can never run mid-import or vice versa.
func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	if !s.gate.TryAcquire(1) {
		respondError(w, http.StatusConflict, "another import or restore is in progress")
		return
	}
	defer s.gate.Release(1)

	if err := s.backups.Restore(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	overview, err := s.dashboard.Overview(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}
