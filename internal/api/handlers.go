package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/pagesend/internal/directory"
	"github.com/foxzi/pagesend/internal/dispatch"
	"github.com/foxzi/pagesend/internal/metrics"
	"github.com/foxzi/pagesend/internal/models"
	"github.com/foxzi/pagesend/internal/pdfdoc"
)

// RecipientRequest is the request body for POST /api/terceros
type RecipientRequest struct {
	Nit    looseString `json:"nit"`
	Nombre string      `json:"nombre"`
	Email  string      `json:"email"`
}

// RecipientResponse is a saved recipient plus how it was saved
type RecipientResponse struct {
	models.Recipient
	Created  bool `json:"created,omitempty"`
	Updated  bool `json:"updated,omitempty"`
	Upserted bool `json:"upserted,omitempty"`
}

// SendRequest is the request body for POST /api/send
type SendRequest struct {
	UploadID    string             `json:"uploadId"`
	Selections  []models.Selection `json:"selections"`
	Subject     string             `json:"subject"`
	Body        string             `json:"body"`
	SenderEmail string             `json:"senderEmail"`
}

// SendResponse is the response for POST /api/send
type SendResponse struct {
	Results []models.DispatchResult `json:"results"`
}

// ReimportResponse is the response for POST /api/reimport-excel
type ReimportResponse struct {
	OK bool `json:"ok"`
	*models.ImportResult
	Error string `json:"error,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Recipients int    `json:"recipients"`
	Sessions   int    `json:"sessions"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// looseString accepts a JSON string or number, identifiers are often
// typed as numbers by clients
type looseString string

func (l *looseString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = looseString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = looseString(n.String())
	return nil
}

// handleListRecipients handles GET /api/terceros
func (s *Server) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	recipients, err := s.deps.Directory.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list recipients", "error", err)
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, recipients)
}

// handleSaveRecipient handles POST /api/terceros
func (s *Server) handleSaveRecipient(w http.ResponseWriter, r *http.Request) {
	var req RecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "payload inválido")
		return
	}

	res, err := s.deps.Directory.Save(r.Context(), directory.Input{
		Identifier: string(req.Nit),
		Name:       req.Nombre,
		Email:      req.Email,
	})
	if err != nil {
		var verr *directory.ValidationError
		if errors.As(err, &verr) {
			sendError(w, http.StatusBadRequest, verr.Message)
			return
		}
		s.logger.Error("failed to save recipient", "error", err)
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("recipient saved",
		"id", res.Recipient.ID,
		"nit", res.Recipient.Nit,
		"outcome", res.Outcome,
	)

	sendJSON(w, http.StatusOK, RecipientResponse{
		Recipient: *res.Recipient,
		Created:   res.Outcome == models.OutcomeCreated,
		Updated:   res.Outcome == models.OutcomeUpdated,
		Upserted:  res.Outcome == models.OutcomeUpserted,
	})
}

// handleDeleteRecipient handles DELETE /api/terceros/{id}
func (s *Server) handleDeleteRecipient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "id inválido")
		return
	}

	if err := s.deps.Directory.Delete(r.Context(), id); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			sendError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("failed to delete recipient", "id", id, "error", err)
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("recipient deleted", "id", id)
	sendJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// handleUpload handles POST /api/upload-pdf
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)

	file, _, err := r.FormFile("pdf")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.IncUploads("invalid")
			sendError(w, http.StatusRequestEntityTooLarge, "PDF demasiado grande")
			return
		}
		metrics.IncUploads("invalid")
		sendError(w, http.StatusBadRequest, "PDF requerido")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		metrics.IncUploads("invalid")
		sendError(w, http.StatusBadRequest, "PDF requerido")
		return
	}

	pages, err := pdfdoc.ExtractPages(data)
	if err != nil {
		metrics.IncUploads("error")
		s.logger.Warn("failed to extract pages", "size", len(data), "error", err)
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rows, err := s.deps.Resolver.Resolve(r.Context(), pages)
	if err != nil {
		metrics.IncUploads("error")
		s.logger.Error("failed to match pages", "error", err)
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	uploadID := s.deps.Sessions.Put(data)
	metrics.IncUploads("ok")

	s.logger.Info("document uploaded",
		"upload_id", uploadID,
		"pages", len(pages),
		"size", len(data),
	)

	sendJSON(w, http.StatusOK, models.UploadResult{
		UploadID:   uploadID,
		TotalPages: len(pages),
		Rows:       rows,
	})
}

// handleSend handles POST /api/send
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UploadID == "" || req.Selections == nil {
		sendError(w, http.StatusBadRequest, "payload inválido")
		return
	}

	results, err := s.deps.Engine.Dispatch(r.Context(), dispatch.Request{
		UploadID:    req.UploadID,
		Selections:  req.Selections,
		Subject:     req.Subject,
		Body:        req.Body,
		SenderEmail: req.SenderEmail,
	})
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidSender) || errors.Is(err, dispatch.ErrSessionExpired) {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("dispatch failed", "upload_id", req.UploadID, "error", err)
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sendJSON(w, http.StatusOK, SendResponse{Results: results})
}

// handleReimport handles POST /api/reimport-excel
func (s *Server) handleReimport(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Directory.ReimportFile(r.Context(), s.config.Directory.SeedFile)
	if err != nil {
		s.logger.Error("reimport failed", "path", s.config.Directory.SeedFile, "error", err)
		sendJSON(w, http.StatusInternalServerError, ReimportResponse{OK: false, Error: err.Error()})
		return
	}

	s.logger.Info("directory reimported",
		"processed", res.Processed,
		"skipped", res.Skipped,
		"total", res.Total,
	)
	sendJSON(w, http.StatusOK, ReimportResponse{OK: true, ImportResult: res})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	recipients, _ := s.deps.Directory.Count(r.Context())

	sendJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    s.deps.Version,
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		Recipients: recipients,
		Sessions:   s.deps.Sessions.Len(),
	})
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{Error: message})
}
