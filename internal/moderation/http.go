package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"quotedesk/api/internal/staging"
)

type HTTPServer struct {
	service  *Service
	validate *validator.Validate
	log      zerolog.Logger
}

func NewHTTPServer(service *Service, log zerolog.Logger) *HTTPServer {
	return &HTTPServer{
		service:  service,
		validate: newValidator(),
		log:      log,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Post("/api/quotes", s.handleSubmit)
	r.Get("/api/quotes", s.handleList)
	r.Post("/api/quotes/{id}/approve", s.handleApprove)
	r.Post("/api/quotes/{id}/refuse", s.handleRefuse)

	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ready := true
	checks := map[string]any{
		"staging": map[string]any{"status": "ok"},
		"gateway": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		ready = false
		checks["staging"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.GatewayReady(); err != nil {
		ready = false
		checks["gateway"] = map[string]any{"status": "error", "error": err.Error()}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ok": ready, "checks": checks})
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text        string `json:"text" validate:"required"`
		Source      string `json:"source" validate:"required"`
		Language    string `json:"language" validate:"required"`
		SubmittedBy string `json:"submittedBy" validate:"required"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing or invalid fields", validationDetails(err))
		return
	}

	result, err := s.service.Submit(r.Context(), SubmitInput{
		Text:        body.Text,
		Source:      body.Source,
		Language:    body.Language,
		SubmittedBy: body.SubmittedBy,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	switch result.Status {
	case StatusQueueFull:
		writeError(w, http.StatusConflict, "QUEUE_FULL", "Pending queue for this language is full", nil)
	case StatusLanguageMissing:
		writeError(w, http.StatusNotFound, "LANGUAGE_FILE_MISSING", "No canonical quote file exists for this language", nil)
	case StatusPossibleDuplicate:
		writeJSON(w, http.StatusOK, map[string]any{
			"status": result.Status,
			"match": map[string]any{
				"id":         result.Match.ID,
				"text":       result.Match.Text,
				"similarity": result.Match.Score,
			},
		})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": result.Status, "pending": result.Pending})
	}
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	language := strings.TrimSpace(r.URL.Query().Get("language"))
	if language == "" {
		language = staging.AllLanguages
	}

	items, err := s.service.List(r.Context(), language)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if items == nil {
		items = []staging.PendingQuote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": items})
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ApprovedBy   string `json:"approvedBy" validate:"required"`
		EditedText   string `json:"editedText"`
		EditedSource string `json:"editedSource"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Missing or invalid fields", validationDetails(err))
		return
	}

	result, err := s.service.Approve(r.Context(), ApproveInput{
		PendingID:    chi.URLParam(r, "id"),
		ApprovedBy:   body.ApprovedBy,
		EditedText:   body.EditedText,
		EditedSource: body.EditedSource,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quote": result.Quote, "message": result.Message})
}

func (s *HTTPServer) handleRefuse(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Refuse(r.Context(), chi.URLParam(r, "id")); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		writer := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(writer, r)

		s.log.Info().
			Str("requestId", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.Status()).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names instead of Go field names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag := field.Tag.Get("json")
		if tag == "" || tag == "-" {
			return field.Name
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		return tag
	})
	return v
}

func validationDetails(err error) any {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil
	}
	fields := map[string]string{}
	for _, fieldErr := range fieldErrs {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}
	return fields
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, staging.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
