package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/chlear/crm/internal/auth"
	"github.com/chlear/crm/internal/domain"
)

type Handler struct {
	service *Service
}

func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/dry-run"):
		h.handleImport(w, r, true)
		return
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/headers"):
		h.handleHeaders(w, r)
		return
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/template"):
		h.handleTemplate(w, r)
		return
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/history"):
		h.handleHistory(w, r)
		return
	case r.Method == http.MethodPost:
		h.handleImport(w, r, false)
		return
	default:
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request, dryRun bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	req, err := h.parseImportRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result *domain.ImportResult
	if dryRun {
		result, err = h.service.DryRun(r.Context(), identity, *req)
	} else {
		result, err = h.service.Commit(r.Context(), identity, *req)
	}
	if err != nil {
		http.Error(w, err.Error(), importErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleHeaders(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	fileName, payload, err := readUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	preview, err := h.service.Headers(fileName, payload)
	if err != nil {
		http.Error(w, err.Error(), importErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *Handler) handleTemplate(w http.ResponseWriter, r *http.Request) {
	template, err := h.service.Template()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="lead-import-template.csv"`)
	_, _ = w.Write(template)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	query := r.URL.Query()
	limit := 20
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "offset must be zero or positive", http.StatusBadRequest)
			return
		}
		offset = parsed
	}
	entries, err := h.service.History(r.Context(), identity.CompanyID, limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("list import history: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) parseImportRequest(r *http.Request) (*Request, error) {
	fileName, payload, err := readUpload(r)
	if err != nil {
		return nil, err
	}

	req := &Request{
		FileName: fileName,
		Payload:  payload,
		Policy:   domain.DuplicatePolicySkip,
	}

	mappingRaw := strings.TrimSpace(r.FormValue("fieldMapping"))
	if mappingRaw == "" {
		return nil, errors.New("fieldMapping is required")
	}
	if err := json.Unmarshal([]byte(mappingRaw), &req.Mapping); err != nil {
		return nil, fmt.Errorf("invalid fieldMapping: %w", err)
	}

	if optionsRaw := strings.TrimSpace(r.FormValue("options")); optionsRaw != "" {
		var options importOptions
		if err := json.Unmarshal([]byte(optionsRaw), &options); err != nil {
			return nil, fmt.Errorf("invalid options: %w", err)
		}
		if options.DuplicatePolicy != "" {
			req.Policy = domain.DuplicatePolicy(strings.ToLower(options.DuplicatePolicy))
		}
		if stage := strings.TrimSpace(options.PipelineStageID); stage != "" {
			stageID, err := uuid.Parse(stage)
			if err != nil {
				return nil, fmt.Errorf("invalid pipeline_stage_id: %v", err)
			}
			req.PipelineStageID = &stageID
		}
	}

	return req, nil
}

type importOptions struct {
	DuplicatePolicy string `json:"duplicate_policy"`
	PipelineStageID string `json:"pipeline_stage_id"`
}

// readUpload pulls the "file" part out of a multipart form. The form itself
// is capped well above the import size limit; the precise limit is enforced
// by the ingestor so oversized files get the dedicated 413 response.
func readUpload(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return "", nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errors.New("file is required")
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return header.Filename, payload, nil
}

func importErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrTooManyRows),
		errors.Is(err, ErrEmptyFile),
		errors.Is(err, ErrStageNotFound),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
