package export

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

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
	if r.Method != http.MethodGet {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.handleExport(w, r)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"leads-%s.csv\"", stamp))
		rows, err := h.service.WriteCSV(r.Context(), w, identity.CompanyID, filter)
		if err != nil {
			// Headers are already sent; the best we can do is log and cut off.
			log.Printf("[export] csv export failed for company %s after %d rows: %v", identity.CompanyID, rows, err)
			return
		}
	case "excel", "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"leads-%s.xlsx\"", stamp))
		rows, err := h.service.WriteXLSX(r.Context(), w, identity.CompanyID, filter)
		if err != nil {
			log.Printf("[export] xlsx export failed for company %s after %d rows: %v", identity.CompanyID, rows, err)
			return
		}
	default:
		http.Error(w, fmt.Sprintf("unsupported format %q", format), http.StatusBadRequest)
	}
}

func parseFilter(r *http.Request) (*domain.LeadFilter, error) {
	query := r.URL.Query()
	filter := &domain.LeadFilter{
		Status:     strings.TrimSpace(query.Get("status")),
		LeadSource: strings.TrimSpace(query.Get("lead_source")),
	}
	if raw := strings.TrimSpace(query.Get("assigned_to")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid assigned_to: %v", err)
		}
		filter.AssignedTo = &id
	}
	if raw := strings.TrimSpace(query.Get("pipeline_stage_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid pipeline_stage_id: %v", err)
		}
		filter.PipelineStageID = &id
	}
	if raw := strings.TrimSpace(query.Get("date_from")); raw != "" {
		ts, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid date_from: %v", err)
		}
		filter.DateFrom = &ts
	}
	if raw := strings.TrimSpace(query.Get("date_to")); raw != "" {
		ts, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid date_to: %v", err)
		}
		filter.DateTo = &ts
	}
	return filter, nil
}
