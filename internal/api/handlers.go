package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/askbase/askbase/internal/rag"
	"github.com/askbase/askbase/internal/tenant"
	"github.com/askbase/askbase/internal/vectorstore"
)

// TenantValidator checks tenant credentials with the platform.
type TenantValidator interface {
	Validate(ctx context.Context, tenantID int64, apiKey string) (*tenant.Info, error)
}

// Handlers holds the HTTP handlers over the RAG pipeline.
type Handlers struct {
	rag     *rag.Service
	tenants TenantValidator
	logger  *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(service *rag.Service, tenants TenantValidator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{rag: service, tenants: tenants, logger: logger}
}

func pathTenantID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("tenantID"), 10, 64)
}

// authorizeTenant validates the tenant API key and domain allow-list.
// It writes the error response itself and returns nil on rejection.
func (h *Handlers) authorizeTenant(w http.ResponseWriter, r *http.Request, tenantID int64) *tenant.Info {
	info, err := h.tenants.Validate(r.Context(), tenantID, r.Header.Get("X-API-Key"))
	if err != nil {
		if errors.Is(err, tenant.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return nil
		}
		h.logger.Error("tenant validation failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusBadGateway, "tenant validation unavailable")
		return nil
	}

	if !tenant.DomainAllowed(info, r.Header.Get("Origin"), r.Header.Get("Referer")) {
		writeError(w, http.StatusForbidden, "domain not allowed")
		return nil
	}
	return info
}

type chatRequest struct {
	Message   string          `json:"message"`
	SessionID string          `json:"session_id"`
	Prompts   []tenant.Prompt `json:"prompts"`
}

// Chat answers one user message for a tenant.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathTenantID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	info := h.authorizeTenant(w, r, tenantID)
	if info == nil {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	result := h.rag.Answer(r.Context(), rag.AnswerRequest{
		TenantID:  tenantID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Prompts:   req.Prompts,
		Tenant:    info,
	})
	writeJSON(w, http.StatusOK, result)
}

// TenantHealth reports a tenant's knowledge base size.
func (h *Handlers) TenantHealth(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathTenantID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	if h.authorizeTenant(w, r, tenantID) == nil {
		return
	}

	count, err := h.rag.Health(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("tenant health check failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "health check failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"embeddings_count": count,
	})
}

// parseSourcePath extracts and validates the source triple from the
// request path.
func parseSourcePath(r *http.Request) (int64, vectorstore.SourceType, int64, bool) {
	tenantID, err := pathTenantID(r)
	if err != nil {
		return 0, "", 0, false
	}
	sourceType := vectorstore.SourceType(r.PathValue("sourceType"))
	if !sourceType.Valid() {
		return 0, "", 0, false
	}
	sourceID, err := strconv.ParseInt(r.PathValue("sourceID"), 10, 64)
	if err != nil {
		return 0, "", 0, false
	}
	return tenantID, sourceType, sourceID, true
}

type embedRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// EmbedSource (re)embeds one source's text.
func (h *Handlers) EmbedSource(w http.ResponseWriter, r *http.Request) {
	tenantID, sourceType, sourceID, ok := parseSourcePath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid source path")
		return
	}

	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.rag.EmbedAndStore(r.Context(), rag.IngestRequest{
		TenantID:   tenantID,
		SourceType: sourceType,
		SourceID:   sourceID,
		Text:       req.Text,
		Metadata:   req.Metadata,
	})
	if err != nil {
		h.logger.Error("embedding source failed",
			"tenant_id", tenantID, "source_type", sourceType, "source_id", sourceID, "error", err)
		writeError(w, http.StatusInternalServerError, "embedding failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteSource removes one source's chunks.
func (h *Handlers) DeleteSource(w http.ResponseWriter, r *http.Request) {
	tenantID, sourceType, sourceID, ok := parseSourcePath(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid source path")
		return
	}

	deleted, err := h.rag.DeleteSource(r.Context(), tenantID, sourceType, sourceID)
	if err != nil {
		h.logger.Error("deleting source failed",
			"tenant_id", tenantID, "source_type", sourceType, "source_id", sourceID, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// DeleteTenant purges all of a tenant's data.
func (h *Handlers) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, err := pathTenantID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return
	}

	deleted, err := h.rag.DeleteTenant(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("purging tenant failed", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
