package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/llmgate/gateway/internal/config"
	"github.com/llmgate/gateway/internal/gatewayerr"
	"github.com/llmgate/gateway/internal/streaming"
	"github.com/llmgate/gateway/internal/usage"
)

// modelEntry is one row of GET /v1/models' "data" array.
type modelEntry struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// handleHealth responds with a simple JSON status indicating the server
// is alive — a basic liveness probe, no provider or storage connectivity
// checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleConfigStatus answers GET /config/status (spec §6): a
// provider-name→hasCredential map, the gateway mode, whether any upstream
// API key is configured at all, whether x402 payment rails are active for
// this mode, and the subset of server config that's safe to expose.
func (s *Server) handleConfigStatus(w http.ResponseWriter, r *http.Request) {
	names := s.cfg.PriorityOrder()
	providers := make(map[string]bool, len(names))
	hasAPIKeys := false
	for _, name := range names {
		credentialed := s.cfg.HasCredential(name)
		providers[name] = credentialed
		hasAPIKeys = hasAPIKeys || credentialed
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"providers":   providers,
		"mode":        s.cfg.Mode,
		"hasApiKeys":  hasAPIKeys,
		"x402Enabled": s.cfg.Mode == config.ModeHybrid || s.cfg.Mode == config.ModeX402Only,
		"server": map[string]any{
			"environment": s.cfg.Server.Environment,
			"port":        s.cfg.Server.Port,
		},
	})
}

// handleModels answers GET /v1/models: every model the pricing catalog
// knows about, optionally narrowed by ?provider and ?search and paged by
// ?limit/?offset (SPEC_FULL.md §12's "/v1/models catalog browse").
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerFilter := q.Get("provider")
	search := strings.ToLower(q.Get("search"))

	providers := s.catalog.Providers()
	sort.Strings(providers)

	var all []modelEntry
	for _, p := range providers {
		if providerFilter != "" && p != providerFilter {
			continue
		}
		models := s.catalog.Models(p)
		sort.Strings(models)
		for _, m := range models {
			if search != "" && !strings.Contains(strings.ToLower(m), search) {
				continue
			}
			all = append(all, modelEntry{ID: m, Provider: p})
		}
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	limit := len(all)
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	page := pageSlice(all, offset, limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": page, "total": len(all)})
}

func pageSlice(entries []modelEntry, offset, limit int) []modelEntry {
	if offset >= len(entries) {
		return nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}

func (s *Server) handleOpenAIChat(w http.ResponseWriter, r *http.Request) {
	s.pipeline.HandleChat(w, r, streaming.ClientOpenAIChat)
}

func (s *Server) handleAnthropic(w http.ResponseWriter, r *http.Request) {
	s.pipeline.HandleChat(w, r, streaming.ClientAnthropic)
}

func (s *Server) handleOpenAIResponses(w http.ResponseWriter, r *http.Request) {
	s.pipeline.HandleChat(w, r, streaming.ClientOpenAIResponses)
}

// handleUsageQuery answers GET /usage (spec §4.I): ?timezone and ?limit
// are optional, and ?startTime/?endTime may be omitted together (last 7
// days) but not one without the other.
func (s *Server) handleUsageQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := usage.ParseRange(q.Get("startTime"), q.Get("endTime"), q.Get("timezone"))
	if err != nil {
		writeAdminError(w, err)
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			writeAdminError(w, gatewayerr.InvalidInput("invalid limit %q", v))
			return
		}
	}

	result, err := s.usage.Query(r.Context(), start, end, limit)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handleUsageExport answers GET /usage/export (spec §4.I's CSV export,
// same date-range params as /usage).
func (s *Server) handleUsageExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := usage.ParseRange(q.Get("startTime"), q.Get("endTime"), q.Get("timezone"))
	if err != nil {
		writeAdminError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="usage.csv"`)
	if err := s.usage.CSVExport(r.Context(), w, start, end); err != nil {
		// Headers (and possibly partial rows) are already on the wire by
		// the time CSVExport can fail; nothing left to do but log it.
		log.Printf("[server] usage export: %v", err)
	}
}

// handleBudgetGet answers GET /budget (spec §4.J).
func (s *Server) handleBudgetGet(w http.ResponseWriter, r *http.Request) {
	status, err := s.budget.GetStatus(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleBudgetPut answers PUT /budget (spec §4.J): body is
// {"amountUsd": number|null, "alertOnly": bool}.
func (s *Server) handleBudgetPut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AmountUSD *float64 `json:"amountUsd"`
		AlertOnly bool     `json:"alertOnly"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAdminError(w, gatewayerr.InvalidInput("malformed request body: %v", err))
		return
	}

	if err := s.budget.Upsert(r.Context(), body.AmountUSD, body.AlertOnly); err != nil {
		writeAdminError(w, err)
		return
	}

	status, err := s.budget.GetStatus(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// writeAdminError renders an error from one of the non-chat admin routes.
// These don't speak any of the three client wire formats, so the body is
// always the plain {"error": "..."} shape rather than one of
// gatewayerr.Render's per-format variants.
func writeAdminError(w http.ResponseWriter, err error) {
	gwErr, ok := gatewayerr.As(err)
	if !ok {
		gwErr = gatewayerr.AdapterFailureWrap("unclassified error", err)
	}
	status := gwErr.HTTPStatus()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": gwErr.Message})
}
