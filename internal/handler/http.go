// Package handler exposes the ingest and dashboard HTTP surface.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vipinuengage/funnel-system/internal/dashboard"
	"github.com/vipinuengage/funnel-system/internal/event"
	"github.com/vipinuengage/funnel-system/internal/recorder"
	"github.com/vipinuengage/funnel-system/internal/store"
)

// EventRecorder accepts a tenant's normalized batch.
type EventRecorder interface {
	Record(ctx context.Context, tenantID string, envs []event.Envelope) (recorder.Result, error)
}

// DashboardReader serves per-day funnel breakdowns.
type DashboardReader interface {
	Read(ctx context.Context, tenantID, date string) (*dashboard.Report, error)
}

// TokenVerifier resolves a tenant token to its tenant id.
type TokenVerifier interface {
	TenantIDForToken(ctx context.Context, token string) (string, error)
}

// EnvelopeEnricher fills envelope fields derivable from the request.
type EnvelopeEnricher interface {
	Apply(envs []event.Envelope, userAgent, clientIP string) []event.Envelope
}

type Handler struct {
	recorder EventRecorder
	reader   DashboardReader
	verifier TokenVerifier
	enricher EnvelopeEnricher // optional
	tenants  store.TenantStore
}

func New(rec EventRecorder, reader DashboardReader, verifier TokenVerifier, enricher EnvelopeEnricher, tenants store.TenantStore) *Handler {
	return &Handler{
		recorder: rec,
		reader:   reader,
		verifier: verifier,
		enricher: enricher,
		tenants:  tenants,
	}
}

// Routes mounts the public surface on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)
	r.Post("/api/events", h.HandleIngest)
	r.Get("/api/dashboard/{tenantID}", h.HandleDashboard)
}

type ingestRequest struct {
	TenantToken string           `json:"tenantToken"`
	Events      []event.Envelope `json:"events"`
}

type ingestResponse struct {
	Success   bool `json:"success"`
	Processed int  `json:"processed"`
	Counters  bool `json:"counters"`
}

// HandleIngest accepts either {tenantToken, events:[...]} or a bare array
// of envelopes with the token in the Authorization header.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(body, &req.Events); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	} else if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	token := req.TenantToken
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" || len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "Missing tenant creds or events")
		return
	}

	tenantID, err := h.verifier.TenantIDForToken(r.Context(), token)
	if errors.Is(err, store.ErrTenantNotFound) {
		respondError(w, http.StatusUnauthorized, "Invalid tenant token")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Tenant token verification failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	envs := req.Events
	if h.enricher != nil {
		envs = h.enricher.Apply(envs, r.Header.Get("User-Agent"), clientIP(r))
	}

	res, err := h.recorder.Record(r.Context(), tenantID, envs)
	switch {
	case errors.Is(err, recorder.ErrNoTenant), errors.Is(err, recorder.ErrNoEvents):
		respondError(w, http.StatusBadRequest, "Missing tenant creds or events")
		return
	case err != nil:
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Event batch rejected")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusAccepted, ingestResponse{
		Success:   true,
		Processed: res.Accepted,
		Counters:  res.CountersLive,
	})
}

// HandleDashboard serves GET /api/dashboard/{tenantID}?date=YYYY-MM-DD.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "Tenant ID is required")
		return
	}

	exists, err := h.tenants.TenantExists(r.Context(), tenantID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Msg("Tenant lookup failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !exists {
		respondError(w, http.StatusBadRequest, "Invalid tenantId")
		return
	}

	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse(event.DateLayout, date); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
			return
		}
	}

	report, err := h.reader.Read(r.Context(), tenantID, date)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenantID).Str("date", date).Msg("Dashboard read exhausted all tiers")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
