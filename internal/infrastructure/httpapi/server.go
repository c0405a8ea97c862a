package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"IncidentScanner/internal/domain"
	"IncidentScanner/internal/logging"
	"IncidentScanner/internal/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Invoker runs one pipeline invocation.
type Invoker interface {
	Run(ctx context.Context, inv domain.Invocation) domain.Response
}

// Server exposes the pipeline and the incident store over HTTP.
type Server struct {
	invoker Invoker
	stores  ports.StoreOpener
	metrics http.Handler
	log     *slog.Logger
}

// NewServer builds the handler set. metrics may be nil to disable /metrics.
func NewServer(invoker Invoker, stores ports.StoreOpener, metrics http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	return &Server{invoker: invoker, stores: stores, metrics: metrics, log: log}
}

// Router returns the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/invoke", s.handleInvoke)
	r.Get("/incidents", s.handleIncidents)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type incidentView struct {
	ID                      string    `json:"id"`
	Title                   string    `json:"title"`
	VendorKey               string    `json:"vendorKey"`
	Product                 string    `json:"product"`
	PublishedAt             time.Time `json:"publishedAt"`
	ExploitDescription      string    `json:"exploitDescription"`
	Summary                 string    `json:"summary"`
	SourceURL               string    `json:"sourceUrl"`
	ImageURL                string    `json:"imageUrl,omitempty"`
	IncidentType            string    `json:"incidentType"`
	AffectedService         string    `json:"affectedService"`
	PotentiallyImpactedData string    `json:"potentiallyImpactedData"`
	Status                  string    `json:"status"`
	SourceLabel             string    `json:"sourceLabel,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var inv domain.Invocation
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	// a run is never cancelled mid-flight, even if the caller goes away
	resp := s.invoker.Run(context.WithoutCancel(r.Context()), inv)
	s.log.Info("invocation served", "status", resp.StatusCode, "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, resp.StatusCode, resp)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filter := domain.IncidentFilter{
		VendorKey: domain.NormalizeVendor(r.URL.Query().Get("vendor")),
		Limit:     clampInt(r.URL.Query().Get("limit"), defaultListLimit, maxListLimit),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be RFC3339"})
			return
		}
		filter.Since = since
	}

	store, err := s.stores.Open(ctx)
	if err != nil {
		s.log.Error("open store", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	defer store.Close()

	incidents, err := store.ListIncidents(ctx, filter)
	if err != nil {
		s.log.Error("list incidents", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	out := make([]incidentView, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, incidentView{
			ID:                      inc.ID,
			Title:                   inc.Title,
			VendorKey:               inc.VendorKey,
			Product:                 inc.Product,
			PublishedAt:             inc.PublishedAt,
			ExploitDescription:      inc.ExploitDescription,
			Summary:                 inc.Summary,
			SourceURL:               inc.SourceURL,
			ImageURL:                inc.ImageURL,
			IncidentType:            inc.IncidentType,
			AffectedService:         inc.AffectedService,
			PotentiallyImpactedData: inc.PotentiallyImpactedData,
			Status:                  inc.Status,
			SourceLabel:             inc.SourceLabel,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
