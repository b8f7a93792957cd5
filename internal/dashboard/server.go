package dashboard

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"time"

	"loop-dash/internal/market"
	"loop-dash/internal/metrics"
	"loop-dash/internal/strategy"
	"loop-dash/internal/vault"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Source is the market snapshot provider behind the dashboard.
type Source interface {
	Snapshot() market.Snapshot
	Refresh()
}

type Server struct {
	router  *mux.Router
	source  Source
	feed    http.Handler
	page    *template.Template
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewServer builds the dashboard router. feed may be nil, in which case
// /ws is not registered.
func NewServer(source Source, feed http.Handler, m *metrics.Metrics, log *zap.Logger) (*Server, error) {
	if m == nil {
		m = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	page, err := template.ParseFS(templateFiles, "templates/dashboard.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		router:  mux.NewRouter(),
		source:  source,
		feed:    feed,
		page:    page,
		metrics: m,
		log:     log.Named("http"),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.feed != nil {
		s.router.Handle("/ws", s.feed).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/markets", s.handleMarkets).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/vaults", s.handleVaults).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/strategies", s.handleStrategies).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/quote", s.handleQuote).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost, http.MethodOptions)

	s.router.Use(requestIDMiddleware)
	s.router.Use(corsMiddleware)
	s.router.Use(loggingMiddleware(s.log))
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	view := Build(s.source.Snapshot(), ParseInput(r.URL.Query()))
	if view.Status == StatusReady {
		s.metrics.Quotes.Inc()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := s.page.Execute(w, view); err != nil {
		s.log.Warn("render dashboard failed", zap.Error(err))
	}
}

type healthResponse struct {
	Status    Status    `json:"status"`
	Markets   int       `json:"markets"`
	UpdatedAt time.Time `json:"updatedAt"`
	FromCache bool      `json:"fromCache"`
	Error     string    `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	resp := healthResponse{
		Status:    snapshotStatus(snap),
		Markets:   len(snap.Markets),
		UpdatedAt: snap.UpdatedAt,
		FromCache: snap.FromCache,
	}
	code := http.StatusOK
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

type marketsResponse struct {
	Status    Status          `json:"status"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
	FromCache bool            `json:"fromCache"`
	Markets   []market.Market `json:"markets"`
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	resp := marketsResponse{
		Status:    snapshotStatus(snap),
		UpdatedAt: snap.UpdatedAt,
		FromCache: snap.FromCache,
		Markets:   snap.Markets,
	}
	if resp.Markets == nil {
		resp.Markets = []market.Market{}
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVaults(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	selected := CanonicalMarketID(r.URL.Query().Get("vault"))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": snapshotStatus(snap),
		"vaults": vault.Options(snap.Markets, selected),
	})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"strategies": strategy.Catalog(),
		"default":    strategy.DefaultID,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	view := Build(s.source.Snapshot(), ParseInput(r.URL.Query()))
	if view.Status != StatusReady {
		s.writeJSON(w, http.StatusServiceUnavailable, view)
		return
	}
	s.metrics.Quotes.Inc()
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.source.Refresh()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response failed", zap.Error(err))
	}
}

func snapshotStatus(snap market.Snapshot) Status {
	switch {
	case snap.Loading:
		return StatusLoading
	case snap.Err != nil:
		return StatusError
	default:
		return StatusReady
	}
}
