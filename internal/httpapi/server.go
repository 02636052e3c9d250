package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/catalog"
	"github.com/hamed0406/serverwatch/internal/display"
	"github.com/hamed0406/serverwatch/internal/domain"
	apimw "github.com/hamed0406/serverwatch/internal/httpapi/middleware"
	"github.com/hamed0406/serverwatch/internal/registry"
	"github.com/hamed0406/serverwatch/internal/resolve"
	"github.com/hamed0406/serverwatch/internal/service"
)

type Server struct {
	Logger   *zap.Logger
	Svc      *service.Service
	Board    *display.Board
	Gatherer prometheus.Gatherer
	Metrics  *apimw.HTTPMetrics
}

func NewServer(l *zap.Logger, svc *service.Service, board *display.Board, g prometheus.Gatherer, m *apimw.HTTPMetrics) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Svc: svc, Board: board, Gatherer: g, Metrics: m}
}

// Router wires every route. Reads and tenant commands take any key; catalog
// changes take an admin key. Only /api is rate limited.
func (s *Server) Router(keys apimw.Keys, publicRPM, publicBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(apimw.Observe(s.Logger, s.Metrics, "/healthz", "/metrics"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.Board != nil {
		r.Get("/ws/board", s.Board.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(publicRPM, publicBurst))
		r.Use(apimw.RequireAny(keys))

		r.Get("/targets", s.handleListTargets)
		r.With(apimw.RequireAdmin(keys)).Post("/targets", s.handleAddTarget)
		r.With(apimw.RequireAdmin(keys)).Delete("/targets/{query}", s.handleRemoveTarget)

		r.Get("/players/{player}", s.handleFindPlayer)
		r.Get("/board", s.handleBoard)

		r.Route("/tenants/{tenant}", func(r chi.Router) {
			admin := apimw.RequireAdmin(keys)

			r.Get("/subscriptions", s.handleList)
			r.With(admin).Post("/subscriptions", s.handleTrack)
			r.With(admin).Delete("/subscriptions/{query}", s.handleUntrack)
			r.Get("/status/{query}", s.handleStatus)
			r.Put("/mute", s.handleMuteAll(true))
			r.Delete("/mute", s.handleMuteAll(false))
			r.Put("/mute/{query}", s.handleMute(true))
			r.Delete("/mute/{query}", s.handleMute(false))
			// the channel is a URL the server POSTs to
			r.With(admin).Put("/channel", s.handleSetChannel)
		})
	})

	return r
}

type errorBody struct {
	Error   string            `json:"error"`
	Matches []domain.TargetID `json:"matches,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps core errors onto HTTP statuses.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var amb *resolve.AmbiguousError
	switch {
	case errors.As(err, &amb):
		status = http.StatusConflict
		body.Matches = amb.Matches
	case errors.Is(err, resolve.ErrNotFound),
		errors.Is(err, registry.ErrNotSubscribed),
		errors.Is(err, registry.ErrUnknownTarget),
		errors.Is(err, service.ErrUnknownTenant):
		status = http.StatusNotFound
	case errors.Is(err, resolve.ErrNeedsRefinement), errors.Is(err, catalog.ErrInvalid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, registry.ErrAlreadySubscribed),
		errors.Is(err, catalog.ErrExists),
		errors.Is(err, service.ErrStillSubscribed):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.Logger.Error("http_internal_error", zap.String("path", r.URL.Path), zap.Error(err))
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return false
	}
	return true
}

func tenantOf(r *http.Request) domain.TenantID {
	return domain.TenantID(chi.URLParam(r, "tenant"))
}

// ---- catalog ----

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Svc.Targets())
}

type addPayload struct {
	ID   string `json:"id"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	var p addPayload
	if !decode(w, r, &p) {
		return
	}
	t, err := s.Svc.AddTarget(r.Context(), domain.TargetID(strings.TrimSpace(p.ID)), strings.TrimSpace(p.Host), p.Port)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleRemoveTarget(w http.ResponseWriter, r *http.Request) {
	id, err := s.Svc.RemoveTarget(r.Context(), chi.URLParam(r, "query"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": id})
}

// ---- lookups ----

func (s *Server) handleFindPlayer(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	server := r.URL.Query().Get("server")
	if server == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "server query parameter is required"})
		return
	}
	id, found, err := s.Svc.FindPlayer(server, player)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": player, "online": found, "target": id})
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	if s.Board == nil {
		writeJSON(w, http.StatusOK, []display.Label{})
		return
	}
	writeJSON(w, http.StatusOK, s.Board.Labels())
}

// ---- tenant commands ----

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Svc.List(tenantOf(r)))
}

type trackPayload struct {
	Query string `json:"query"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var p trackPayload
	if !decode(w, r, &p) {
		return
	}
	id, ref, err := s.Svc.Track(r.Context(), tenantOf(r), p.Query)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"target": id, "display_ref": ref})
}

func (s *Server) handleUntrack(w http.ResponseWriter, r *http.Request) {
	id, err := s.Svc.Untrack(r.Context(), tenantOf(r), chi.URLParam(r, "query"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"untracked": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.Svc.Status(tenantOf(r), chi.URLParam(r, "query"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMute(muted bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			id  domain.TargetID
			err error
		)
		if muted {
			id, err = s.Svc.Mute(r.Context(), tenantOf(r), chi.URLParam(r, "query"))
		} else {
			id, err = s.Svc.Unmute(r.Context(), tenantOf(r), chi.URLParam(r, "query"))
		}
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"target": id, "muted": muted})
	}
}

func (s *Server) handleMuteAll(muted bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Svc.MuteAll(r.Context(), tenantOf(r), muted); err != nil {
			s.writeErr(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"muted": muted})
	}
}

type channelPayload struct {
	Ref string `json:"ref"`
}

func (s *Server) handleSetChannel(w http.ResponseWriter, r *http.Request) {
	var p channelPayload
	if !decode(w, r, &p) {
		return
	}
	if err := s.Svc.SetChannel(r.Context(), tenantOf(r), strings.TrimSpace(p.Ref)); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channel": p.Ref})
}
