package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/billbatista/fieldmiles/auth"
	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/ingest"
	"github.com/billbatista/fieldmiles/logger"
	"github.com/billbatista/fieldmiles/metrics"
	"github.com/billbatista/fieldmiles/middleware"
	"github.com/billbatista/fieldmiles/session"
	"github.com/billbatista/fieldmiles/trip"
	"github.com/billbatista/fieldmiles/user"
	chimiddleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Config struct {
	PhotoDir      string
	PhotoPrefix   string
	MaxPhotoBytes int64
	SecureCookies bool
	AccessLog     bool
}

type Handler struct {
	ingest   *ingest.Service
	trips    *trip.Service
	users    user.Repository
	sessions session.Repository
	tokens   *auth.JWTService
	events   eventlogger.Sink
	audit    eventlogger.EventLogger
	limiter  *middleware.RateLimiter
	cfg      Config
	log      zerolog.Logger
}

func NewHandler(
	ingestSvc *ingest.Service,
	trips *trip.Service,
	users user.Repository,
	sessions session.Repository,
	tokens *auth.JWTService,
	events eventlogger.Sink,
	audit eventlogger.EventLogger,
	limiter *middleware.RateLimiter,
	cfg Config,
) *Handler {
	if cfg.MaxPhotoBytes <= 0 {
		cfg.MaxPhotoBytes = 10 << 20
	}
	if events == nil {
		events = eventlogger.Discard
	}
	return &Handler{
		ingest:   ingestSvc,
		trips:    trips,
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		events:   events,
		audit:    audit,
		limiter:  limiter,
		cfg:      cfg,
		log:      logger.WithComponent("api"),
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	if h.cfg.AccessLog {
		router.Use(chimiddleware.Logger)
	}
	router.Use(instrument)
	router.Use(middleware.Authenticate(h.tokens, h.sessions, h.users))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", metrics.Handler())

	if h.cfg.PhotoDir != "" && strings.HasPrefix(h.cfg.PhotoPrefix, "/") {
		prefix := strings.TrimSuffix(h.cfg.PhotoPrefix, "/")
		router.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(h.cfg.PhotoDir))))
	}

	router.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.login)
		r.Post("/auth/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.With(h.rateLimit).Post("/readings", h.submitReading)
			r.Get("/trips", h.listTrips)
			r.Get("/trips/{id}", h.getTrip)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)

			r.Get("/readings/{id}", h.getReading)
			r.Patch("/readings/{id}", h.correctReading)
			r.Delete("/readings/{id}", h.deleteReading)
			r.Put("/trips/{id}/final-distance", h.setFinalDistance)
			r.Post("/trips/{id}/approval", h.toggleApproval)
			r.Post("/trips/reconcile", h.reconcileDay)
			r.Post("/users", h.registerUser)
			r.Patch("/users/{id}/active", h.setUserActive)
			if h.audit != nil {
				r.Get("/events", h.listEvents)
			}
		})
	})

	return router
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return h.limiter.Handler(next)
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APIRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(timer.Duration().Seconds())
	})
}
