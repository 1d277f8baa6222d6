package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"casedesk.org/internal/apperr"
	"casedesk.org/internal/audit"
	"casedesk.org/internal/audit/anomaly"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/cases"
	"casedesk.org/internal/draft"
	"casedesk.org/internal/obs"
	"casedesk.org/internal/send"
)

const serviceName = "casedesk-api"

// ReadyProbe: простая проверка готовности (например, ping БД).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Services are the domain entry points the API exposes.
type Services struct {
	Auth    auth.Resolver
	Cases   *cases.Service
	Drafts  *draft.Service
	Sends   *send.Gate
	Audit   *audit.Viewer
	Scanner *anomaly.Scanner
}

// API: HTTP слой.
type API struct {
	router     chi.Router
	svc        Services
	readyProbe readinessChecker
	version    string
	logger     *zap.Logger

	rateBurst  int
	ratePerSec int
	maxBody    int64
	proxies    []netip.Prefix
}

// Option configures the API.
type Option func(*API)

func WithRateLimit(perSecond, burst int) Option {
	return func(a *API) {
		if perSecond > 0 && burst > 0 {
			a.ratePerSec, a.rateBurst = perSecond, burst
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithTrustedProxies lists the reverse proxies whose X-Forwarded-For is
// believed. Without it the client IP is always the connection peer.
func WithTrustedProxies(prefixes ...netip.Prefix) Option {
	return func(a *API) {
		a.proxies = append(a.proxies, prefixes...)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(svc Services, rp readinessChecker, version string, opts ...Option) *API {
	a := &API{
		svc:        svc,
		readyProbe: rp,
		version:    version,
		logger:     obs.Logger(),
		rateBurst:  40,
		ratePerSec: 20,
		maxBody:    1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "httpapi"))

	r := chi.NewRouter()
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(a.withAuth)

		api.Get("/cases", a.listCases)
		api.Post("/cases", a.createCase)
		api.Get("/cases/{id}", a.getCase)
		api.Get("/cases/{id}/creditors", a.listCreditors)
		api.Post("/cases/{id}/creditors", a.addCreditor)
		api.Get("/cases/{id}/drafts", a.listDrafts)
		api.Post("/cases/{id}/drafts", a.createDraft)

		api.Get("/drafts/{id}", a.getDraft)
		api.Post("/drafts/{id}/approve", a.reviewDraft)

		api.Post("/send", a.executeSend)
		api.Get("/send", a.listSends)

		api.Get("/audit/logs", a.auditLogs)
		api.Get("/audit/anomalies", a.auditAnomalies)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, apperr.CodeNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	a.router = r
	return a
}

// Handler возвращает http.Handler для сервера (без доп. аргументов).
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = Logging(a.logger)(h)
	h = RequestID(a.proxies)(h)
	// оборачиваем весь роутер метриками
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		a.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON object and rejects unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Invalid("", "request body exceeds %d bytes", maxErr.Limit)
		}
		return apperr.Invalid("", "invalid JSON body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Invalid("", "request body must contain a single JSON object")
	}
	return nil
}

// principal returns the authenticated caller. withAuth guarantees one on /v1.
func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return auth.Principal{}, apperr.Unauthenticated("missing principal")
	}
	return p, nil
}
