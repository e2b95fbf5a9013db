package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"hookrelay.io/internal/apierr"
	"hookrelay.io/internal/apps"
	"hookrelay.io/internal/audit"
	"hookrelay.io/internal/auth"
	"hookrelay.io/internal/obs"
)

const (
	serviceName  = "hookrelay"
	maxBodyBytes = 1 << 20
)

// ReadyProbe reports whether dependencies are reachable. A nil probe is always ready.
type ReadyProbe func(ctx context.Context) error

// Options configures the HTTP layer.
type Options struct {
	Version       string
	Ready         ReadyProbe
	RateBurst     int
	RatePerSecond int

	// TrustedProxies gates X-Forwarded-For; see TrustedProxies.ClientIP.
	TrustedProxies TrustedProxies
}

// API is the HTTP layer.
type API struct {
	router *mux.Router
	tokens *auth.Tokens
	store  apps.Store
	opts   Options

	orgGuard    auth.Guard
	orgAppGuard auth.Guard
	appGuard    auth.Guard
}

func New(tokens *auth.Tokens, store apps.Store, opts Options) *API {
	if opts.RateBurst <= 0 {
		opts.RateBurst = 100
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 50
	}
	a := &API{
		router:      mux.NewRouter(),
		tokens:      tokens,
		store:       store,
		opts:        opts,
		orgGuard:    auth.NewOrganizationGuard(tokens),
		orgAppGuard: auth.NewOrganizationAppGuard(tokens, store),
		appGuard:    auth.NewApplicationGuard(tokens, store),
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/app", a.guarded("organization", a.orgGuard, a.listApps)).Methods(http.MethodGet)
	v1.HandleFunc("/app", a.guarded("organization", a.orgGuard, a.createApp)).Methods(http.MethodPost)
	v1.HandleFunc("/app/{app_id}", a.guarded("application", a.appGuard, a.getApp)).Methods(http.MethodGet)
	v1.HandleFunc("/app/{app_id}", a.guarded("organization_app", a.orgAppGuard, a.deleteApp)).Methods(http.MethodDelete)
	v1.HandleFunc("/app/{app_id}/secret/{name}", a.guarded("application", a.appGuard, a.putSecret)).Methods(http.MethodPut)
	v1.HandleFunc("/app/{app_id}/secret/{name}", a.guarded("application", a.appGuard, a.getSecret)).Methods(http.MethodGet)
	v1.HandleFunc("/auth/app-portal-access/{app_id}", a.guarded("organization_app", a.orgAppGuard, a.appPortalAccess)).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, r, apierr.NotFound())
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, apierr.Body{Code: "method_not_allowed", Detail: "Method Not Allowed"})
	})
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, maxBodyBytes)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSecond)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = ClientIP(h, a.opts.TrustedProxies)
	h = RequestID(h)
	return obs.Instrument(h)
}

type guardedFunc func(w http.ResponseWriter, r *http.Request, authz auth.Authorization)

// guarded runs g before fn and records the decision.
func (a *API) guarded(name string, g auth.Guard, fn guardedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, _ := auth.BearerToken(r.Header.Get("Authorization"))
		appID, hasAppID := mux.Vars(r)["app_id"]
		authz, err := g.Authorize(r.Context(), auth.Request{Token: token, AppID: appID, HasAppID: hasAppID})
		if err != nil {
			e := apierr.From(err)
			obs.ObserveAuthDecision(name, e.Kind.String())
			_ = audit.LogEvent(r.Context(), "auth.denied", map[string]any{
				"guard":  name,
				"reason": e.Kind.String(),
				"path":   obs.CanonicalPath(r.URL.Path),
			})
			writeAPIError(w, r, e)
			return
		}
		obs.ObserveAuthDecision(name, "allowed")
		ctx := auth.ContextWithPermissions(r.Context(), authz.Permissions)
		fn(w, r.WithContext(ctx), authz)
	}
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.opts.Ready(ctx); err != nil {
			obs.Logger().WithError(err).Warn("readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// storeError maps store sentinels onto caller-facing kinds.
func storeError(err error) error {
	switch {
	case errors.Is(err, apps.ErrNotFound):
		return apierr.NotFound()
	case errors.Is(err, apps.ErrAlreadyExists):
		return apierr.Conflict("An application with this uid already exists.")
	case errors.Is(err, apps.ErrInvalidInput):
		return apierr.BadRequest("validation", "Invalid application.")
	default:
		return err
	}
}

func writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.From(err)
	if e.Kind == apierr.KindInternal || e.Kind == apierr.KindEncryption {
		cause := errors.Unwrap(e)
		if cause == nil {
			cause = e
		}
		obs.Logger().WithFields(logrus.Fields{
			"request_id": audit.RequestIDFromContext(r.Context()),
			"path":       obs.CanonicalPath(r.URL.Path),
			"kind":       e.Kind.String(),
		}).WithError(cause).Error("request failed")
	}
	writeJSON(w, e.Kind.HTTPStatus(), e.Public())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierr.BadRequest("validation", "Request body is not valid JSON.")
	}
	return nil
}
