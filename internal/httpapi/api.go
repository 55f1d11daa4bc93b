// Package httpapi is the HTTP surface: session cookies, routing and the
// mapping from domain errors to statuses.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"worklane.io/internal/attach"
	"worklane.io/internal/auth"
	"worklane.io/internal/notify"
	"worklane.io/internal/obs"
	"worklane.io/internal/requirement"
	"worklane.io/internal/task"
)

// ReadyProbe reports process readiness (e.g. DB reachability).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the API's collaborators and switches.
type Config struct {
	Auth         *auth.Service
	Tasks        *task.Service
	Requirements *requirement.Service
	Files        *attach.Store
	Notify       notify.Sender

	ReadyProbe    ReadyProbe
	Version       string
	SecureCookies bool
}

// API is the HTTP layer.
type API struct {
	mux           *http.ServeMux
	auth          *auth.Service
	tasks         *task.Service
	requirements  *requirement.Service
	files         *attach.Store
	notify        notify.Sender
	readyProbe    ReadyProbe
	version       string
	secureCookies bool
}

func New(cfg Config) *API {
	a := &API{
		mux:           http.NewServeMux(),
		auth:          cfg.Auth,
		tasks:         cfg.Tasks,
		requirements:  cfg.Requirements,
		files:         cfg.Files,
		notify:        cfg.Notify,
		readyProbe:    cfg.ReadyProbe,
		version:       cfg.Version,
		secureCookies: cfg.SecureCookies,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/me", a.handleMe)

	// rbac
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/members", a.handleMembers)
	a.mux.HandleFunc("/v1/members/", a.handleMemberResource)
	a.mux.HandleFunc("/v1/clients", a.handleClients)

	// work items
	a.mux.HandleFunc("/v1/tasks", a.handleTasks)
	a.mux.HandleFunc("/v1/tasks/", a.handleTaskResource)

	// requirements
	a.mux.HandleFunc("/v1/requirements", a.handleRequirements)
	a.mux.HandleFunc("/v1/requirements/", a.handleRequirementResource)

	// signed attachment downloads
	a.mux.HandleFunc("/v1/files/download", a.handleFileDownload)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withSession(a.mux)
	h = MaxBodyBytes(h, 16<<20)
	h = RateLimit(h, 100, 50)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "worklane-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "worklane-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// identity pulls the authenticated identity placed by withSession.
func identityFrom(r *http.Request) (*auth.Identity, bool) {
	return auth.IdentityFromContext(r.Context())
}
