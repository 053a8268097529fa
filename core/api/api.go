// Package api serves the ordered wedding contents and the RSVP forms over HTTP.
//
// All routes live below /weddings/{wedding_id}. Reading contents and submitting
// a form are public, everything else requires the editor role for the wedding
// when authorization is enabled. The template catalog below /templates is public
// to read and changed by admins only. Responses use a uniform envelope:
//
//	{"success": true, "message": "...", "data": ..., "timestamp": "..."}
//	{"success": false, "message": "...", "code": 404, "details": ..., "timestamp": "..."}
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/wedcards/core/access"
	"github.com/relabs-tech/wedcards/core/api/schemas"
	"github.com/relabs-tech/wedcards/core/csql"
	"github.com/relabs-tech/wedcards/core/logger"
	"github.com/relabs-tech/wedcards/core/metrics"
	"github.com/relabs-tech/wedcards/core/ordering"
	"github.com/relabs-tech/wedcards/core/rsvp"
	"github.com/relabs-tech/wedcards/core/schema"
)

// ContentManager is the ordered collection of a wedding's contents
type ContentManager interface {
	GetGroup(ctx context.Context, groupID uuid.UUID) ([]ordering.Item, error)
	Search(ctx context.Context, groupID uuid.UUID, term string) ([]ordering.Item, error)
	Append(ctx context.Context, groupID uuid.UUID, payload string) (ordering.Item, error)
	BulkAppend(ctx context.Context, groupID uuid.UUID, payloads []string) ([]ordering.Item, error)
	InsertAt(ctx context.Context, groupID uuid.UUID, position int, payload string) (ordering.Item, error)
	UpdatePayload(ctx context.Context, groupID, itemID uuid.UUID, payload string) (ordering.Item, error)
	Delete(ctx context.Context, groupID, itemID uuid.UUID) error
	Reorder(ctx context.Context, groupID uuid.UUID, placements []ordering.Placement) error
	Move(ctx context.Context, groupID, itemID uuid.UUID, position int) error
	Clone(ctx context.Context, sourceID, destinationID uuid.UUID) (int, error)
	Clear(ctx context.Context, groupID uuid.UUID) (int, error)
	Validate(ctx context.Context, groupID uuid.UUID) (ordering.Report, error)
	Fix(ctx context.Context, groupID uuid.UUID) (bool, error)
	Stats(ctx context.Context, groupID uuid.UUID) (ordering.Stats, error)
	Dispatch(ctx context.Context, cmd ordering.Command) ([]ordering.Item, error)
}

// FormManager stores the guests' responses
type FormManager interface {
	Submit(ctx context.Context, f rsvp.Form) (rsvp.Form, error)
	HasResponded(ctx context.Context, weddingID uuid.UUID, email string) (bool, error)
	InviteBulk(ctx context.Context, weddingID uuid.UUID, invitations []rsvp.Invitation) ([]rsvp.Form, error)
	UpdateResponse(ctx context.Context, weddingID, formID uuid.UUID, r rsvp.Response) (rsvp.Form, error)
	Remove(ctx context.Context, weddingID, formID uuid.UUID) error
	List(ctx context.Context, weddingID uuid.UUID, q rsvp.Query) (rsvp.Page, error)
	Statistics(ctx context.Context, weddingID uuid.UUID) (rsvp.Statistics, error)
}

// Builder is a builder helper for the API
type Builder struct {
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Contents is the ordered collection of contents. This is mandatory.
	Contents ContentManager
	// Forms is the RSVP store. This is mandatory.
	Forms FormManager
	// Templates is the catalog of invitation templates, served below /templates. Optional.
	Templates TemplateCatalog
	// Validator validates the request bodies. Defaults to the embedded schemas.
	Validator *schema.Validator
	// Metrics records HTTP and operation metrics and serves /metrics. Optional.
	Metrics *metrics.Metrics
	// AuthorizationEnabled requires the editor role for all non public routes
	AuthorizationEnabled bool
	// RSVPRate is the number of form submissions per second and client. Defaults to 1.
	RSVPRate rate.Limit
	// RSVPBurst is the burst of form submissions per client. Defaults to 5.
	RSVPBurst int
	// TrustForwardedFor keys the rate limit on X-Forwarded-For. Set it only behind a
	// proxy which overwrites the header.
	TrustForwardedFor bool
	// Ready reports whether the service can serve requests, used by /health. Optional.
	Ready func(ctx context.Context) error
}

// API is the HTTP adapter of the service
type API struct {
	router               *mux.Router
	contents             ContentManager
	forms                FormManager
	templates            TemplateCatalog
	validator            *schema.Validator
	metrics              *metrics.Metrics
	authorizationEnabled bool
	limiter              *clientLimiter
	ready                func(ctx context.Context) error
}

// New creates the API and adds its routes to the router
func New(b *Builder) (*API, error) {
	if b.Router == nil {
		return nil, errors.New("Router is missing")
	}
	if b.Contents == nil || b.Forms == nil {
		return nil, errors.New("Contents and Forms are mandatory")
	}
	validator := b.Validator
	if validator == nil {
		var err error
		if validator, err = schema.NewValidatorFromFS(schemas.FS); err != nil {
			return nil, err
		}
	}
	rsvpRate, rsvpBurst := b.RSVPRate, b.RSVPBurst
	if rsvpRate <= 0 {
		rsvpRate = 1
	}
	if rsvpBurst <= 0 {
		rsvpBurst = 5
	}

	a := &API{
		router:               b.Router,
		contents:             b.Contents,
		forms:                b.Forms,
		templates:            b.Templates,
		validator:            validator,
		metrics:              b.Metrics,
		authorizationEnabled: b.AuthorizationEnabled,
		limiter:              newClientLimiter(rsvpRate, rsvpBurst, b.TrustForwardedFor),
		ready:                b.Ready,
	}

	a.router.Use(corsMiddleware)
	// preflight requests for every route, answered by the CORS middleware
	a.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	if a.metrics != nil {
		a.router.Use(a.metrics.Middleware)
		a.router.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	}
	a.router.HandleFunc("/health", a.health).Methods(http.MethodGet)

	weddings := a.router.PathPrefix("/weddings/{wedding_id}").Subrouter()
	weddings.Use(func(h http.Handler) http.Handler {
		return handlers.CompressHandler(h)
	})
	a.handleContents(weddings)
	a.handleForms(weddings)
	if a.templates != nil {
		a.handleTemplates(a.router)
	}
	return a, nil
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(r.Context()); err != nil {
			logger.FromContext(r.Context()).WithError(err).Errorln("Error 4790: service not ready")
			respondError(w, r, http.StatusServiceUnavailable, "service not ready", nil)
			return
		}
	}
	respond(w, r, http.StatusOK, "ok", nil)
}

func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, If-None-Match, X-Request-ID")
		w.Header().Set("Access-Control-Expose-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method, " (handled by CORS middleware)")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// parseWeddingID parses the wedding id of the route, answering 400 if it is malformed
func parseWeddingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return pathID(w, r, "wedding_id")
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// authorize answers 401 or 403 and returns false unless the caller may edit the
// wedding
func (a *API) authorize(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) bool {
	if !a.authorizationEnabled {
		return true
	}
	auth := access.AuthorizationFromContext(r.Context())
	if auth == nil {
		respondError(w, r, http.StatusUnauthorized, "Unauthorized access", nil)
		return false
	}
	if !auth.CanEdit(weddingID) {
		logger.FromContext(r.Context()).WithField("identity", access.IdentityFromContext(r.Context())).
			Warnln("no edit access to wedding", weddingID)
		respondError(w, r, http.StatusForbidden, "Access forbidden", nil)
		return false
	}
	return true
}

// retry runs a mutation, repeating it on serialization failures and deadlocks
func retry(ctx context.Context, op func() error) error {
	return csql.RetryTransient(ctx, op)
}

// editor wraps a handler with the wedding id of the route and the editor check
func (a *API) editor(h func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		weddingID, ok := parseWeddingID(w, r)
		if !ok || !a.authorize(w, r, weddingID) {
			return
		}
		h(w, r, weddingID)
	}
}
