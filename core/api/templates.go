package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/wedcards/core/access"
	"github.com/relabs-tech/wedcards/core/api/schemas"
	"github.com/relabs-tech/wedcards/core/logger"
	"github.com/relabs-tech/wedcards/core/ordering"
)

// TemplateCatalog is the ordered catalog of invitation templates. All templates
// belong to CatalogGroup.
type TemplateCatalog interface {
	GetGroup(ctx context.Context, groupID uuid.UUID) ([]ordering.Item, error)
	Search(ctx context.Context, groupID uuid.UUID, term string) ([]ordering.Item, error)
	Get(ctx context.Context, groupID, itemID uuid.UUID) (ordering.Item, error)
	Append(ctx context.Context, groupID uuid.UUID, payload string) (ordering.Item, error)
	Move(ctx context.Context, groupID, itemID uuid.UUID, position int) error
	Delete(ctx context.Context, groupID, itemID uuid.UUID) error
}

// CatalogGroup is the group id of the template catalog
var CatalogGroup = uuid.Nil

// limits of a catalog page
const (
	defaultTemplateLimit = 12
	maxTemplateLimit     = 100
)

type templatePage struct {
	search string
	limit  int
	page   int
}

func parseTemplatePage(values url.Values) (templatePage, error) {
	p := templatePage{search: values.Get("search"), limit: defaultTemplateLimit, page: 1}
	if s := values.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 || limit > maxTemplateLimit {
			return p, fmt.Errorf("%w: limit '%s' not within 1..%d", errBadRequest, s, maxTemplateLimit)
		}
		p.limit = limit
	}
	if s := values.Get("page"); s != "" {
		page, err := strconv.Atoi(s)
		if err != nil || page < 1 {
			return p, fmt.Errorf("%w: page '%s'", errBadRequest, s)
		}
		p.page = page
	}
	return p, nil
}

// slice returns the items of the page and the pagination of all items
func (p templatePage) slice(items []ordering.Item) ([]ordering.Item, pagination) {
	total := len(items)
	from := (p.page - 1) * p.limit
	if from > total {
		from = total
	}
	to := from + p.limit
	if to > total {
		to = total
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total-1)/p.limit + 1
	}
	return items[from:to], pagination{Total: total, Page: p.page, Limit: p.limit, TotalPages: totalPages}
}

// admin guards the routes which change the catalog
func (a *API) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		if a.authorizationEnabled {
			auth := access.AuthorizationFromContext(r.Context())
			if auth == nil {
				respondError(w, r, http.StatusUnauthorized, "Unauthorized access", nil)
				return
			}
			if !auth.HasRole(access.RoleAdmin) {
				logger.FromContext(r.Context()).WithField("identity", access.IdentityFromContext(r.Context())).
					Warnln("no admin access to the template catalog")
				respondError(w, r, http.StatusForbidden, "Access forbidden", nil)
				return
			}
		}
		h(w, r)
	}
}

func (a *API) handleTemplates(router *mux.Router) {
	listRoute := "/templates"
	itemRoute := listRoute + "/{template_id}"
	nillog := logger.FromContext(nil)
	nillog.Debugln("  handle template routes:", listRoute, "GET,POST")
	nillog.Debugln("  handle template routes:", itemRoute, "GET,DELETE")
	nillog.Debugln("  handle template routes:", itemRoute+"/position", "PUT")

	templates := router.PathPrefix(listRoute).Subrouter()
	templates.Use(func(h http.Handler) http.Handler {
		return handlers.CompressHandler(h)
	})

	// LIST, public
	templates.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		p, err := parseTemplatePage(r.URL.Query())
		if err != nil {
			fail(w, r, "4750", err)
			return
		}
		var items []ordering.Item
		if p.search != "" {
			items, err = a.templates.Search(r.Context(), CatalogGroup, p.search)
		} else {
			items, err = a.templates.GetGroup(r.Context(), CatalogGroup)
		}
		if err != nil {
			fail(w, r, "4751", err)
			return
		}
		page, pg := p.slice(items)
		w.Header().Set("Pagination-Limit", strconv.Itoa(pg.Limit))
		w.Header().Set("Pagination-Total-Count", strconv.Itoa(pg.Total))
		w.Header().Set("Pagination-Page-Count", strconv.Itoa(pg.TotalPages))
		w.Header().Set("Pagination-Current-Page", strconv.Itoa(pg.Page))
		respondCached(w, r, fmt.Sprintf("Retrieved %d templates successfully", len(page)), page, &pg)
	}).Methods(http.MethodGet)

	// READ, public
	templates.HandleFunc("/{template_id}", func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		templateID, ok := pathID(w, r, "template_id")
		if !ok {
			return
		}
		item, err := a.templates.Get(r.Context(), CatalogGroup, templateID)
		if err != nil {
			fail(w, r, "4752", err)
			return
		}
		respondCached(w, r, "Template retrieved successfully", item, nil)
	}).Methods(http.MethodGet)

	// CREATE, appended to the catalog
	templates.HandleFunc("", a.admin(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Payload string `json:"payload"`
		}
		if err := a.decode(w, r, schemas.Payload, &body); err != nil {
			fail(w, r, "4753", err)
			return
		}
		var item ordering.Item
		err := retry(r.Context(), func() (err error) {
			item, err = a.templates.Append(r.Context(), CatalogGroup, body.Payload)
			return err
		})
		a.record("template_append", err)
		if err != nil {
			fail(w, r, "4754", err)
			return
		}
		respond(w, r, http.StatusCreated, "Template created successfully", item)
	})).Methods(http.MethodPost)

	// DELETE
	templates.HandleFunc("/{template_id}", a.admin(func(w http.ResponseWriter, r *http.Request) {
		templateID, ok := pathID(w, r, "template_id")
		if !ok {
			return
		}
		err := retry(r.Context(), func() error {
			return a.templates.Delete(r.Context(), CatalogGroup, templateID)
		})
		a.record("template_delete", err)
		if err != nil {
			fail(w, r, "4755", err)
			return
		}
		respond(w, r, http.StatusOK, "Template deleted successfully", nil)
	})).Methods(http.MethodDelete)

	// MOVE, changes the index of a template
	templates.HandleFunc("/{template_id}/position", a.admin(func(w http.ResponseWriter, r *http.Request) {
		templateID, ok := pathID(w, r, "template_id")
		if !ok {
			return
		}
		var body struct {
			Position int `json:"position"`
		}
		if err := a.decode(w, r, schemas.Move, &body); err != nil {
			fail(w, r, "4756", err)
			return
		}
		err := retry(r.Context(), func() error {
			return a.templates.Move(r.Context(), CatalogGroup, templateID, body.Position)
		})
		a.record("template_move", err)
		if err != nil {
			fail(w, r, "4757", err)
			return
		}
		items, err := a.templates.GetGroup(r.Context(), CatalogGroup)
		if err != nil {
			fail(w, r, "4758", err)
			return
		}
		respond(w, r, http.StatusOK, "Template moved successfully", items)
	})).Methods(http.MethodPut)
}
