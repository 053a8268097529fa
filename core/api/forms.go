package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/wedcards/core/api/schemas"
	"github.com/relabs-tech/wedcards/core/logger"
	"github.com/relabs-tech/wedcards/core/rsvp"
)

func (a *API) handleForms(router *mux.Router) {
	listRoute := "/forms"
	itemRoute := listRoute + "/{form_id}"
	nillog := logger.FromContext(nil)
	nillog.Debugln("  handle form routes:", listRoute, "GET,POST")
	nillog.Debugln("  handle form routes:", listRoute+"/{bulk,statistics,responded}")
	nillog.Debugln("  handle form routes:", itemRoute, "PUT,DELETE")

	// SUBMIT, public and rate limited
	router.HandleFunc(listRoute, a.limiter.limit(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		weddingID, ok := parseWeddingID(w, r)
		if !ok {
			return
		}
		var form rsvp.Form
		if err := a.decode(w, r, schemas.Form, &form); err != nil {
			fail(w, r, "4730", err)
			return
		}
		form.WeddingID = weddingID
		created, err := a.forms.Submit(r.Context(), form)
		if err != nil {
			fail(w, r, "4731", err)
			return
		}
		respond(w, r, http.StatusCreated, "Response recorded successfully", created)
	})).Methods(http.MethodPost)

	// RESPONDED, public and rate limited
	router.HandleFunc(listRoute+"/responded", a.limiter.limit(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		weddingID, ok := parseWeddingID(w, r)
		if !ok {
			return
		}
		email := r.URL.Query().Get("email")
		if email == "" {
			respondError(w, r, http.StatusBadRequest, "missing email", nil)
			return
		}
		responded, err := a.forms.HasResponded(r.Context(), weddingID, email)
		if err != nil {
			fail(w, r, "4740", err)
			return
		}
		respond(w, r, http.StatusOK, "Response status found", map[string]bool{"responded": responded})
	})).Methods(http.MethodGet)

	// LIST
	router.HandleFunc(listRoute, a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		q, err := rsvp.ParseQuery(r.URL.Query())
		if err != nil {
			fail(w, r, "4732", err)
			return
		}
		page, err := a.forms.List(r.Context(), weddingID, q)
		if err != nil {
			fail(w, r, "4733", err)
			return
		}
		w.Header().Set("Pagination-Limit", strconv.Itoa(page.Limit))
		w.Header().Set("Pagination-Total-Count", strconv.Itoa(page.TotalCount))
		w.Header().Set("Pagination-Page-Count", strconv.Itoa(page.PageCount()))
		w.Header().Set("Pagination-Current-Page", strconv.Itoa(page.Page))
		respondCached(w, r, "Forms found", page.Forms, &pagination{
			Total:      page.TotalCount,
			Page:       page.Page,
			Limit:      page.Limit,
			TotalPages: page.PageCount(),
		})
	})).Methods(http.MethodGet)

	// INVITE
	router.HandleFunc(listRoute+"/bulk", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		var body struct {
			Invitations []rsvp.Invitation `json:"invitations"`
		}
		if err := a.decode(w, r, schemas.Invitations, &body); err != nil {
			fail(w, r, "4734", err)
			return
		}
		var forms []rsvp.Form
		err := retry(r.Context(), func() (err error) {
			forms, err = a.forms.InviteBulk(r.Context(), weddingID, body.Invitations)
			return err
		})
		if err != nil {
			fail(w, r, "4735", err)
			return
		}
		respond(w, r, http.StatusCreated, "Guests invited successfully", forms)
	})).Methods(http.MethodPost)

	// STATISTICS
	router.HandleFunc(listRoute+"/statistics", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		st, err := a.forms.Statistics(r.Context(), weddingID)
		if err != nil {
			fail(w, r, "4736", err)
			return
		}
		respond(w, r, http.StatusOK, "Statistics found", st)
	})).Methods(http.MethodGet)

	// UPDATE
	router.HandleFunc(itemRoute, a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		formID, ok := pathID(w, r, "form_id")
		if !ok {
			return
		}
		var response rsvp.Response
		if err := a.decode(w, r, schemas.Response, &response); err != nil {
			fail(w, r, "4737", err)
			return
		}
		form, err := a.forms.UpdateResponse(r.Context(), weddingID, formID, response)
		if err != nil {
			fail(w, r, "4738", err)
			return
		}
		respond(w, r, http.StatusOK, "Form updated successfully", form)
	})).Methods(http.MethodPut)

	// DELETE
	router.HandleFunc(itemRoute, a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		formID, ok := pathID(w, r, "form_id")
		if !ok {
			return
		}
		if err := a.forms.Remove(r.Context(), weddingID, formID); err != nil {
			fail(w, r, "4739", err)
			return
		}
		respond(w, r, http.StatusOK, "Form deleted successfully", nil)
	})).Methods(http.MethodDelete)
}
