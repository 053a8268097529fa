package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/wedcards/core/api/schemas"
	"github.com/relabs-tech/wedcards/core/logger"
	"github.com/relabs-tech/wedcards/core/ordering"
)

func (a *API) record(operation string, err error) {
	if a.metrics != nil {
		a.metrics.RecordOperation(operation, outcome(err))
	}
}

func (a *API) handleContents(router *mux.Router) {
	listRoute := "/contents"
	itemRoute := listRoute + "/{content_id}"
	nillog := logger.FromContext(nil)
	nillog.Debugln("  handle content routes:", listRoute, "GET,POST,DELETE")
	nillog.Debugln("  handle content routes:", listRoute+"/{bulk,order,operations,validation,fix,statistics,clone}")
	nillog.Debugln("  handle content routes:", itemRoute, "PATCH,DELETE")

	// LIST, public
	router.HandleFunc(listRoute, func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		weddingID, ok := parseWeddingID(w, r)
		if !ok {
			return
		}
		var (
			items []ordering.Item
			err   error
		)
		if term := r.URL.Query().Get("search"); term != "" {
			items, err = a.contents.Search(r.Context(), weddingID, term)
		} else {
			items, err = a.contents.GetGroup(r.Context(), weddingID)
		}
		if err != nil {
			fail(w, r, "4701", err)
			return
		}
		w.Header().Set("Pagination-Total-Count", strconv.Itoa(len(items)))
		respondCached(w, r, "Contents found", items, nil)
	}).Methods(http.MethodGet)

	// CREATE, append or insert at position
	router.HandleFunc(listRoute, a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		var body struct {
			Payload  string `json:"payload"`
			Position *int   `json:"position"`
		}
		if err := a.decode(w, r, schemas.Content, &body); err != nil {
			fail(w, r, "4702", err)
			return
		}
		var (
			item ordering.Item
			op   = "append"
		)
		err := retry(r.Context(), func() (err error) {
			if body.Position != nil {
				op = "insert_at"
				item, err = a.contents.InsertAt(r.Context(), weddingID, *body.Position, body.Payload)
			} else {
				item, err = a.contents.Append(r.Context(), weddingID, body.Payload)
			}
			return err
		})
		a.record(op, err)
		if err != nil {
			fail(w, r, "4703", err)
			return
		}
		respond(w, r, http.StatusCreated, "Content created successfully", item)
	})).Methods(http.MethodPost)

	// CLEAR
	router.HandleFunc(listRoute, a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		var deleted int
		err := retry(r.Context(), func() (err error) {
			deleted, err = a.contents.Clear(r.Context(), weddingID)
			return err
		})
		a.record("clear", err)
		if err != nil {
			fail(w, r, "4704", err)
			return
		}
		respond(w, r, http.StatusOK, "Contents deleted successfully", map[string]int{"deleted": deleted})
	})).Methods(http.MethodDelete)

	// BULK CREATE
	router.HandleFunc(listRoute+"/bulk", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		var body struct {
			Payloads []string `json:"payloads"`
		}
		if err := a.decode(w, r, schemas.Bulk, &body); err != nil {
			fail(w, r, "4705", err)
			return
		}
		var items []ordering.Item
		err := retry(r.Context(), func() (err error) {
			items, err = a.contents.BulkAppend(r.Context(), weddingID, body.Payloads)
			return err
		})
		a.record("bulk_append", err)
		if err != nil {
			fail(w, r, "4706", err)
			return
		}
		respond(w, r, http.StatusCreated, "Contents created successfully", items)
	})).Methods(http.MethodPost)

	// REORDER
	router.HandleFunc(listRoute+"/order", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		var body struct {
			Positions []ordering.Placement `json:"positions"`
		}
		if err := a.decode(w, r, schemas.Order, &body); err != nil {
			fail(w, r, "4707", err)
			return
		}
		err := retry(r.Context(), func() error {
			return a.contents.Reorder(r.Context(), weddingID, body.Positions)
		})
		a.record("reorder", err)
		if err != nil {
			fail(w, r, "4708", err)
			return
		}
		a.respondGroup(w, r, weddingID, "Contents reordered successfully")
	})).Methods(http.MethodPut)

	// COMMAND
	router.HandleFunc(listRoute+"/operations", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		var cmd ordering.Command
		if err := a.decode(w, r, schemas.Command, &cmd); err != nil {
			fail(w, r, "4709", err)
			return
		}
		cmd.GroupID = weddingID
		var items []ordering.Item
		err := retry(r.Context(), func() (err error) {
			items, err = a.contents.Dispatch(r.Context(), cmd)
			return err
		})
		a.record(string(cmd.Operation), err)
		if err != nil {
			fail(w, r, "4710", err)
			return
		}
		respond(w, r, http.StatusOK, "Operation executed successfully", items)
	})).Methods(http.MethodPost)

	// VALIDATE
	router.HandleFunc(listRoute+"/validation", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		report, err := a.contents.Validate(r.Context(), weddingID)
		if err != nil {
			fail(w, r, "4711", err)
			return
		}
		respond(w, r, http.StatusOK, "Order validated", report)
	})).Methods(http.MethodGet)

	// FIX
	router.HandleFunc(listRoute+"/fix", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		var changed bool
		err := retry(r.Context(), func() (err error) {
			changed, err = a.contents.Fix(r.Context(), weddingID)
			return err
		})
		a.record("fix", err)
		if err != nil {
			fail(w, r, "4712", err)
			return
		}
		respond(w, r, http.StatusOK, "Order fixed", map[string]bool{"changed": changed})
	})).Methods(http.MethodPost)

	// STATISTICS
	router.HandleFunc(listRoute+"/statistics", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		stats, err := a.contents.Stats(r.Context(), weddingID)
		if err != nil {
			fail(w, r, "4713", err)
			return
		}
		respond(w, r, http.StatusOK, "Statistics found", stats)
	})).Methods(http.MethodGet)

	// CLONE
	router.HandleFunc(listRoute+"/clone", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		var body struct {
			SourceWeddingID uuid.UUID `json:"source_wedding_id"`
		}
		if err := a.decode(w, r, schemas.Clone, &body); err != nil {
			fail(w, r, "4714", err)
			return
		}
		if !a.authorize(w, r, body.SourceWeddingID) {
			return
		}
		var copied int
		err := retry(r.Context(), func() (err error) {
			copied, err = a.contents.Clone(r.Context(), body.SourceWeddingID, weddingID)
			return err
		})
		a.record("clone", err)
		if err != nil {
			fail(w, r, "4715", err)
			return
		}
		respond(w, r, http.StatusCreated, "Contents cloned successfully", map[string]int{"copied": copied})
	})).Methods(http.MethodPost)

	// UPDATE PAYLOAD
	router.HandleFunc(itemRoute, a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		contentID, ok := pathID(w, r, "content_id")
		if !ok {
			return
		}
		var body struct {
			Payload string `json:"payload"`
		}
		if err := a.decode(w, r, schemas.Payload, &body); err != nil {
			fail(w, r, "4716", err)
			return
		}
		item, err := a.contents.UpdatePayload(r.Context(), weddingID, contentID, body.Payload)
		a.record("update", err)
		if err != nil {
			fail(w, r, "4717", err)
			return
		}
		respond(w, r, http.StatusOK, "Content updated successfully", item)
	})).Methods(http.MethodPatch)

	// DELETE
	router.HandleFunc(itemRoute, a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		contentID, ok := pathID(w, r, "content_id")
		if !ok {
			return
		}
		err := retry(r.Context(), func() error {
			return a.contents.Delete(r.Context(), weddingID, contentID)
		})
		a.record("delete", err)
		if err != nil {
			fail(w, r, "4718", err)
			return
		}
		respond(w, r, http.StatusOK, "Content deleted successfully", nil)
	})).Methods(http.MethodDelete)

	// MOVE
	router.HandleFunc(itemRoute+"/position", a.editor(func(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID) {
		contentID, ok := pathID(w, r, "content_id")
		if !ok {
			return
		}
		var body struct {
			Position int `json:"position"`
		}
		if err := a.decode(w, r, schemas.Move, &body); err != nil {
			fail(w, r, "4719", err)
			return
		}
		err := retry(r.Context(), func() error {
			return a.contents.Move(r.Context(), weddingID, contentID, body.Position)
		})
		a.record("move", err)
		if err != nil {
			fail(w, r, "4720", err)
			return
		}
		a.respondGroup(w, r, weddingID, "Content moved successfully")
	})).Methods(http.MethodPut)
}

// respondGroup answers with the wedding's contents after a mutation
func (a *API) respondGroup(w http.ResponseWriter, r *http.Request, weddingID uuid.UUID, message string) {
	items, err := a.contents.GetGroup(r.Context(), weddingID)
	if err != nil {
		fail(w, r, "4721", err)
		return
	}
	respond(w, r, http.StatusOK, message, items)
}
