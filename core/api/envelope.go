package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/relabs-tech/wedcards/core/logger"
	"github.com/relabs-tech/wedcards/core/ordering"
	"github.com/relabs-tech/wedcards/core/rsvp"
	"github.com/relabs-tech/wedcards/core/schema"
)

const maxBodySize = 1 << 20

type successEnvelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
	Pagination *pagination `json:"pagination,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

type errorEnvelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Code      int         `json:"code"`
	Details   interface{} `json:"details"`
	Timestamp time.Time   `json:"timestamp"`
}

type pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	jsonData, _ := json.MarshalWithOption(body, json.DisableHTMLEscape())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}

func respond(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	writeJSON(w, status, successEnvelope{Success: true, Message: message, Data: data, Timestamp: time.Now().UTC()})
}

// respondCached answers a read with an etag over the data. A matching
// If-None-Match is answered with 304 and no body.
func respondCached(w http.ResponseWriter, r *http.Request, message string, data interface{}, page *pagination) {
	jsonData, _ := json.MarshalWithOption(data, json.DisableHTMLEscape())
	if page != nil {
		jsonData = append(jsonData, []byte(strconv.Itoa(page.Total))...)
	}
	etag := bytesToEtag(jsonData)
	w.Header().Set("Etag", etag)
	if ifNoneMatchFound(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope{Success: true, Message: message, Data: data, Pagination: page,
		Timestamp: time.Now().UTC()})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string, details interface{}) {
	writeJSON(w, status, errorEnvelope{Message: message, Code: status, Details: details, Timestamp: time.Now().UTC()})
}

// WriteError answers with the error envelope. It lets middlewares outside this
// package, like the bearer token check, fail the way the routes do.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondError(w, r, status, message, nil)
}

// statusOf maps the error kinds of the domain packages to HTTP status codes.
// Unknown errors are internal.
func statusOf(err error) int {
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, rsvp.ErrInvalidForm):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ordering.ErrNotFound),
		errors.Is(err, rsvp.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ordering.ErrConstraint),
		errors.Is(err, rsvp.ErrAlreadyResponded),
		errors.Is(err, rsvp.ErrAlreadyInvited):
		return http.StatusConflict
	case errors.Is(err, ordering.ErrInvalidPosition),
		errors.Is(err, ordering.ErrInvalidOrder),
		errors.Is(err, ordering.ErrUnknownOperation),
		errors.Is(err, rsvp.ErrInvalidQuery),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// outcome names the error kind for metrics
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ordering.ErrNotFound):
		return "not_found"
	case errors.Is(err, ordering.ErrConstraint):
		return "constraint"
	case errors.Is(err, ordering.ErrInvalidPosition):
		return "invalid_position"
	case errors.Is(err, ordering.ErrInvalidOrder):
		return "invalid_order"
	}
	return "error"
}

// fail answers with the status of the error. code identifies the call site in
// the log for internal errors.
func fail(w http.ResponseWriter, r *http.Request, code string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).WithError(err).Errorln("Error " + code)
		respondError(w, r, status, "Error "+code, nil)
		return
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		respondError(w, r, status, "Validation failed", verr.Details)
		return
	}
	respondError(w, r, status, err.Error(), nil)
}

var errBadRequest = errors.New("bad request")

// decode validates the body against the schema and unmarshals it into v
func (a *API) decode(w http.ResponseWriter, r *http.Request, schemaID string, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return fmt.Errorf("%w: body is not valid json", errBadRequest)
	}
	if err = a.validator.ValidateBytes(body, schemaID); err != nil {
		return err
	}
	if err = json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func bytesToEtag(b []byte) string {
	return "\"" + strconv.FormatUint(xxhash.Sum64(b), 16) + "\""
}

// ifNoneMatchFound returns true if etag is found in ifNoneMatch. The format of ifNoneMatch is one
// of the following:
// If-None-Match: "<etag_value>"
// If-None-Match: "<etag_value>", "<etag_value>", ...
// If-None-Match: *
func ifNoneMatchFound(ifNoneMatch, etag string) bool {
	ifNoneMatch = strings.Trim(ifNoneMatch, " ")
	if len(ifNoneMatch) == 0 {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	t := strings.Trim(etag, " \"")
	for _, s := range strings.Split(ifNoneMatch, ",") {
		if strings.Trim(s, " \"") == t {
			return true
		}
	}
	return false
}
