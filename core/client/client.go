// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast access to the wedcards REST api

Created with NewWithRouter, the client talks directly to the mux router instead of
marshalling HTTP, which makes it perfectly suited for unit tests. Created with
NewWithURL it makes real HTTP requests.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/wedcards/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	auth       *access.Authorization
	ctx        context.Context

	defaultHeaders map[string]string
}

// Error is a non successful response of the API
type Error struct {
	Status  int
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithAuthorization() adds an authorization to the request context.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router:         router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            url,
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.defaultHeaders {
		if k != key {
			headers[k] = v
		}
	}
	c.defaultHeaders = headers
	return c
}

// WithToken returns a new client sending the bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithAdminAuthorization returns a new client with admin authorizations
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithAdminAuthorization() Client {
	return c.WithAuthorization(&access.Authorization{Roles: []string{access.RoleAdmin}})
}

// WithEditor returns a new client which may edit the given weddings
// (this works only directly against the mux router)
func (c Client) WithEditor(weddings ...uuid.UUID) Client {
	return c.WithAuthorization(&access.Authorization{Roles: []string{access.RoleEditor}, Weddings: weddings})
}

// WithAuthorization returns a new client with specific authorizations
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithAuthorization(auth *access.Authorization) Client {
	c.auth = auth
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context of the client
func (c Client) Context() context.Context {
	ctx := c.ctx
	if c.ctx == nil {
		ctx = context.Background()
	}
	if c.auth != nil {
		ctx = access.ContextWithAuthorization(ctx, c.auth)
		if c.auth.Identity != "" {
			ctx = access.ContextWithIdentity(ctx, c.auth.Identity)
		}
	}
	return ctx
}

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Details    json.RawMessage `json:"details"`
	Pagination *Pagination     `json:"pagination"`
}

// Pagination is the page information of a list response
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Response is the status and header of a call
type Response struct {
	Status     int
	Header     http.Header
	Pagination *Pagination
}

// Do executes a request against path and unmarshals the data of the envelope into
// result, which may be nil. A response with a status of 300 or higher is returned
// as *Error, except 304 which has no body.
func (c Client) Do(method, path string, headers map[string]string, body interface{}, result interface{}) (Response, error) {
	var reader io.Reader
	if body != nil {
		j, ok := body.([]byte)
		if !ok {
			var err error
			if j, err = json.Marshal(body); err != nil {
				return Response{Status: http.StatusBadRequest}, fmt.Errorf("%s to %s: %w", method, path, err)
			}
		}
		reader = bytes.NewReader(j)
	}

	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return Response{}, err
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	for key, value := range headers {
		r.Header.Add(key, value)
	}

	var res *http.Response
	var resBody []byte
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		res = rec.Result()
		resBody = rec.Body.Bytes()
	} else {
		if c.token != "" {
			r.Header.Add("Authorization", "Bearer "+c.token)
		}
		res, err = c.httpClient.Do(r)
		if err != nil {
			return Response{Status: http.StatusInternalServerError}, err
		}
		defer res.Body.Close()
		if resBody, err = io.ReadAll(res.Body); err != nil {
			return Response{Status: res.StatusCode, Header: res.Header}, err
		}
	}

	response := Response{Status: res.StatusCode, Header: res.Header}
	if res.StatusCode == http.StatusNotModified {
		return response, nil
	}

	var env envelope
	if err := json.Unmarshal(resBody, &env); err != nil {
		return response, fmt.Errorf("%s %s: status %d, cannot parse response '%s': %w", method, path, res.StatusCode, resBody, err)
	}
	if res.StatusCode >= http.StatusMultipleChoices {
		return response, &Error{Status: res.StatusCode, Message: env.Message, Details: env.Details}
	}
	response.Pagination = env.Pagination
	if result != nil && len(env.Data) > 0 {
		err = json.Unmarshal(env.Data, result)
	}
	return response, err
}

// Wedding returns a client for the resources of one wedding
func (c Client) Wedding(id uuid.UUID) Wedding {
	return Wedding{client: c, path: "/weddings/" + id.String()}
}

// Wedding is the client for the resources of one wedding
type Wedding struct {
	client Client
	path   string
}

// Contents returns the client for the wedding's contents
func (w Wedding) Contents() Contents {
	return Contents{client: w.client, path: w.path + "/contents"}
}

// Forms returns the client for the wedding's forms
func (w Wedding) Forms() Forms {
	return Forms{client: w.client, path: w.path + "/forms"}
}

// Templates returns the client for the template catalog
func (c Client) Templates() Templates {
	return Templates{client: c, path: "/templates"}
}

func withQuery(path string, values url.Values) string {
	if len(values) == 0 {
		return path
	}
	return path + "?" + values.Encode()
}
