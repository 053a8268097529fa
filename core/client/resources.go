package client

import (
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/relabs-tech/wedcards/core/ordering"
	"github.com/relabs-tech/wedcards/core/rsvp"
)

// Contents is the client for the ordered contents of a wedding
type Contents struct {
	client Client
	path   string
}

// List returns the contents in order. A non empty term searches the payloads.
func (c Contents) List(term string) ([]ordering.Item, Response, error) {
	var items []ordering.Item
	values := url.Values{}
	if term != "" {
		values.Set("search", term)
	}
	res, err := c.client.Do(http.MethodGet, withQuery(c.path, values), nil, nil, &items)
	return items, res, err
}

// Append adds a content behind the last one
func (c Contents) Append(payload string) (ordering.Item, error) {
	var item ordering.Item
	_, err := c.client.Do(http.MethodPost, c.path, nil, map[string]interface{}{"payload": payload}, &item)
	return item, err
}

// InsertAt adds a content at position
func (c Contents) InsertAt(position int, payload string) (ordering.Item, error) {
	var item ordering.Item
	_, err := c.client.Do(http.MethodPost, c.path, nil, map[string]interface{}{"payload": payload, "position": position}, &item)
	return item, err
}

// BulkAppend adds the payloads behind the last content
func (c Contents) BulkAppend(payloads []string) ([]ordering.Item, error) {
	var items []ordering.Item
	_, err := c.client.Do(http.MethodPost, c.path+"/bulk", nil, map[string]interface{}{"payloads": payloads}, &items)
	return items, err
}

// Reorder assigns new positions to all contents
func (c Contents) Reorder(placements []ordering.Placement) ([]ordering.Item, error) {
	var items []ordering.Item
	_, err := c.client.Do(http.MethodPut, c.path+"/order", nil, map[string]interface{}{"positions": placements}, &items)
	return items, err
}

// Dispatch executes a command
func (c Contents) Dispatch(cmd ordering.Command) ([]ordering.Item, error) {
	var items []ordering.Item
	_, err := c.client.Do(http.MethodPost, c.path+"/operations", nil, cmd, &items)
	return items, err
}

// Move puts one content at position
func (c Contents) Move(id uuid.UUID, position int) ([]ordering.Item, error) {
	var items []ordering.Item
	_, err := c.client.Do(http.MethodPut, c.path+"/"+id.String()+"/position", nil, map[string]int{"position": position}, &items)
	return items, err
}

// UpdatePayload changes the payload of a content
func (c Contents) UpdatePayload(id uuid.UUID, payload string) (ordering.Item, error) {
	var item ordering.Item
	_, err := c.client.Do(http.MethodPatch, c.path+"/"+id.String(), nil, map[string]string{"payload": payload}, &item)
	return item, err
}

// Delete removes a content
func (c Contents) Delete(id uuid.UUID) error {
	_, err := c.client.Do(http.MethodDelete, c.path+"/"+id.String(), nil, nil, nil)
	return err
}

// Clear removes all contents and returns how many there were
func (c Contents) Clear() (int, error) {
	var result struct {
		Deleted int `json:"deleted"`
	}
	_, err := c.client.Do(http.MethodDelete, c.path, nil, nil, &result)
	return result.Deleted, err
}

// Clone copies the contents of the source wedding behind the last content
func (c Contents) Clone(source uuid.UUID) (int, error) {
	var result struct {
		Copied int `json:"copied"`
	}
	_, err := c.client.Do(http.MethodPost, c.path+"/clone", nil, map[string]uuid.UUID{"source_wedding_id": source}, &result)
	return result.Copied, err
}

// Validate reports whether the positions are dense
func (c Contents) Validate() (ordering.Report, error) {
	var report ordering.Report
	_, err := c.client.Do(http.MethodGet, c.path+"/validation", nil, nil, &report)
	return report, err
}

// Fix renumbers the contents and reports whether anything changed
func (c Contents) Fix() (bool, error) {
	var result struct {
		Changed bool `json:"changed"`
	}
	_, err := c.client.Do(http.MethodPost, c.path+"/fix", nil, nil, &result)
	return result.Changed, err
}

// Stats summarizes the contents
func (c Contents) Stats() (ordering.Stats, error) {
	var stats ordering.Stats
	_, err := c.client.Do(http.MethodGet, c.path+"/statistics", nil, nil, &stats)
	return stats, err
}

// Forms is the client for the RSVP forms of a wedding
type Forms struct {
	client Client
	path   string
}

// Submit records a guest's response
func (f Forms) Submit(form rsvp.Form) (rsvp.Form, error) {
	body := map[string]interface{}{
		"fullname":         form.FullName,
		"email":            form.Email,
		"phone":            form.Phone,
		"number_of_guests": form.NumberOfGuests,
		"guest_of":         form.GuestOf,
	}
	if form.IsAttend != nil {
		body["is_attend"] = *form.IsAttend
	}
	var created rsvp.Form
	_, err := f.client.Do(http.MethodPost, f.path, nil, body, &created)
	return created, err
}

// HasResponded returns true if the guest with this email has responded
func (f Forms) HasResponded(email string) (bool, error) {
	var result struct {
		Responded bool `json:"responded"`
	}
	_, err := f.client.Do(http.MethodGet, withQuery(f.path+"/responded", url.Values{"email": {email}}), nil, nil, &result)
	return result.Responded, err
}

// List returns one page of forms. values are the query parameters, for example
// attendance, side, search, sort, order, limit and page.
func (f Forms) List(values url.Values) ([]rsvp.Form, Response, error) {
	var forms []rsvp.Form
	res, err := f.client.Do(http.MethodGet, withQuery(f.path, values), nil, nil, &forms)
	return forms, res, err
}

// Invite creates pending forms
func (f Forms) Invite(invitations []rsvp.Invitation) ([]rsvp.Form, error) {
	var forms []rsvp.Form
	_, err := f.client.Do(http.MethodPost, f.path+"/bulk", nil, map[string]interface{}{"invitations": invitations}, &forms)
	return forms, err
}

// Update changes the response of a form
func (f Forms) Update(id uuid.UUID, response rsvp.Response) (rsvp.Form, error) {
	body := map[string]interface{}{}
	if response.IsAttend != nil {
		body["is_attend"] = *response.IsAttend
	}
	if response.NumberOfGuests != nil {
		body["number_of_guests"] = *response.NumberOfGuests
	}
	if response.GuestOf != nil {
		body["guest_of"] = *response.GuestOf
	}
	if response.Phone != nil {
		body["phone"] = *response.Phone
	}
	var form rsvp.Form
	_, err := f.client.Do(http.MethodPut, f.path+"/"+id.String(), nil, body, &form)
	return form, err
}

// Remove deletes a form
func (f Forms) Remove(id uuid.UUID) error {
	_, err := f.client.Do(http.MethodDelete, f.path+"/"+id.String(), nil, nil, nil)
	return err
}

// Statistics aggregates the forms
func (f Forms) Statistics() (rsvp.Statistics, error) {
	var st rsvp.Statistics
	_, err := f.client.Do(http.MethodGet, f.path+"/statistics", nil, nil, &st)
	return st, err
}

// Templates is the client for the catalog of invitation templates
type Templates struct {
	client Client
	path   string
}

// List returns a page of the catalog. values may carry search, limit and page.
func (t Templates) List(values url.Values) ([]ordering.Item, Response, error) {
	var items []ordering.Item
	res, err := t.client.Do(http.MethodGet, withQuery(t.path, values), nil, nil, &items)
	return items, res, err
}

// Get returns a single template
func (t Templates) Get(id uuid.UUID) (ordering.Item, error) {
	var item ordering.Item
	_, err := t.client.Do(http.MethodGet, t.path+"/"+id.String(), nil, nil, &item)
	return item, err
}

// Create appends a template to the catalog
func (t Templates) Create(payload string) (ordering.Item, error) {
	var item ordering.Item
	_, err := t.client.Do(http.MethodPost, t.path, nil, map[string]interface{}{"payload": payload}, &item)
	return item, err
}

// Move changes the index of a template and returns the catalog in order
func (t Templates) Move(id uuid.UUID, position int) ([]ordering.Item, error) {
	var items []ordering.Item
	_, err := t.client.Do(http.MethodPut, t.path+"/"+id.String()+"/position", nil, map[string]interface{}{"position": position}, &items)
	return items, err
}

// Delete removes a template
func (t Templates) Delete(id uuid.UUID) error {
	_, err := t.client.Do(http.MethodDelete, t.path+"/"+id.String(), nil, nil, nil)
	return err
}
