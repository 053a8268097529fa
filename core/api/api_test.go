package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wedcards/core/access"
	"github.com/relabs-tech/wedcards/core/api"
	"github.com/relabs-tech/wedcards/core/client"
	"github.com/relabs-tech/wedcards/core/metrics"
	"github.com/relabs-tech/wedcards/core/ordering"
	"github.com/relabs-tech/wedcards/core/pointers"
	"github.com/relabs-tech/wedcards/core/rsvp"
)

// fakeContents keeps one ordered list per wedding in memory
type fakeContents struct {
	mu     sync.Mutex
	groups map[uuid.UUID][]ordering.Item
	// failures are returned once each, in order, by the next mutations
	failures []error
	calls    []string
}

func newFakeContents() *fakeContents {
	return &fakeContents{groups: map[uuid.UUID][]ordering.Item{}}
}

func (f *fakeContents) mutate(name string) error {
	f.calls = append(f.calls, name)
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	return nil
}

func (f *fakeContents) renumber(g uuid.UUID) {
	for i := range f.groups[g] {
		f.groups[g][i].Position = i + 1
	}
}

func (f *fakeContents) GetGroup(ctx context.Context, g uuid.UUID) ([]ordering.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ordering.Item{}, f.groups[g]...), nil
}

func (f *fakeContents) Search(ctx context.Context, g uuid.UUID, term string) ([]ordering.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []ordering.Item{}
	for _, it := range f.groups[g] {
		if strings.Contains(it.Payload, term) {
			items = append(items, it)
		}
	}
	return items, nil
}

func (f *fakeContents) Append(ctx context.Context, g uuid.UUID, payload string) (ordering.Item, error) {
	f.mu.Lock()
	n := len(f.groups[g])
	f.mu.Unlock()
	return f.InsertAt(ctx, g, n+1, payload)
}

func (f *fakeContents) BulkAppend(ctx context.Context, g uuid.UUID, payloads []string) ([]ordering.Item, error) {
	var items []ordering.Item
	for _, p := range payloads {
		it, err := f.Append(ctx, g, p)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (f *fakeContents) InsertAt(ctx context.Context, g uuid.UUID, position int, payload string) (ordering.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutate("insert"); err != nil {
		return ordering.Item{}, err
	}
	items := f.groups[g]
	if position < 1 || position > len(items)+1 {
		return ordering.Item{}, fmt.Errorf("position %d: %w", position, ordering.ErrInvalidPosition)
	}
	it := ordering.Item{ID: uuid.New(), GroupID: g, Payload: payload}
	items = append(items, ordering.Item{})
	copy(items[position:], items[position-1:])
	items[position-1] = it
	f.groups[g] = items
	f.renumber(g)
	return f.groups[g][position-1], nil
}

func (f *fakeContents) UpdatePayload(ctx context.Context, g, id uuid.UUID, payload string) (ordering.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.groups[g] {
		if it.ID == id {
			f.groups[g][i].Payload = payload
			return f.groups[g][i], nil
		}
	}
	return ordering.Item{}, ordering.ErrNotFound
}

func (f *fakeContents) Delete(ctx context.Context, g, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutate("delete"); err != nil {
		return err
	}
	for i, it := range f.groups[g] {
		if it.ID == id {
			f.groups[g] = append(f.groups[g][:i], f.groups[g][i+1:]...)
			f.renumber(g)
			return nil
		}
	}
	return fmt.Errorf("content %s: %w", id, ordering.ErrNotFound)
}

func (f *fakeContents) Reorder(ctx context.Context, g uuid.UUID, placements []ordering.Placement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutate("reorder"); err != nil {
		return err
	}
	if len(placements) != len(f.groups[g]) {
		return ordering.ErrInvalidOrder
	}
	byID := map[uuid.UUID]ordering.Item{}
	for _, it := range f.groups[g] {
		byID[it.ID] = it
	}
	items := make([]ordering.Item, len(placements))
	for _, p := range placements {
		it, ok := byID[p.ItemID]
		if !ok {
			return ordering.ErrNotFound
		}
		if p.Position < 1 || p.Position > len(items) || items[p.Position-1].ID != uuid.Nil {
			return ordering.ErrInvalidOrder
		}
		items[p.Position-1] = it
	}
	f.groups[g] = items
	f.renumber(g)
	return nil
}

func (f *fakeContents) Move(ctx context.Context, g, id uuid.UUID, position int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutate("move"); err != nil {
		return err
	}
	items := f.groups[g]
	if position < 1 || position > len(items) {
		return fmt.Errorf("position %d: %w", position, ordering.ErrInvalidPosition)
	}
	for i, it := range items {
		if it.ID == id {
			items = append(items[:i], items[i+1:]...)
			items = append(items[:position-1], append([]ordering.Item{it}, items[position-1:]...)...)
			f.groups[g] = items
			f.renumber(g)
			return nil
		}
	}
	return fmt.Errorf("content %s: %w", id, ordering.ErrNotFound)
}

func (f *fakeContents) Get(ctx context.Context, g, id uuid.UUID) (ordering.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.groups[g] {
		if it.ID == id {
			return it, nil
		}
	}
	return ordering.Item{}, fmt.Errorf("content %s: %w", id, ordering.ErrNotFound)
}

func (f *fakeContents) Clone(ctx context.Context, src, dst uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.groups[src] {
		it.ID, it.GroupID = uuid.New(), dst
		f.groups[dst] = append(f.groups[dst], it)
	}
	f.renumber(dst)
	return len(f.groups[src]), nil
}

func (f *fakeContents) Clear(ctx context.Context, g uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.groups[g])
	delete(f.groups, g)
	return n, nil
}

func (f *fakeContents) Validate(ctx context.Context, g uuid.UUID) (ordering.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var positions []int
	for _, it := range f.groups[g] {
		positions = append(positions, it.Position)
	}
	return ordering.Evaluate(positions), nil
}

func (f *fakeContents) Fix(ctx context.Context, g uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeContents) Stats(ctx context.Context, g uuid.UUID) (ordering.Stats, error) {
	return ordering.Stats{}, errors.New("connection reset")
}

func (f *fakeContents) Dispatch(ctx context.Context, cmd ordering.Command) ([]ordering.Item, error) {
	var err error
	switch cmd.Operation {
	case ordering.KindAppend:
		_, err = f.Append(ctx, cmd.GroupID, cmd.Payload)
	case ordering.KindDelete:
		err = f.Delete(ctx, cmd.GroupID, cmd.ItemID)
	default:
		err = ordering.ErrUnknownOperation
	}
	if err != nil {
		return nil, err
	}
	return f.GetGroup(ctx, cmd.GroupID)
}

// fakeForms answers with canned values
type fakeForms struct {
	submitted []rsvp.Form
	query     rsvp.Query
	err       error
}

func (f *fakeForms) Submit(ctx context.Context, form rsvp.Form) (rsvp.Form, error) {
	if f.err != nil {
		return rsvp.Form{}, f.err
	}
	form.ID = uuid.New()
	f.submitted = append(f.submitted, form)
	return form, nil
}

func (f *fakeForms) HasResponded(ctx context.Context, weddingID uuid.UUID, email string) (bool, error) {
	return email == "jane@example.com", nil
}

func (f *fakeForms) InviteBulk(ctx context.Context, weddingID uuid.UUID, invitations []rsvp.Invitation) ([]rsvp.Form, error) {
	return nil, fmt.Errorf("jane@example.com: %w", rsvp.ErrAlreadyInvited)
}

func (f *fakeForms) UpdateResponse(ctx context.Context, weddingID, formID uuid.UUID, r rsvp.Response) (rsvp.Form, error) {
	return rsvp.Form{}, rsvp.ErrNotFound
}

func (f *fakeForms) Remove(ctx context.Context, weddingID, formID uuid.UUID) error {
	return nil
}

func (f *fakeForms) List(ctx context.Context, weddingID uuid.UUID, q rsvp.Query) (rsvp.Page, error) {
	f.query = q
	return rsvp.Page{Forms: []rsvp.Form{{ID: uuid.New(), FullName: "Jane"}}, TotalCount: 41, Limit: q.Limit, Page: q.Page}, nil
}

func (f *fakeForms) Statistics(ctx context.Context, weddingID uuid.UUID) (rsvp.Statistics, error) {
	return rsvp.Statistics{TotalInvited: 4, Responded: 1, ResponseRate: 25}, nil
}

type fixture struct {
	router    *mux.Router
	contents  *fakeContents
	templates *fakeContents
	forms     *fakeForms
	metrics   *metrics.Metrics
	client    client.Client
}

func newFixture(t *testing.T, authorization bool) *fixture {
	return newFixtureWithProxy(t, authorization, true)
}

func newFixtureWithProxy(t *testing.T, authorization, trustForwardedFor bool) *fixture {
	f := &fixture{
		router:   mux.NewRouter(),
		contents:  newFakeContents(),
		templates: newFakeContents(),
		forms:     &fakeForms{},
		metrics:   metrics.New(),
	}
	_, err := api.New(&api.Builder{
		Router:               f.router,
		Contents:             f.contents,
		Forms:                f.forms,
		Templates:            f.templates,
		Metrics:              f.metrics,
		AuthorizationEnabled: authorization,
		RSVPRate:             0.001,
		RSVPBurst:            2,
		TrustForwardedFor:    trustForwardedFor,
	})
	require.NoError(t, err)
	f.client = client.NewWithRouter(f.router)
	return f
}

func status(err error) int {
	var apiErr *client.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func TestContents_AppendListAndETag(t *testing.T) {
	f := newFixture(t, false)
	wedding := uuid.New()
	contents := f.client.Wedding(wedding).Contents()

	first, err := contents.Append("welcome")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Position)
	second, err := contents.InsertAt(1, "cover")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)

	items, res, err := contents.List("")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "cover", items[0].Payload)
	assert.Equal(t, "welcome", items[1].Payload)
	assert.Equal(t, "2", res.Header.Get("Pagination-Total-Count"))

	etag := res.Header.Get("Etag")
	require.NotEmpty(t, etag)
	res, err = f.client.Do(http.MethodGet, "/weddings/"+wedding.String()+"/contents", map[string]string{"If-None-Match": etag}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, res.Status)

	found, _, err := contents.List("welc")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestContents_ErrorMapping(t *testing.T) {
	f := newFixture(t, false)
	wedding := uuid.New()
	contents := f.client.Wedding(wedding).Contents()

	_, err := contents.InsertAt(5, "too far")
	assert.Equal(t, http.StatusBadRequest, status(err))

	assert.Equal(t, http.StatusNotFound, status(contents.Delete(uuid.New())))

	item, err := contents.Append("a")
	require.NoError(t, err)
	_, err = contents.Reorder([]ordering.Placement{{ItemID: item.ID, Position: 2}})
	assert.Equal(t, http.StatusBadRequest, status(err))

	f.contents.failures = []error{fmt.Errorf("duplicate: %w", ordering.ErrConstraint)}
	_, err = contents.Append("b")
	assert.Equal(t, http.StatusConflict, status(err))

	_, err = contents.Stats()
	assert.Equal(t, http.StatusInternalServerError, status(err))
	var apiErr *client.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Error 4713", apiErr.Message)

	_, err = contents.Dispatch(ordering.Command{Operation: "shuffle"})
	assert.Equal(t, http.StatusUnprocessableEntity, status(err))
}

func TestContents_SchemaValidation(t *testing.T) {
	f := newFixture(t, false)
	path := "/weddings/" + uuid.New().String() + "/contents"

	_, err := f.client.Do(http.MethodPost, path, nil, map[string]interface{}{"payload": 12}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status(err))
	var apiErr *client.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Validation failed", apiErr.Message)
	assert.Contains(t, string(apiErr.Details), "payload")

	for _, body := range []interface{}{
		map[string]interface{}{},
		map[string]interface{}{"payload": ""},
	} {
		_, err = f.client.Do(http.MethodPost, path, nil, body, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, status(err), "%v", body)
	}
	contents := f.client.Wedding(uuid.New()).Contents()
	_, err = contents.BulkAppend([]string{"welcome", ""})
	assert.Equal(t, http.StatusUnprocessableEntity, status(err))
	_, err = contents.Dispatch(ordering.Command{Operation: ordering.KindAppend})
	assert.Equal(t, http.StatusUnprocessableEntity, status(err))

	_, err = f.client.Do(http.MethodPost, path, nil, []byte("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, status(err))

	_, err = f.client.Do(http.MethodGet, "/weddings/not-a-uuid/contents", nil, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.Empty(t, f.contents.calls)
}

func TestContents_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t, false)
	f.contents.failures = []error{&pq.Error{Code: "40001"}, &pq.Error{Code: "40P01"}}

	item, err := f.client.Wedding(uuid.New()).Contents().Append("retried")
	require.NoError(t, err)
	assert.Equal(t, 1, item.Position)
	assert.Equal(t, []string{"insert", "insert", "insert"}, f.contents.calls)
}

func TestContents_Dispatch(t *testing.T) {
	f := newFixture(t, false)
	wedding := uuid.New()
	contents := f.client.Wedding(wedding).Contents()

	items, err := contents.Dispatch(ordering.Command{GroupID: uuid.New(), Operation: ordering.KindAppend, Payload: "x"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, wedding, items[0].GroupID)

	items, err = contents.Dispatch(ordering.Command{Operation: ordering.KindDelete, ItemID: items[0].ID})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestContents_CloneClearValidate(t *testing.T) {
	f := newFixture(t, false)
	source, destination := uuid.New(), uuid.New()
	_, err := f.client.Wedding(source).Contents().BulkAppend([]string{"a", "b"})
	require.NoError(t, err)

	copied, err := f.client.Wedding(destination).Contents().Clone(source)
	require.NoError(t, err)
	assert.Equal(t, 2, copied)

	report, err := f.client.Wedding(destination).Contents().Validate()
	require.NoError(t, err)
	assert.True(t, report.IsValid)

	deleted, err := f.client.Wedding(source).Contents().Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t, true)
	wedding, other := uuid.New(), uuid.New()

	_, err := f.client.Wedding(wedding).Contents().Append("anonymous")
	assert.Equal(t, http.StatusUnauthorized, status(err))

	hook := logtest.NewGlobal()
	defer logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks))
	stranger := &access.Authorization{Identity: "wedcards|stranger@example.com", Roles: []string{access.RoleEditor},
		Weddings: []uuid.UUID{other}}
	_, err = f.client.WithAuthorization(stranger).Wedding(wedding).Contents().Append("stranger")
	assert.Equal(t, http.StatusForbidden, status(err))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "wedcards|stranger@example.com", hook.LastEntry().Data["identity"])

	_, err = f.client.WithEditor(wedding).Wedding(wedding).Contents().Append("owner")
	require.NoError(t, err)

	// the source wedding of a clone must be editable as well
	_, err = f.client.WithEditor(wedding).Wedding(wedding).Contents().Clone(other)
	assert.Equal(t, http.StatusForbidden, status(err))

	_, err = f.client.WithAdminAuthorization().Wedding(other).Contents().Clone(wedding)
	require.NoError(t, err)

	// reading contents and submitting forms are public
	_, _, err = f.client.Wedding(wedding).Contents().List("")
	require.NoError(t, err)
	_, err = f.client.Wedding(wedding).Forms().Submit(rsvp.Form{FullName: "Jane", IsAttend: pointers.To(true)})
	require.NoError(t, err)
	_, err = f.client.Wedding(wedding).Forms().Statistics()
	assert.Equal(t, http.StatusUnauthorized, status(err))
}

func TestForms_SubmitIsRateLimited(t *testing.T) {
	f := newFixture(t, false)
	wedding := uuid.New()
	forms := f.client.WithHeader("X-Forwarded-For", "203.0.113.7").Wedding(wedding).Forms()

	form := rsvp.Form{FullName: "Jane", Email: "jane@example.com", NumberOfGuests: 2, IsAttend: pointers.To(true), GuestOf: rsvp.SideBride}
	created, err := forms.Submit(form)
	require.NoError(t, err)
	assert.Equal(t, wedding, created.WeddingID)
	assert.Equal(t, rsvp.SideBride, created.GuestOf)

	_, err = forms.Submit(form)
	require.NoError(t, err)
	_, err = forms.Submit(form)
	assert.Equal(t, http.StatusTooManyRequests, status(err))

	// another client has its own budget
	_, err = f.client.WithHeader("X-Forwarded-For", "198.51.100.1").Wedding(wedding).Forms().Submit(form)
	require.NoError(t, err)
	assert.Len(t, f.forms.submitted, 3)
}

func TestForms_ForwardedForIsIgnoredWithoutProxy(t *testing.T) {
	f := newFixtureWithProxy(t, false, false)
	wedding := uuid.New()
	form := rsvp.Form{FullName: "Jane", IsAttend: pointers.To(true)}

	var statuses []int
	for i := 0; i < 4; i++ {
		forwarded := fmt.Sprintf("203.0.113.%d", i+1)
		_, err := f.client.WithHeader("X-Forwarded-For", forwarded).Wedding(wedding).Forms().Submit(form)
		statuses = append(statuses, status(err))
	}
	assert.Equal(t, []int{0, 0, http.StatusTooManyRequests, http.StatusTooManyRequests}, statuses)
	assert.Len(t, f.forms.submitted, 2)
}

func TestForms_Errors(t *testing.T) {
	f := newFixture(t, false)
	forms := f.client.Wedding(uuid.New()).Forms()

	_, err := forms.Submit(rsvp.Form{FullName: "Jane"})
	assert.Equal(t, http.StatusUnprocessableEntity, status(err), "is_attend is required")

	f.forms.err = fmt.Errorf("jane@example.com: %w", rsvp.ErrAlreadyResponded)
	_, err = forms.Submit(rsvp.Form{FullName: "Jane", IsAttend: pointers.To(false)})
	assert.Equal(t, http.StatusConflict, status(err))

	_, err = forms.Invite([]rsvp.Invitation{{FullName: "Jane", Email: "jane@example.com"}})
	assert.Equal(t, http.StatusConflict, status(err))

	_, err = forms.Update(uuid.New(), rsvp.Response{IsAttend: pointers.To(true)})
	assert.Equal(t, http.StatusNotFound, status(err))

	_, _, err = forms.List(url.Values{"sort": {"password"}})
	assert.Equal(t, http.StatusBadRequest, status(err))

	// the two submissions used up the burst of this client
	responded, err := f.client.WithHeader("X-Forwarded-For", "192.0.2.9").Wedding(uuid.New()).Forms().HasResponded("jane@example.com")
	require.NoError(t, err)
	assert.True(t, responded)
}

func TestForms_ListPagination(t *testing.T) {
	f := newFixture(t, false)
	forms := f.client.Wedding(uuid.New()).Forms()

	list, res, err := forms.List(url.Values{"limit": {"10"}, "page": {"2"}, "attendance": {"pending"}})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, rsvp.AttendancePending, f.forms.query.Attendance)
	assert.Equal(t, "10", res.Header.Get("Pagination-Limit"))
	assert.Equal(t, "41", res.Header.Get("Pagination-Total-Count"))
	assert.Equal(t, "5", res.Header.Get("Pagination-Page-Count"))
	assert.Equal(t, "2", res.Header.Get("Pagination-Current-Page"))
	require.NotNil(t, res.Pagination)
	assert.Equal(t, 5, res.Pagination.TotalPages)

	st, err := forms.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 25.0, st.ResponseRate)
}

func TestHealthMetricsAndPreflight(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.client.Wedding(uuid.New()).Contents().Append("counted")
	require.NoError(t, err)

	res, err := f.client.Do(http.MethodGet, "/health", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.Status)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `wedcards_ordering_operations_total{operation="append",outcome="ok"} 1`)
	assert.Contains(t, rec.Body.String(), `route="/weddings/{wedding_id}/contents"`)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/weddings/"+uuid.New().String()+"/forms", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTemplates(t *testing.T) {
	f := newFixtureWithProxy(t, true, false)
	catalog := f.client.Templates()
	admin := f.client.WithAdminAuthorization().Templates()

	_, err := catalog.Create("anonymous")
	assert.Equal(t, http.StatusUnauthorized, status(err))
	_, err = f.client.WithEditor(uuid.New()).Templates().Create("editor")
	assert.Equal(t, http.StatusForbidden, status(err))

	var created []ordering.Item
	for i := 1; i <= 5; i++ {
		item, err := admin.Create(fmt.Sprintf("template %d", i))
		require.NoError(t, err)
		assert.Equal(t, api.CatalogGroup, item.GroupID)
		assert.Equal(t, i, item.Position)
		created = append(created, item)
	}

	page, res, err := catalog.List(url.Values{"limit": {"2"}, "page": {"2"}})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "template 3", page[0].Payload)
	assert.Equal(t, "5", res.Header.Get("Pagination-Total-Count"))
	assert.Equal(t, 3, res.Pagination.TotalPages)

	beyond, res, err := catalog.List(url.Values{"limit": {"2"}, "page": {"4"}})
	require.NoError(t, err)
	assert.Empty(t, beyond)
	assert.Equal(t, 5, res.Pagination.Total)

	found, _, err := catalog.List(url.Values{"search": {"template 4"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created[3].ID, found[0].ID)

	for _, values := range []url.Values{{"limit": {"101"}}, {"page": {"0"}}, {"limit": {"many"}}} {
		_, _, err = catalog.List(values)
		assert.Equal(t, http.StatusBadRequest, status(err), "%v", values)
	}

	item, err := catalog.Get(created[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "template 2", item.Payload)
	_, err = catalog.Get(uuid.New())
	assert.Equal(t, http.StatusNotFound, status(err))

	moved, err := admin.Move(created[4].ID, 1)
	require.NoError(t, err)
	require.Len(t, moved, 5)
	assert.Equal(t, created[4].ID, moved[0].ID)
	assert.Equal(t, 1, moved[0].Position)
	_, err = admin.Move(created[0].ID, 6)
	assert.Equal(t, http.StatusBadRequest, status(err))

	require.NoError(t, admin.Delete(created[2].ID))
	assert.Equal(t, http.StatusNotFound, status(admin.Delete(created[2].ID)))
	all, _, err := catalog.List(nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Empty(t, f.contents.calls, "the catalog is separate from the wedding contents")
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusUnauthorized, "invalid token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), `"message":"invalid token"`)
	assert.Contains(t, rec.Body.String(), `"code":401`)
}

func TestHealth_NotReady(t *testing.T) {
	router := mux.NewRouter()
	_, err := api.New(&api.Builder{
		Router:   router,
		Contents: newFakeContents(),
		Forms:    &fakeForms{},
		Ready:    func(ctx context.Context) error { return errors.New("database down") },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = client.NewWithRouter(router).WithContext(ctx).Do(http.MethodGet, "/health", nil, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status(err))
}
