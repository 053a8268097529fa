package rsvp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/relabs-tech/wedcards/core"
	"github.com/relabs-tech/wedcards/core/csql"
	"github.com/relabs-tech/wedcards/core/logger"
	"github.com/relabs-tech/wedcards/core/pointers"
)

const resource = "form"

const columns = "form_id, wedding_id, fullname, email, phone, number_of_guests, is_attend, guest_of, created_at"

// Builder is a builder helper for the Store
type Builder struct {
	// DB is the postgres database, the table is created in its schema
	DB *csql.DB
	// Notifier receives a notification after each committed mutation. Optional.
	Notifier core.Notifier
}

// Store persists forms
type Store struct {
	db       *csql.DB
	table    string
	notifier core.Notifier
}

// New creates a store and the table it operates on
func New(b *Builder) (*Store, error) {
	if b.DB == nil {
		return nil, errors.New("rsvp store requires a database")
	}
	s := &Store{db: b.DB, table: b.DB.Table(resource), notifier: b.Notifier}

	createQuery := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
form_id uuid PRIMARY KEY DEFAULT uuid_generate_v4(),
wedding_id uuid NOT NULL,
fullname varchar NOT NULL,
email varchar NOT NULL DEFAULT '',
phone varchar NOT NULL DEFAULT '',
number_of_guests integer NOT NULL DEFAULT 1 CHECK (number_of_guests >= 0),
is_attend boolean,
guest_of varchar NOT NULL DEFAULT '' CHECK (guest_of IN ('', 'bride', 'groom')),
created_at timestamptz NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS form_wedding_email ON %s (wedding_id, lower(email)) WHERE email <> '';
CREATE INDEX IF NOT EXISTS form_wedding_created ON %s (wedding_id, created_at);`, s.table, s.table, s.table)
	if _, err := b.DB.Exec(createQuery); err != nil {
		return nil, fmt.Errorf("cannot create table %s: %w", s.table, err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanForm(row scanner, extra ...interface{}) (Form, error) {
	var f Form
	var isAttend sql.NullBool
	var guestOf string
	dest := append([]interface{}{&f.ID, &f.WeddingID, &f.FullName, &f.Email, &f.Phone, &f.NumberOfGuests,
		&isAttend, &guestOf, &f.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Form{}, err
	}
	if isAttend.Valid {
		b := isAttend.Bool
		f.IsAttend = &b
	}
	f.GuestOf = Side(guestOf)
	return f, nil
}

func validate(fullName string, numberOfGuests int, guestOf Side) error {
	if strings.TrimSpace(fullName) == "" {
		return fmt.Errorf("%w: fullname is required", ErrInvalidForm)
	}
	if numberOfGuests < 0 {
		return fmt.Errorf("%w: negative number of guests", ErrInvalidForm)
	}
	if !guestOf.Valid() {
		return fmt.Errorf("%w: unknown side '%s'", ErrInvalidForm, guestOf)
	}
	return nil
}

// Submit records a guest's response. If the guest was invited with the same email
// and has not responded yet, the invitation is answered. A guest who already
// responded gets ErrAlreadyResponded.
func (s *Store) Submit(ctx context.Context, f Form) (Form, error) {
	if f.IsAttend == nil {
		return Form{}, fmt.Errorf("%w: is_attend is required", ErrInvalidForm)
	}
	if err := validate(f.FullName, f.NumberOfGuests, f.GuestOf); err != nil {
		return Form{}, err
	}
	query := fmt.Sprintf(`INSERT INTO %s AS f (form_id, wedding_id, fullname, email, phone, number_of_guests, is_attend, guest_of)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (wedding_id, lower(email)) WHERE email <> ''
DO UPDATE SET fullname = EXCLUDED.fullname, phone = EXCLUDED.phone, number_of_guests = EXCLUDED.number_of_guests,
is_attend = EXCLUDED.is_attend, guest_of = COALESCE(NULLIF(EXCLUDED.guest_of, ''), f.guest_of)
WHERE f.is_attend IS NULL
RETURNING %s;`, s.table, columns)
	form, err := scanForm(s.db.QueryRowContext(ctx, query, uuid.New(), f.WeddingID, strings.TrimSpace(f.FullName),
		strings.TrimSpace(f.Email), f.Phone, f.NumberOfGuests, *f.IsAttend, string(f.GuestOf)))
	if err == csql.ErrNoRows {
		return Form{}, fmt.Errorf("%s: %w", f.Email, ErrAlreadyResponded)
	}
	if csql.IsCheckViolation(err) {
		return Form{}, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	if err != nil {
		return Form{}, fmt.Errorf("cannot submit form: %w", err)
	}
	s.notify(ctx, core.OperationCreate, form)
	return form, nil
}

// HasResponded returns true if a guest with this email has answered the invitation
func (s *Store) HasResponded(ctx context.Context, weddingID uuid.UUID, email string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE wedding_id = $1 AND email <> '' AND lower(email) = lower($2) AND is_attend IS NOT NULL);`, s.table)
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, weddingID, strings.TrimSpace(email)).Scan(&exists); err != nil {
		return false, fmt.Errorf("cannot check response: %w", err)
	}
	return exists, nil
}

// InviteBulk creates pending forms for all invitations in one transaction
func (s *Store) InviteBulk(ctx context.Context, weddingID uuid.UUID, invitations []Invitation) ([]Form, error) {
	for _, inv := range invitations {
		if err := validate(inv.FullName, inv.NumberOfGuests, inv.GuestOf); err != nil {
			return nil, err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot begin transaction: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (form_id, wedding_id, fullname, email, phone, number_of_guests, guest_of)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING %s;`, s.table, columns)
	forms := make([]Form, 0, len(invitations))
	for _, inv := range invitations {
		guests := inv.NumberOfGuests
		if guests == 0 {
			guests = 1
		}
		form, err := scanForm(tx.QueryRowContext(ctx, query, uuid.New(), weddingID, strings.TrimSpace(inv.FullName),
			strings.TrimSpace(inv.Email), inv.Phone, guests, string(inv.GuestOf)))
		if err != nil {
			tx.Rollback()
			if csql.IsUniqueViolation(err) {
				return nil, fmt.Errorf("%s: %w", inv.Email, ErrAlreadyInvited)
			}
			return nil, fmt.Errorf("cannot invite %s: %w", inv.FullName, err)
		}
		forms = append(forms, form)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("cannot commit invitations: %w", err)
	}
	for _, form := range forms {
		s.notify(ctx, core.OperationCreate, form)
	}
	return forms, nil
}

// UpdateResponse changes the non-nil fields of the response
func (s *Store) UpdateResponse(ctx context.Context, weddingID, formID uuid.UUID, r Response) (Form, error) {
	if pointers.Value(r.NumberOfGuests) < 0 {
		return Form{}, fmt.Errorf("%w: negative number of guests", ErrInvalidForm)
	}
	if r.GuestOf != nil && !r.GuestOf.Valid() {
		return Form{}, fmt.Errorf("%w: unknown side '%s'", ErrInvalidForm, *r.GuestOf)
	}
	guestOf := pointers.Convert(r.GuestOf, func(side Side) string { return string(side) })
	query := fmt.Sprintf(`UPDATE %s SET is_attend = COALESCE($3, is_attend), number_of_guests = COALESCE($4, number_of_guests),
guest_of = COALESCE($5, guest_of), phone = COALESCE($6, phone)
WHERE form_id = $1 AND wedding_id = $2 RETURNING %s;`, s.table, columns)
	form, err := scanForm(s.db.QueryRowContext(ctx, query, formID, weddingID, r.IsAttend, r.NumberOfGuests, guestOf, r.Phone))
	if err == csql.ErrNoRows {
		return Form{}, fmt.Errorf("form %s: %w", formID, ErrNotFound)
	}
	if err != nil {
		return Form{}, fmt.Errorf("cannot update form %s: %w", formID, err)
	}
	s.notify(ctx, core.OperationUpdate, form)
	return form, nil
}

// Remove deletes a form
func (s *Store) Remove(ctx context.Context, weddingID, formID uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE form_id = $1 AND wedding_id = $2;", s.table)
	res, err := s.db.ExecContext(ctx, query, formID, weddingID)
	if err != nil {
		return fmt.Errorf("cannot delete form %s: %w", formID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("form %s: %w", formID, ErrNotFound)
	}
	s.notify(ctx, core.OperationDelete, Form{ID: formID, WeddingID: weddingID})
	return nil
}

// List returns one page of the wedding's forms
func (s *Store) List(ctx context.Context, weddingID uuid.UUID, q Query) (Page, error) {
	if q.Limit < 1 || q.Limit > MaxLimit {
		q.Limit = DefaultLimit
	}
	if q.Page < 1 {
		q.Page = 1
	}
	where, params := q.where()
	params = append([]interface{}{weddingID}, params...)
	params = append(params, q.Limit, (q.Page-1)*q.Limit)
	query := fmt.Sprintf("SELECT %s, count(*) OVER() AS full_count FROM %s WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d;",
		columns, s.table, where, q.orderBy(), len(params)-1, len(params))

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return Page{}, fmt.Errorf("cannot list forms: %w", err)
	}
	defer rows.Close()
	page := Page{Forms: []Form{}, Limit: q.Limit, Page: q.Page}
	for rows.Next() {
		form, err := scanForm(rows, &page.TotalCount)
		if err != nil {
			return Page{}, fmt.Errorf("cannot scan forms: %w", err)
		}
		page.Forms = append(page.Forms, form)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("cannot list forms: %w", err)
	}
	if len(page.Forms) == 0 && q.Page > 1 {
		// past the last page the window function has no row to report on
		countQuery := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s;", s.table, where)
		err = s.db.QueryRowContext(ctx, countQuery, params[:len(params)-2]...).Scan(&page.TotalCount)
		if err != nil {
			return Page{}, fmt.Errorf("cannot count forms: %w", err)
		}
	}
	return page, nil
}

// Statistics aggregates the wedding's forms
func (s *Store) Statistics(ctx context.Context, weddingID uuid.UUID) (Statistics, error) {
	query := fmt.Sprintf(`SELECT count(*),
count(*) FILTER (WHERE is_attend IS NOT NULL),
count(*) FILTER (WHERE is_attend IS TRUE),
count(*) FILTER (WHERE is_attend IS FALSE),
count(*) FILTER (WHERE is_attend IS NULL),
COALESCE(sum(number_of_guests) FILTER (WHERE is_attend IS TRUE), 0),
count(*) FILTER (WHERE guest_of = 'bride'),
count(*) FILTER (WHERE guest_of = 'groom')
FROM %s WHERE wedding_id = $1;`, s.table)
	var st Statistics
	err := s.db.QueryRowContext(ctx, query, weddingID).Scan(&st.TotalInvited, &st.Responded, &st.Attending,
		&st.NotAttending, &st.Pending, &st.GuestsAttending, &st.BrideGuests, &st.GroomGuests)
	if err != nil {
		return Statistics{}, fmt.Errorf("cannot read statistics: %w", err)
	}
	if st.TotalInvited > 0 {
		st.ResponseRate = math.Round(10000*float64(st.Responded)/float64(st.TotalInvited)) / 100
	}
	return st, nil
}

func (s *Store) notify(ctx context.Context, operation core.Operation, f Form) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(f)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot marshal notification")
		return
	}
	s.notifier.Notify(ctx, resource, operation, payload)
}
