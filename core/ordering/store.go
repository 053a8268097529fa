package ordering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/relabs-tech/wedcards/core"
	"github.com/relabs-tech/wedcards/core/csql"
	"github.com/relabs-tech/wedcards/core/logger"
)

// Builder is a builder helper for the Store
type Builder struct {
	// DB is the postgres database, the table is created in its schema
	DB *csql.DB
	// Resource is the name of the items' table, default "content"
	Resource string
	// Group is the name of the parent the items are grouped by, default "wedding"
	Group string
	// Notifier receives a notification after each committed mutation. Optional.
	Notifier core.Notifier
}

// Store persists the items of all groups in one table
type Store struct {
	db          *csql.DB
	resource    string
	table       string
	idColumn    string
	groupColumn string
	columns     string
	notifier    core.Notifier
}

// NewStore creates a store and the table it operates on
func NewStore(b *Builder) (*Store, error) {
	if b.DB == nil {
		return nil, errors.New("ordering store requires a database")
	}
	s := &Store{
		db:       b.DB,
		resource: b.Resource,
		notifier: b.Notifier,
	}
	if s.resource == "" {
		s.resource = "content"
	}
	group := b.Group
	if group == "" {
		group = "wedding"
	}
	s.table = b.DB.Table(s.resource)
	s.idColumn = s.resource + "_id"
	s.groupColumn = group + "_id"
	s.columns = strings.Join([]string{s.idColumn, s.groupColumn, "position", "payload", "created_at"}, ", ")

	createQuery := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
%s uuid PRIMARY KEY DEFAULT uuid_generate_v4(),
%s uuid NOT NULL,
position integer NOT NULL CHECK (position > 0),
payload text NOT NULL DEFAULT '',
created_at timestamptz NOT NULL DEFAULT now(),
CONSTRAINT %s_position_unique UNIQUE (%s, position)
);`, s.table, s.idColumn, s.groupColumn, s.resource, s.groupColumn)
	if _, err := b.DB.Exec(createQuery); err != nil {
		return nil, fmt.Errorf("cannot create table %s: %w", s.table, err)
	}
	return s, nil
}

// Resource returns the resource name of the items
func (s *Store) Resource() string {
	return s.resource
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row scanner) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.GroupID, &item.Position, &item.Payload, &item.CreatedAt)
	return item, err
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetGroup returns all items of the group in ascending position
func (s *Store) GetGroup(ctx context.Context, groupID uuid.UUID) ([]Item, error) {
	return s.getGroup(ctx, s.db, groupID)
}

func (s *Store) getGroup(ctx context.Context, q csql.Querier, groupID uuid.UUID) ([]Item, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY position, created_at, %s;",
		s.columns, s.table, s.groupColumn, s.idColumn)
	rows, err := q.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("cannot query group %s: %w", groupID, err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("cannot scan group %s: %w", groupID, err)
	}
	return items, nil
}

// Get returns a single item of the group
func (s *Store) Get(ctx context.Context, groupID, itemID uuid.UUID) (Item, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s = $2;",
		s.columns, s.table, s.idColumn, s.groupColumn)
	item, err := scanItem(s.db.QueryRowContext(ctx, query, itemID, groupID))
	if err == csql.ErrNoRows {
		return Item{}, fmt.Errorf("%s %s: %w", s.resource, itemID, ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("cannot read %s %s: %w", s.resource, itemID, err)
	}
	return item, nil
}

// Search returns the items of the group whose payload contains term, ignoring case
func (s *Store) Search(ctx context.Context, groupID uuid.UUID, term string) ([]Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND payload ILIKE $2 ESCAPE '\' ORDER BY position, created_at, %s;`,
		s.columns, s.table, s.groupColumn, s.idColumn)
	rows, err := s.db.QueryContext(ctx, query, groupID, "%"+escapeLike(term)+"%")
	if err != nil {
		return nil, fmt.Errorf("cannot search group %s: %w", groupID, err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("cannot scan group %s: %w", groupID, err)
	}
	return items, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// Insert stores the item at its position. The position must be free, otherwise
// ErrConstraint is returned. The store does not shift other items, use the
// Allocator for that.
func (s *Store) Insert(ctx context.Context, item Item) (Item, error) {
	if err := s.insert(ctx, s.db, &item); err != nil {
		return Item{}, err
	}
	s.notify(ctx, core.OperationCreate, event{GroupID: item.GroupID, ItemID: &item.ID, Position: item.Position})
	return item, nil
}

func (s *Store) insert(ctx context.Context, q csql.Querier, item *Item) error {
	if item.Position < 1 {
		return fmt.Errorf("position %d: %w", item.Position, ErrInvalidPosition)
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, position, payload) VALUES ($1, $2, $3, $4) RETURNING created_at;",
		s.table, s.idColumn, s.groupColumn)
	err := q.QueryRowContext(ctx, query, item.ID, item.GroupID, item.Position, item.Payload).Scan(&item.CreatedAt)
	if csql.IsUniqueViolation(err) {
		return fmt.Errorf("position %d in group %s: %w", item.Position, item.GroupID, ErrConstraint)
	}
	if err != nil {
		return fmt.Errorf("cannot insert %s: %w", s.resource, err)
	}
	return nil
}

// UpdatePosition writes a new position for a single item without moving any other
// item. Returns ErrConstraint if the position is taken.
func (s *Store) UpdatePosition(ctx context.Context, groupID, itemID uuid.UUID, position int) error {
	if position < 1 {
		return fmt.Errorf("position %d: %w", position, ErrInvalidPosition)
	}
	query := fmt.Sprintf("UPDATE %s SET position = $3 WHERE %s = $1 AND %s = $2;",
		s.table, s.idColumn, s.groupColumn)
	res, err := s.db.ExecContext(ctx, query, itemID, groupID, position)
	if csql.IsUniqueViolation(err) {
		return fmt.Errorf("position %d in group %s: %w", position, groupID, ErrConstraint)
	}
	if err != nil {
		return fmt.Errorf("cannot update position of %s %s: %w", s.resource, itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", s.resource, itemID, ErrNotFound)
	}
	s.notify(ctx, core.OperationUpdate, event{GroupID: groupID, ItemID: &itemID, Position: position})
	return nil
}

// UpdatePayload replaces the payload of an item and returns the updated item
func (s *Store) UpdatePayload(ctx context.Context, groupID, itemID uuid.UUID, payload string) (Item, error) {
	query := fmt.Sprintf("UPDATE %s SET payload = $3 WHERE %s = $1 AND %s = $2 RETURNING %s;",
		s.table, s.idColumn, s.groupColumn, s.columns)
	item, err := scanItem(s.db.QueryRowContext(ctx, query, itemID, groupID, payload))
	if err == csql.ErrNoRows {
		return Item{}, fmt.Errorf("%s %s: %w", s.resource, itemID, ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("cannot update payload of %s %s: %w", s.resource, itemID, err)
	}
	s.notify(ctx, core.OperationUpdate, event{GroupID: groupID, ItemID: &itemID, Position: item.Position})
	return item, nil
}

// Delete removes a single item without compacting the group. Use the Allocator
// to keep positions dense.
func (s *Store) Delete(ctx context.Context, groupID, itemID uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s = $2;", s.table, s.idColumn, s.groupColumn)
	res, err := s.db.ExecContext(ctx, query, itemID, groupID)
	if err != nil {
		return fmt.Errorf("cannot delete %s %s: %w", s.resource, itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", s.resource, itemID, ErrNotFound)
	}
	s.notify(ctx, core.OperationDelete, event{GroupID: groupID, ItemID: &itemID})
	return nil
}

// bounds returns the number of items and the highest position of a group
func (s *Store) bounds(ctx context.Context, q csql.Querier, groupID uuid.UUID) (count int, maxPosition int, err error) {
	query := fmt.Sprintf("SELECT count(*), COALESCE(max(position), 0) FROM %s WHERE %s = $1;", s.table, s.groupColumn)
	err = q.QueryRowContext(ctx, query, groupID).Scan(&count, &maxPosition)
	if err != nil {
		err = fmt.Errorf("cannot read bounds of group %s: %w", groupID, err)
	}
	return
}

// slots returns ids and positions of a group in sort order, locking the rows
func (s *Store) slots(ctx context.Context, q csql.Querier, groupID uuid.UUID) ([]slot, error) {
	query := fmt.Sprintf("SELECT %s, position FROM %s WHERE %s = $1 ORDER BY position, created_at, %s FOR UPDATE;",
		s.idColumn, s.table, s.groupColumn, s.idColumn)
	rows, err := q.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("cannot query group %s: %w", groupID, err)
	}
	defer rows.Close()
	var slots []slot
	for rows.Next() {
		var sl slot
		if err := rows.Scan(&sl.ID, &sl.Position); err != nil {
			return nil, fmt.Errorf("cannot scan group %s: %w", groupID, err)
		}
		slots = append(slots, sl)
	}
	return slots, rows.Err()
}

// shift moves all items with position >= from by delta. The rows are first parked
// at position+offset, above every existing position, so that no statement ever
// sees two items on the same position. offset must exceed the group's highest
// position.
func (s *Store) shift(ctx context.Context, q csql.Querier, groupID uuid.UUID, from, delta, offset int) error {
	park := fmt.Sprintf("UPDATE %s SET position = position + $3 WHERE %s = $1 AND position >= $2;",
		s.table, s.groupColumn)
	if _, err := q.ExecContext(ctx, park, groupID, from, offset); err != nil {
		return fmt.Errorf("cannot park positions of group %s: %w", groupID, err)
	}
	settle := fmt.Sprintf("UPDATE %s SET position = position - $3 + $4 WHERE %s = $1 AND position >= $2 + $3;",
		s.table, s.groupColumn)
	if _, err := q.ExecContext(ctx, settle, groupID, from, offset, delta); err != nil {
		return fmt.Errorf("cannot shift positions of group %s: %w", groupID, err)
	}
	return nil
}

// applyOrder assigns positions[i] to ids[i] for the whole group, parking all rows at
// position+offset first.
func (s *Store) applyOrder(ctx context.Context, q csql.Querier, groupID uuid.UUID, ids []uuid.UUID, positions []int, offset int) error {
	park := fmt.Sprintf("UPDATE %s SET position = position + $2 WHERE %s = $1;", s.table, s.groupColumn)
	if _, err := q.ExecContext(ctx, park, groupID, offset); err != nil {
		return fmt.Errorf("cannot park positions of group %s: %w", groupID, err)
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}
	positions64 := make([]int64, len(positions))
	for i, p := range positions {
		positions64[i] = int64(p)
	}
	settle := fmt.Sprintf(`UPDATE %s AS t SET position = v.position
FROM unnest($2::uuid[], $3::integer[]) AS v(id, position)
WHERE t.%s = v.id AND t.%s = $1;`, s.table, s.idColumn, s.groupColumn)
	res, err := q.ExecContext(ctx, settle, groupID, pq.StringArray(idStrings), pq.Int64Array(positions64))
	if err != nil {
		return fmt.Errorf("cannot order group %s: %w", groupID, err)
	}
	if n, _ := res.RowsAffected(); n != int64(len(ids)) {
		return fmt.Errorf("ordered %d of %d items in group %s: %w", n, len(ids), groupID, ErrNotFound)
	}
	return nil
}

// event is the notification payload of a mutation
type event struct {
	GroupID  uuid.UUID  `json:"group_id"`
	ItemID   *uuid.UUID `json:"item_id,omitempty"`
	Position int        `json:"position,omitempty"`
	Count    int        `json:"count,omitempty"`
}

func (s *Store) notify(ctx context.Context, operation core.Operation, e event) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot marshal notification")
		return
	}
	s.notifier.Notify(ctx, s.resource, operation, payload)
}
