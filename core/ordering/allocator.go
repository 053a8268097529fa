package ordering

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/relabs-tech/wedcards/core"
)

// Allocator assigns positions within a group and keeps them dense. Each call is
// one transaction, serialized against other calls for the same group.
type Allocator struct {
	store *Store
}

// NewAllocator returns an allocator operating on the store
func NewAllocator(store *Store) *Allocator {
	return &Allocator{store: store}
}

func (a *Allocator) lockKey(groupID uuid.UUID) string {
	return a.store.resource + ":" + groupID.String()
}

// inGroupTx runs fn in a read committed transaction holding the advisory locks of
// all given groups. Locks are taken in key order so that two calls spanning the
// same groups cannot deadlock each other.
func (a *Allocator) inGroupTx(ctx context.Context, fn func(tx *sql.Tx) error, groupIDs ...uuid.UUID) error {
	keys := make([]string, 0, len(groupIDs))
	seen := map[string]bool{}
	for _, id := range groupIDs {
		key := a.lockKey(id)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	tx, err := a.store.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("cannot begin transaction: %w", err)
	}
	for _, key := range keys {
		if _, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1));", key); err != nil {
			tx.Rollback()
			return fmt.Errorf("cannot lock %s: %w", key, err)
		}
	}
	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit transaction: %w", err)
	}
	return nil
}

// Append adds an item behind the last one of the group
func (a *Allocator) Append(ctx context.Context, groupID uuid.UUID, payload string) (Item, error) {
	item := Item{GroupID: groupID, Payload: payload}
	err := a.inGroupTx(ctx, func(tx *sql.Tx) error {
		_, maxPos, err := a.store.bounds(ctx, tx, groupID)
		if err != nil {
			return err
		}
		item.Position = maxPos + 1
		return a.store.insert(ctx, tx, &item)
	}, groupID)
	if err != nil {
		return Item{}, err
	}
	a.store.notify(ctx, core.OperationCreate, event{GroupID: groupID, ItemID: &item.ID, Position: item.Position})
	return item, nil
}

// BulkAppend adds the payloads behind the last item of the group, in the given order
func (a *Allocator) BulkAppend(ctx context.Context, groupID uuid.UUID, payloads []string) ([]Item, error) {
	items := make([]Item, 0, len(payloads))
	err := a.inGroupTx(ctx, func(tx *sql.Tx) error {
		_, maxPos, err := a.store.bounds(ctx, tx, groupID)
		if err != nil {
			return err
		}
		for i, payload := range payloads {
			item := Item{GroupID: groupID, Position: maxPos + i + 1, Payload: payload}
			if err := a.store.insert(ctx, tx, &item); err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	}, groupID)
	if err != nil {
		return nil, err
	}
	a.store.notify(ctx, core.OperationCreate, event{GroupID: groupID, Count: len(items)})
	return items, nil
}

// InsertAt stores a new item at position, moving the item there and all items
// behind it one position up. position must be within 1..N+1.
func (a *Allocator) InsertAt(ctx context.Context, groupID uuid.UUID, position int, payload string) (Item, error) {
	item := Item{GroupID: groupID, Position: position, Payload: payload}
	err := a.inGroupTx(ctx, func(tx *sql.Tx) error {
		count, maxPos, err := a.store.bounds(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if position < 1 || position > count+1 {
			return fmt.Errorf("position %d is not within 1..%d: %w", position, count+1, ErrInvalidPosition)
		}
		if position <= maxPos {
			if err := a.store.shift(ctx, tx, groupID, position, 1, maxPos+1); err != nil {
				return err
			}
		}
		return a.store.insert(ctx, tx, &item)
	}, groupID)
	if err != nil {
		return Item{}, err
	}
	a.store.notify(ctx, core.OperationCreate, event{GroupID: groupID, ItemID: &item.ID, Position: item.Position})
	return item, nil
}

// Delete removes the item and closes the gap it leaves
func (a *Allocator) Delete(ctx context.Context, groupID, itemID uuid.UUID) error {
	err := a.inGroupTx(ctx, func(tx *sql.Tx) error {
		var position int
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s = $2 RETURNING position;",
			a.store.table, a.store.idColumn, a.store.groupColumn)
		err := tx.QueryRowContext(ctx, query, itemID, groupID).Scan(&position)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%s %s: %w", a.store.resource, itemID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("cannot delete %s %s: %w", a.store.resource, itemID, err)
		}
		_, maxPos, err := a.store.bounds(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if maxPos > position {
			return a.store.shift(ctx, tx, groupID, position+1, -1, maxPos+1)
		}
		return nil
	}, groupID)
	if err != nil {
		return err
	}
	a.store.notify(ctx, core.OperationDelete, event{GroupID: groupID, ItemID: &itemID})
	return nil
}

// Reorder assigns new positions to all items of the group. The placements must
// name every item exactly once and use every position of 1..N exactly once.
func (a *Allocator) Reorder(ctx context.Context, groupID uuid.UUID, placements []Placement) error {
	err := a.inGroupTx(ctx, func(tx *sql.Tx) error {
		current, err := a.store.slots(ctx, tx, groupID)
		if err != nil {
			return err
		}
		ids, positions, err := planReorder(current, placements)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return a.store.applyOrder(ctx, tx, groupID, ids, positions, maxPosition(current)+1)
	}, groupID)
	if err != nil {
		return err
	}
	a.store.notify(ctx, core.OperationReorder, event{GroupID: groupID, Count: len(placements)})
	return nil
}

// Move puts a single item at position within 1..N, the items in between make room
func (a *Allocator) Move(ctx context.Context, groupID, itemID uuid.UUID, position int) error {
	err := a.inGroupTx(ctx, func(tx *sql.Tx) error {
		current, err := a.store.slots(ctx, tx, groupID)
		if err != nil {
			return err
		}
		ids, positions, err := planMove(current, itemID, position)
		if err != nil {
			return err
		}
		return a.store.applyOrder(ctx, tx, groupID, ids, positions, maxPosition(current)+1)
	}, groupID)
	if err != nil {
		return err
	}
	a.store.notify(ctx, core.OperationReorder, event{GroupID: groupID, ItemID: &itemID, Position: position})
	return nil
}

// fix renumbers the group to 1..N in its current sort order. It writes nothing
// when the group already is dense and reports whether it changed anything.
func (a *Allocator) fix(ctx context.Context, groupID uuid.UUID) (bool, error) {
	changed := false
	err := a.inGroupTx(ctx, func(tx *sql.Tx) error {
		current, err := a.store.slots(ctx, tx, groupID)
		if err != nil {
			return err
		}
		ids, positions, c := planFix(current)
		if !c {
			return nil
		}
		changed = true
		return a.store.applyOrder(ctx, tx, groupID, ids, positions, maxPosition(current)+1)
	}, groupID)
	if err != nil {
		return false, err
	}
	if changed {
		a.store.notify(ctx, core.OperationReorder, event{GroupID: groupID})
	}
	return changed, nil
}

// Clone copies the payloads of the source group behind the last item of the
// destination group, keeping their order. Returns the number of copied items.
func (a *Allocator) Clone(ctx context.Context, sourceID, destinationID uuid.UUID) (int, error) {
	var copied int64
	err := a.inGroupTx(ctx, func(tx *sql.Tx) error {
		_, maxPos, err := a.store.bounds(ctx, tx, destinationID)
		if err != nil {
			return err
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s, position, payload)
SELECT $2, $3 + row_number() OVER (ORDER BY position, created_at, %s), payload FROM %s WHERE %s = $1;`,
			a.store.table, a.store.groupColumn, a.store.idColumn, a.store.table, a.store.groupColumn)
		res, err := tx.ExecContext(ctx, query, sourceID, destinationID, maxPos)
		if err != nil {
			return fmt.Errorf("cannot clone group %s into %s: %w", sourceID, destinationID, err)
		}
		copied, _ = res.RowsAffected()
		return nil
	}, sourceID, destinationID)
	if err != nil {
		return 0, err
	}
	a.store.notify(ctx, core.OperationCreate, event{GroupID: destinationID, Count: int(copied)})
	return int(copied), nil
}

// Clear deletes all items of the group and returns how many there were
func (a *Allocator) Clear(ctx context.Context, groupID uuid.UUID) (int, error) {
	var deleted int64
	err := a.inGroupTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1;", a.store.table, a.store.groupColumn)
		res, err := tx.ExecContext(ctx, query, groupID)
		if err != nil {
			return fmt.Errorf("cannot clear group %s: %w", groupID, err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	}, groupID)
	if err != nil {
		return 0, err
	}
	a.store.notify(ctx, core.OperationClear, event{GroupID: groupID, Count: int(deleted)})
	return int(deleted), nil
}
