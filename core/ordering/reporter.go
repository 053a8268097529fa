package ordering

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Reporter provides read-only diagnostics of a group plus the explicit repair
type Reporter struct {
	store     *Store
	allocator *Allocator
}

// NewReporter returns a reporter. Fix runs through the allocator so that it is
// serialized with all other mutations of the group.
func NewReporter(store *Store, allocator *Allocator) *Reporter {
	return &Reporter{store: store, allocator: allocator}
}

// Validate compares the group's positions against 1..N
func (r *Reporter) Validate(ctx context.Context, groupID uuid.UUID) (Report, error) {
	query := fmt.Sprintf("SELECT position FROM %s WHERE %s = $1 ORDER BY position;", r.store.table, r.store.groupColumn)
	rows, err := r.store.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return Report{}, fmt.Errorf("cannot query positions of group %s: %w", groupID, err)
	}
	defer rows.Close()
	positions := []int{}
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return Report{}, fmt.Errorf("cannot scan positions of group %s: %w", groupID, err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return Report{}, err
	}
	return Evaluate(positions), nil
}

// Fix reassigns 1..N to the group in its current order. Running it on a dense
// group changes nothing. Returns whether positions were rewritten.
func (r *Reporter) Fix(ctx context.Context, groupID uuid.UUID) (bool, error) {
	return r.allocator.fix(ctx, groupID)
}

// Stats returns count, highest position and average payload length of the group
func (r *Reporter) Stats(ctx context.Context, groupID uuid.UUID) (Stats, error) {
	query := fmt.Sprintf(`SELECT count(*), COALESCE(max(position), 0), COALESCE(avg(length(payload)), 0)::float8
FROM %s WHERE %s = $1;`, r.store.table, r.store.groupColumn)
	var s Stats
	err := r.store.db.QueryRowContext(ctx, query, groupID).Scan(&s.Total, &s.MaxPosition, &s.AvgPayloadLength)
	if err != nil {
		return Stats{}, fmt.Errorf("cannot read statistics of group %s: %w", groupID, err)
	}
	return s, nil
}
