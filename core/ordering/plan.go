package ordering

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// planReorder checks that placements are a permutation of 1..N over exactly the
// items of the group and returns them as parallel slices
func planReorder(current []slot, placements []Placement) ([]uuid.UUID, []int, error) {
	n := len(current)
	known := make(map[uuid.UUID]bool, n)
	for _, s := range current {
		known[s.ID] = true
	}

	placedIDs := make(map[uuid.UUID]bool, len(placements))
	placedPositions := make(map[int]bool, len(placements))
	ids := make([]uuid.UUID, 0, len(placements))
	positions := make([]int, 0, len(placements))
	for _, p := range placements {
		if !known[p.ItemID] {
			return nil, nil, fmt.Errorf("item %s is not in the group: %w", p.ItemID, ErrNotFound)
		}
		if placedIDs[p.ItemID] {
			return nil, nil, fmt.Errorf("item %s is placed twice: %w", p.ItemID, ErrInvalidOrder)
		}
		if p.Position < 1 || p.Position > n {
			return nil, nil, fmt.Errorf("position %d is not within 1..%d: %w", p.Position, n, ErrInvalidOrder)
		}
		if placedPositions[p.Position] {
			return nil, nil, fmt.Errorf("position %d is assigned twice: %w", p.Position, ErrInvalidOrder)
		}
		placedIDs[p.ItemID] = true
		placedPositions[p.Position] = true
		ids = append(ids, p.ItemID)
		positions = append(positions, p.Position)
	}
	if len(placements) != n {
		return nil, nil, fmt.Errorf("%d placements for %d items: %w", len(placements), n, ErrInvalidOrder)
	}
	return ids, positions, nil
}

// planMove takes the item out of the current order and puts it back at target.
// The result is dense even if the current order is not.
func planMove(current []slot, itemID uuid.UUID, target int) ([]uuid.UUID, []int, error) {
	n := len(current)
	index := -1
	for i, s := range current {
		if s.ID == itemID {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if target < 1 || target > n {
		return nil, nil, fmt.Errorf("position %d is not within 1..%d: %w", target, n, ErrInvalidPosition)
	}

	ids := make([]uuid.UUID, 0, n)
	for i, s := range current {
		if i != index {
			ids = append(ids, s.ID)
		}
	}
	ids = append(ids, uuid.Nil)
	copy(ids[target:], ids[target-1:])
	ids[target-1] = itemID
	return ids, sequence(n), nil
}

// planFix renumbers the current order to 1..N. changed is false if the order
// already is dense, in which case nothing must be written.
func planFix(current []slot) (ids []uuid.UUID, positions []int, changed bool) {
	ids = make([]uuid.UUID, len(current))
	for i, s := range current {
		ids[i] = s.ID
		if s.Position != i+1 {
			changed = true
		}
	}
	return ids, sequence(len(current)), changed
}

// Evaluate compares a group's positions against 1..N
func Evaluate(positions []int) Report {
	actual := append([]int{}, positions...)
	sort.Ints(actual)
	expected := sequence(len(actual))

	r := Report{Actual: actual, Expected: expected}
	for i := range actual {
		if actual[i] != expected[i] {
			r.HasGaps = true
		}
		if i > 0 && actual[i] == actual[i-1] {
			r.HasDuplicates = true
		}
	}
	r.IsValid = !r.HasGaps && !r.HasDuplicates
	return r
}

// sequence returns 1..n
func sequence(n int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = i + 1
	}
	return s
}

// maxPosition returns the highest position of the slots, 0 for none
func maxPosition(slots []slot) int {
	m := 0
	for _, s := range slots {
		if s.Position > m {
			m = s.Position
		}
	}
	return m
}
