package ordering

import (
	"context"

	"github.com/google/uuid"
)

// Manager combines store, allocator and reporter of one ordered collection
type Manager struct {
	store     *Store
	allocator *Allocator
	reporter  *Reporter
}

// New creates the store described by the builder and returns its manager
func New(b *Builder) (*Manager, error) {
	store, err := NewStore(b)
	if err != nil {
		return nil, err
	}
	allocator := NewAllocator(store)
	return &Manager{
		store:     store,
		allocator: allocator,
		reporter:  NewReporter(store, allocator),
	}, nil
}

// Store returns the underlying store
func (m *Manager) Store() *Store { return m.store }

// GetGroup returns all items of the group in ascending position
func (m *Manager) GetGroup(ctx context.Context, groupID uuid.UUID) ([]Item, error) {
	return m.store.GetGroup(ctx, groupID)
}

// Get returns a single item
func (m *Manager) Get(ctx context.Context, groupID, itemID uuid.UUID) (Item, error) {
	return m.store.Get(ctx, groupID, itemID)
}

// Search returns the items of the group whose payload contains term
func (m *Manager) Search(ctx context.Context, groupID uuid.UUID, term string) ([]Item, error) {
	return m.store.Search(ctx, groupID, term)
}

// UpdatePayload replaces the payload of an item
func (m *Manager) UpdatePayload(ctx context.Context, groupID, itemID uuid.UUID, payload string) (Item, error) {
	return m.store.UpdatePayload(ctx, groupID, itemID, payload)
}

// Append adds an item behind the last one
func (m *Manager) Append(ctx context.Context, groupID uuid.UUID, payload string) (Item, error) {
	return m.allocator.Append(ctx, groupID, payload)
}

// BulkAppend adds several items behind the last one
func (m *Manager) BulkAppend(ctx context.Context, groupID uuid.UUID, payloads []string) ([]Item, error) {
	return m.allocator.BulkAppend(ctx, groupID, payloads)
}

// InsertAt stores a new item at position and shifts the items behind it
func (m *Manager) InsertAt(ctx context.Context, groupID uuid.UUID, position int, payload string) (Item, error) {
	return m.allocator.InsertAt(ctx, groupID, position, payload)
}

// Delete removes an item and compacts the group
func (m *Manager) Delete(ctx context.Context, groupID, itemID uuid.UUID) error {
	return m.allocator.Delete(ctx, groupID, itemID)
}

// Reorder assigns new positions to all items of the group
func (m *Manager) Reorder(ctx context.Context, groupID uuid.UUID, placements []Placement) error {
	return m.allocator.Reorder(ctx, groupID, placements)
}

// Move puts a single item at a new position
func (m *Manager) Move(ctx context.Context, groupID, itemID uuid.UUID, position int) error {
	return m.allocator.Move(ctx, groupID, itemID, position)
}

// Clone copies the source group behind the destination group's items
func (m *Manager) Clone(ctx context.Context, sourceID, destinationID uuid.UUID) (int, error) {
	return m.allocator.Clone(ctx, sourceID, destinationID)
}

// Clear deletes the whole group
func (m *Manager) Clear(ctx context.Context, groupID uuid.UUID) (int, error) {
	return m.allocator.Clear(ctx, groupID)
}

// Validate checks the group's positions against 1..N
func (m *Manager) Validate(ctx context.Context, groupID uuid.UUID) (Report, error) {
	return m.reporter.Validate(ctx, groupID)
}

// Fix renumbers the group to 1..N
func (m *Manager) Fix(ctx context.Context, groupID uuid.UUID) (bool, error) {
	return m.reporter.Fix(ctx, groupID)
}

// Stats summarizes the group
func (m *Manager) Stats(ctx context.Context, groupID uuid.UUID) (Stats, error) {
	return m.reporter.Stats(ctx, groupID)
}
