package ordering

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind is the operation of a Command
type Kind string

// supported command kinds
const (
	KindAppend   Kind = "append"
	KindInsertAt Kind = "insertAt"
	KindDelete   Kind = "delete"
	KindReorder  Kind = "reorder"
)

// Command is a single mutation request against a group
type Command struct {
	GroupID        uuid.UUID   `json:"group_id"`
	Operation      Kind        `json:"operation"`
	Payload        string      `json:"payload,omitempty"`
	TargetPosition int         `json:"target_position,omitempty"`
	ItemID         uuid.UUID   `json:"item_id,omitempty"`
	Positions      []Placement `json:"positions,omitempty"`
}

// ErrUnknownOperation is returned by Dispatch for an unsupported command kind
var ErrUnknownOperation = errors.New("unknown operation")

// Dispatch executes the command and returns the group's items afterwards
func (m *Manager) Dispatch(ctx context.Context, cmd Command) ([]Item, error) {
	var err error
	switch cmd.Operation {
	case KindAppend:
		_, err = m.Append(ctx, cmd.GroupID, cmd.Payload)
	case KindInsertAt:
		_, err = m.InsertAt(ctx, cmd.GroupID, cmd.TargetPosition, cmd.Payload)
	case KindDelete:
		err = m.Delete(ctx, cmd.GroupID, cmd.ItemID)
	case KindReorder:
		err = m.Reorder(ctx, cmd.GroupID, cmd.Positions)
	default:
		err = fmt.Errorf("%w '%s'", ErrUnknownOperation, cmd.Operation)
	}
	if err != nil {
		return nil, err
	}
	return m.GetGroup(ctx, cmd.GroupID)
}
