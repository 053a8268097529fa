package core

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Operation represents a modifying storage operation on an ordered collection or
// a form, one of Create, Update, Delete, Reorder, Clear
type Operation string

// all supported operations
const (
	OperationCreate  Operation = "create"
	OperationRead    Operation = "read"
	OperationUpdate  Operation = "update"
	OperationDelete  Operation = "delete"
	OperationList    Operation = "list"
	OperationReorder Operation = "reorder"
	OperationClear   Operation = "clear"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete, OperationList,
		OperationReorder, OperationClear:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// Notifier receives a notification after each committed mutation. Implementations
// must not block the caller for long and report their own failures.
type Notifier interface {
	Notify(ctx context.Context, resource string, operation Operation, payload []byte)
}

// NotifierFunc adapts a plain function to the Notifier interface
type NotifierFunc func(ctx context.Context, resource string, operation Operation, payload []byte)

// Notify calls f
func (f NotifierFunc) Notify(ctx context.Context, resource string, operation Operation, payload []byte) {
	f(ctx, resource, operation, payload)
}
