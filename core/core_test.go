package core

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
)

func TestOperations_JSON_Unmarshalling(t *testing.T) {

	type Object struct {
		Operations []Operation `json:"operations"`
	}
	var object Object
	jsonRead := `{"operations":["create","update","delete","reorder","clear"]}`
	err := json.Unmarshal([]byte(jsonRead), &object)
	if err != nil {
		t.Fatal(err)
	}
	if len(object.Operations) != 5 || object.Operations[3] != OperationReorder {
		t.Fatalf("unexpected operations %v", object.Operations)
	}

	jsonRead = `{"operations":["invalid"]}`
	err = json.Unmarshal([]byte(jsonRead), &object)
	if err == nil {
		t.Fatal("invalid operation accepted")
	}
}

func TestNotifierFunc(t *testing.T) {
	var got Operation
	var n Notifier = NotifierFunc(func(ctx context.Context, resource string, operation Operation, payload []byte) {
		got = operation
	})
	n.Notify(context.Background(), "content", OperationClear, nil)
	if got != OperationClear {
		t.Fatalf("expected %s, got %s", OperationClear, got)
	}
}
