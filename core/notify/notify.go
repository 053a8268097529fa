// Package notify delivers change notifications of committed mutations to the
// log, to a Kafka topic, or to several notifiers at once
package notify

import (
	"context"

	"github.com/relabs-tech/wedcards/core"
	"github.com/relabs-tech/wedcards/core/logger"
)

// Log is a notifier which writes every notification to the request's logger
type Log struct{}

// Notify implements core.Notifier
func (Log) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) {
	logger.FromContext(ctx).WithField("resource", resource).WithField("operation", operation).
		Debugln("notification", string(payload))
}

// Multi forwards every notification to all of its notifiers, in order
type Multi []core.Notifier

// Notify implements core.Notifier
func (m Multi) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, resource, operation, payload)
		}
	}
}
