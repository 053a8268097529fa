package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/wedcards/core"
	"github.com/relabs-tech/wedcards/core/logger"
)

// headers of a notification message
const (
	HeaderOperation = "operation"
	HeaderLogger    = "logger"
)

// ErrClosed is returned when publishing on a closed notifier
var ErrClosed = errors.New("notifier is closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaBuilder is a builder helper for the Kafka notifier
type KafkaBuilder struct {
	// Brokers are the addresses of the Kafka brokers
	Brokers []string
	// Topic receives all notifications
	Topic string
	// QueueSize is the number of notifications buffered before new ones are dropped.
	// Defaults to 256.
	QueueSize int
	// WriteTimeout bounds the delivery of one message. Defaults to 5 seconds.
	WriteTimeout time.Duration
}

// Kafka publishes notifications to a Kafka topic, keyed by resource. Messages are
// queued and delivered in order by a single background worker, a full queue
// drops notifications.
type Kafka struct {
	writer       messageWriter
	writeTimeout time.Duration
	queue        chan kafka.Message
	done         chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewKafka creates a Kafka notifier and starts its worker. Call Close to flush
// and stop it.
func NewKafka(kb *KafkaBuilder) *Kafka {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(kb.Brokers...),
		Topic:        kb.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafka(writer, kb.QueueSize, kb.WriteTimeout)
}

func newKafka(writer messageWriter, queueSize int, writeTimeout time.Duration) *Kafka {
	if queueSize <= 0 {
		queueSize = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	k := &Kafka{
		writer:       writer,
		writeTimeout: writeTimeout,
		queue:        make(chan kafka.Message, queueSize),
		done:         make(chan struct{}),
	}
	go k.run()
	return k
}

// Notify implements core.Notifier. It never blocks.
func (k *Kafka) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) {
	if err := k.enqueue(ctx, resource, operation, payload); err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("dropped notification for", resource, operation)
	}
}

func (k *Kafka) enqueue(ctx context.Context, resource string, operation core.Operation, payload []byte) error {
	msg := kafka.Message{
		Key:   []byte(resource),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderOperation, Value: []byte(operation)},
			{Key: HeaderLogger, Value: logger.SerializeLoggerContext(ctx)},
		},
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrClosed
	}
	select {
	case k.queue <- msg:
		return nil
	default:
		return errors.New("notification queue is full")
	}
}

func (k *Kafka) run() {
	defer close(k.done)
	for msg := range k.queue {
		ctx, cancel := context.WithTimeout(context.Background(), k.writeTimeout)
		err := k.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			rlog := logger.FromContext(logger.ContextWithLoggerFromData(context.Background(), headerValue(msg, HeaderLogger)))
			rlog.WithError(err).Errorln("cannot publish notification for", string(msg.Key))
		}
	}
}

// Close delivers the queued notifications and closes the writer
func (k *Kafka) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.queue)
	k.mu.Unlock()

	<-k.done
	return k.writer.Close()
}

func headerValue(msg kafka.Message, key string) []byte {
	for _, h := range msg.Headers {
		if h.Key == key {
			return h.Value
		}
	}
	return nil
}
