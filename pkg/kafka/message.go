package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message represents a Kafka message with metadata
type Message struct {
	Key       string            // Partition key (appointment id)
	Value     []byte            // JSON payload
	Headers   map[string]string // Message headers
	Topic     string            // Topic name
	Timestamp time.Time         // Message timestamp
}

// Header keys shared by every producer
const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"
	HeaderSchemaVersion = "schema-version"
	HeaderSource        = "source"
	HeaderTimestamp     = "timestamp"
	HeaderOriginalTopic = "original-topic"
	HeaderDLQError      = "dlq-error"
	HeaderDLQErrorType  = "dlq-error-type"
	HeaderDLQTimestamp  = "dlq-timestamp"
)

// MessageOption sets a header or the timestamp on a new message.
type MessageOption func(*Message)

func WithEventType(eventType string) MessageOption {
	return func(m *Message) { m.Headers[HeaderEventType] = eventType }
}

func WithSchemaVersion(version string) MessageOption {
	return func(m *Message) { m.Headers[HeaderSchemaVersion] = version }
}

func WithSource(source string) MessageOption {
	return func(m *Message) { m.Headers[HeaderSource] = source }
}

// WithCorrelationID is a no-op for an empty id.
func WithCorrelationID(id string) MessageOption {
	return func(m *Message) {
		if id != "" {
			m.Headers[HeaderCorrelationID] = id
		}
	}
}

// WithTimestamp ignores the zero time.
func WithTimestamp(ts time.Time) MessageOption {
	return func(m *Message) {
		if !ts.IsZero() {
			m.Timestamp = ts.UTC()
		}
	}
}

// NewMessage JSON-encodes value and stamps the message with a fresh event id.
func NewMessage(key string, value any, opts ...MessageOption) (Message, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode message %q: %w", key, err)
	}

	m := Message{
		Key:       key,
		Value:     data,
		Headers:   map[string]string{HeaderEventID: uuid.NewString()},
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.Headers[HeaderTimestamp] = m.Timestamp.Format(time.RFC3339)
	return m, nil
}

func (m *Message) DecodeValue(v any) error {
	return json.Unmarshal(m.Value, v)
}

func (m *Message) GetEventID() string {
	return m.Headers[HeaderEventID]
}

func (m *Message) GetEventType() string {
	return m.Headers[HeaderEventType]
}

func (m *Message) GetCorrelationID() string {
	return m.Headers[HeaderCorrelationID]
}
