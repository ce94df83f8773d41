package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	kafkago "github.com/segmentio/kafka-go"
)

var (
	// ErrProducerClosed indicates the producer has been closed
	ErrProducerClosed = errors.New("kafka producer is closed")

	// ErrEmptyKey indicates the message key is empty
	ErrEmptyKey = errors.New("message key cannot be empty")

	// ErrEmptyValue indicates the message value is empty
	ErrEmptyValue = errors.New("message value cannot be empty")
)

type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota

	// ErrorTypeTransient represents network issues and timeouts
	ErrorTypeTransient

	// ErrorTypePermanent represents schema mismatches, unknown topics and bad data
	ErrorTypePermanent
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// KafkaError wraps a publish failure with its classification
type KafkaError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]any
}

func (e *KafkaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *KafkaError) Unwrap() error {
	return e.Err
}

func (e *KafkaError) IsTransient() bool {
	return e.Type == ErrorTypeTransient
}

func NewPublishError(topic string, err error) *KafkaError {
	return &KafkaError{
		Type:    ClassifyError(err),
		Message: "failed to publish message",
		Err:     err,
		Details: map[string]any{"topic": topic},
	}
}

// ClassifyError decides whether a publish failure is worth retrying. Broker
// error codes and network errors are classified by type; plain errors fall
// back to their message.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var kafkaErr *KafkaError
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Type
	}

	var writeErrs kafkago.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && ClassifyError(e) != ErrorTypeTransient {
				return ErrorTypePermanent
			}
		}
		return ErrorTypeTransient
	}

	var code kafkago.Error
	if errors.As(err, &code) {
		if code.Temporary() {
			return ErrorTypeTransient
		}
		return ErrorTypePermanent
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.As(err, &netErr) && netErr.Timeout():
		return ErrorTypeTransient
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection refused", "timeout", "no such host", "connection reset"} {
		if strings.Contains(msg, pattern) {
			return ErrorTypeTransient
		}
	}
	return ErrorTypePermanent
}
