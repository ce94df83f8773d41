package kafka_middleware

import (
	"context"
	"sync"
	"time"

	"vaxslot/pkg/kafka"
)

// Counts is the publish outcome for one event type.
type Counts struct {
	Published          int64         `json:"published"`
	Failed             int64         `json:"failed"`
	AvgPublishDuration time.Duration `json:"avg_publish_duration"`
}

type counter struct {
	published int64
	failed    int64
	total     time.Duration
}

// Metrics counts publishes per event type.
type Metrics struct {
	mu     sync.Mutex
	byType map[string]*counter
}

func NewMetrics() *Metrics {
	return &Metrics{byType: make(map[string]*counter)}
}

func (m *Metrics) observe(eventType string, took time.Duration, err error) {
	if eventType == "" {
		eventType = "unknown"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byType[eventType]
	if !ok {
		c = &counter{}
		m.byType[eventType] = c
	}
	c.total += took
	if err != nil {
		c.failed++
	} else {
		c.published++
	}
}

func (m *Metrics) Snapshot() map[string]Counts {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Counts, len(m.byType))
	for eventType, c := range m.byType {
		counts := Counts{Published: c.published, Failed: c.failed}
		if n := c.published + c.failed; n > 0 {
			counts.AvgPublishDuration = c.total / time.Duration(n)
		}
		out[eventType] = counts
	}
	return out
}

func MetricsProducerMiddleware(m *Metrics) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		m.observe(msg.GetEventType(), time.Since(start), err)
		return err
	}
}
