package client

import (
	"context"
	"time"
	"vaxslot/pkg/kafka"
	kafka_config "vaxslot/pkg/kafka/config"
	kafka_middleware "vaxslot/pkg/kafka/middleware"
	"vaxslot/pkg/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Client holds the process-wide connections to external systems.
type Client struct {
	Mongo        *mongo.Client
	Producer     *kafka.Producer
	EventMetrics *kafka_middleware.Metrics
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB", "error", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
}

func (c *Client) SetProducer(log *logger.Logger, topic, dlqTopic string) {
	cfg, err := kafka_config.Load()
	if err != nil {
		log.Fatal("Invalid Kafka configuration", "error", err)
	}
	cfg.LogConfiguration(log.Info)

	producer, err := kafka.NewProducer(cfg, topic, dlqTopic, log)
	if err != nil {
		log.Fatal("Failed to create Kafka producer", "error", err, "topic", topic)
	}
	if cfg.EnableMiddleware {
		c.EventMetrics = kafka_middleware.NewMetrics()
		producer.Use(kafka_middleware.LoggingProducerMiddleware(log))
		producer.Use(kafka_middleware.MetricsProducerMiddleware(c.EventMetrics))
	}

	log.Info("Kafka producer ready", "topic", topic, "dlq_topic", dlqTopic)
	c.Producer = producer
}

// Ping checks the document store. Without a Mongo connection the process
// runs on the in-memory store, which is always reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c.Mongo == nil {
		return nil
	}
	return c.Mongo.Ping(ctx, nil)
}

func (c *Client) GracefulShutdown(log *logger.Logger) {
	if c.EventMetrics != nil {
		log.Info("Event publishing totals", "events", c.EventMetrics.Snapshot())
	}
	if c.Producer != nil {
		if err := c.Producer.Close(); err != nil {
			log.Error("Failed to close Kafka producer", "error", err)
		}
	}
	if c.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Error("Failed to disconnect MongoDB", "error", err)
		}
	}
}
