package kafka_config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "localhost:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Brokers)
	}
	if cfg.ProducerRequireAcks != -1 {
		t.Errorf("expected require acks -1, got %d", cfg.ProducerRequireAcks)
	}
	if cfg.ProducerBatchTimeout != 10*time.Millisecond {
		t.Errorf("expected batch timeout 10ms, got %s", cfg.ProducerBatchTimeout)
	}
	if cfg.ProducerWriteTimeout != 5*time.Second {
		t.Errorf("expected write timeout 5s, got %s", cfg.ProducerWriteTimeout)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("KAFKA_PRODUCER_COMPRESSION", "zstd")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "kafka-2:9092" {
		t.Errorf("brokers not trimmed: %v", cfg.Brokers)
	}
	if cfg.ProducerCompression != "zstd" {
		t.Errorf("expected zstd, got %s", cfg.ProducerCompression)
	}
}

func TestLoad_InvalidCompression(t *testing.T) {
	t.Setenv("KAFKA_PRODUCER_COMPRESSION", "brotli")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidate_AsyncWithoutAcks(t *testing.T) {
	t.Setenv("KAFKA_PRODUCER_ASYNC", "true")
	t.Setenv("KAFKA_PRODUCER_REQUIRE_ACKS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error")
	}
}
