package config

import (
	"os"
	"strings"
)

// Kafka defaults.
const (
	DefaultKafkaBroker = "localhost:19092"
	DefaultKafkaTopic  = "collabdocs.document-events"
)

// KafkaEnabled reports whether events go to Kafka, either through a kafka
// block or the COLLABDOCS_KAFKA_BROKERS environment variable.
func KafkaEnabled(cfg *Config) bool {
	return cfg.Kafka != nil || os.Getenv("COLLABDOCS_KAFKA_BROKERS") != ""
}

// GetBrokers returns the Kafka broker addresses.
// It checks environment variables first, then falls back to config, then default.
func GetBrokers(cfg *Config) []string {
	if brokers := os.Getenv("COLLABDOCS_KAFKA_BROKERS"); brokers != "" {
		var out []string
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
		return out
	}

	if cfg.Kafka != nil && len(cfg.Kafka.Brokers) > 0 {
		return cfg.Kafka.Brokers
	}

	return []string{DefaultKafkaBroker}
}

// GetTopic returns the document event topic.
// It checks environment variables first, then falls back to config, then default.
func GetTopic(cfg *Config) string {
	if topic := os.Getenv("COLLABDOCS_KAFKA_TOPIC"); topic != "" {
		return topic
	}

	if cfg.Kafka != nil && cfg.Kafka.Topic != "" {
		return cfg.Kafka.Topic
	}

	return DefaultKafkaTopic
}
