//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/kafka"
	"github.com/couchcryptid/eplus-toolkit/internal/config"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "test-simulation-results"

// TestPublisherRoundTrip publishes run results through the adapter and
// reads them back with a plain consumer.
func TestPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	pub := kafka.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = pub.Close() })

	finished := time.Date(2024, 6, 1, 10, 5, 0, 0, time.UTC)
	results := []domain.RunResult{
		{ID: "run-1", BatchID: "batch-1", Model: "1ZoneUncontrolled.idf", Status: domain.StatusPassed, FinishedAt: finished},
		{ID: "run-2", BatchID: "batch-1", Model: "5ZoneAutoDXVAV.idf", Status: domain.StatusFailed, Failure: "engine exit code 1", FinishedAt: finished},
	}
	for _, r := range results {
		require.NoError(t, pub.Publish(ctx, r))
	}

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	for _, want := range results {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from results topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}

		var got domain.RunResult
		require.NoError(t, json.Unmarshal(msg.Value, &got))

		assert.Equal(t, want.ID, string(msg.Key))
		assert.Equal(t, want.Model, got.Model)
		assert.Equal(t, want.Status, got.Status)
		assert.Equal(t, want.Failure, got.Failure)
		assert.Equal(t, string(want.Status), headers["status"])
		assert.Equal(t, "batch-1", headers["batch_id"])
		assert.Equal(t, finished.Format(time.RFC3339), headers["finished_at"])
	}
}
