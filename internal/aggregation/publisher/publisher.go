// Package publisher streams finished runs to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"upagg/internal/aggregation/models"
)

const (
	headerRunID = "run_id"
	headerKind  = "kind"

	kindResult  = "result"
	kindSummary = "run_summary"

	defaultBatchSize = 1000
)

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes one record per final row keyed by entity id, then a
// summary record keyed by run id.
type KafkaPublisher struct {
	producer  Producer
	topic     string
	batchSize int
}

func NewKafka(producer Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, batchSize: defaultBatchSize}
}

func (p *KafkaPublisher) PublishRun(ctx context.Context, report *models.Report) error {
	runID := []byte(report.RunID.String())
	batch := make([]*kgo.Record, 0, min(p.batchSize, len(report.Results)+1))

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.producer.ProduceSync(ctx, batch...).FirstErr(); err != nil {
			return fmt.Errorf("produce to %s: %w", p.topic, err)
		}
		batch = batch[:0]
		return nil
	}

	for _, r := range report.Results {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal result %s: %w", r.EntityID, err)
		}
		batch = append(batch, p.record([]byte(r.EntityID), value, runID, kindResult))
		if len(batch) == p.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	summary, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	batch = append(batch, p.record(runID, summary, runID, kindSummary))
	return flush()
}

func (p *KafkaPublisher) record(key, value, runID []byte, kind string) *kgo.Record {
	return &kgo.Record{
		Topic: p.topic,
		Key:   key,
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerRunID, Value: runID},
			{Key: headerKind, Value: []byte(kind)},
		},
	}
}
