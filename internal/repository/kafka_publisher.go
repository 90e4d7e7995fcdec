package repository

import (
	"context"

	"TradeLab/internal/domain/models"
	"TradeLab/internal/domain/repository"
	pkgkafka "TradeLab/pkg/kafka"
)

// KafkaPublisher implements Publisher for Kafka. Results are keyed by symbol.
type KafkaPublisher struct {
	producer      *pkgkafka.Producer
	topic         string
	includeSeries bool
}

var _ repository.Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string, includeSeries bool) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, includeSeries: includeSeries}
}

func (p *KafkaPublisher) Publish(ctx context.Context, r *models.BacktestResult) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.Symbol), models.NewBacktestResponse(*r, p.includeSeries))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, results []*models.BacktestResult) error {
	if len(results) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(r.Symbol),
			Value: models.NewBacktestResponse(*r, p.includeSeries),
		})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
