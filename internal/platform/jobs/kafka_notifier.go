package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

// recordProducer is the slice of *kgo.Client the notifier needs.
type recordProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaNotifier produces order notifications to a Kafka topic keyed by order id.
type KafkaNotifier struct {
	producer recordProducer
	topic    string
	marshal  func(any) ([]byte, error)
}

// NewKafkaClient dials the brokers with idempotent, keyed production to topic.
func NewKafkaClient(brokers []string, topic string, opts ...kgo.Opt) (*kgo.Client, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka notifier: brokers are required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka notifier: new client: %w", err)
	}
	return client, nil
}

// NewKafkaNotifier wraps a producer.
func NewKafkaNotifier(producer recordProducer, topic string) (*KafkaNotifier, error) {
	if producer == nil {
		return nil, errors.New("kafka notifier: producer is required")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("kafka notifier: topic is required")
	}
	return &KafkaNotifier{producer: producer, topic: topic, marshal: json.Marshal}, nil
}

// Notify produces one record and waits for the broker acknowledgement.
func (k *KafkaNotifier) Notify(ctx context.Context, event services.NotificationEvent) error {
	if k == nil || k.producer == nil {
		return errors.New("kafka notifier: not initialised")
	}
	data, err := k.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := eventAttributes(event)
	headers := make([]kgo.RecordHeader, 0, len(attrs))
	for key, value := range attrs {
		headers = append(headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
	}

	record := &kgo.Record{
		Topic:   k.topic,
		Key:     []byte(eventKey(event)),
		Value:   data,
		Headers: headers,
	}
	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", event.Type, err)
	}
	return nil
}
