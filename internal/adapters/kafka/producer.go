package kafka

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"poolvault/pkg/logger"
)

// Producer handles Kafka message publishing.
// Writers are created lazily per topic and shared by concurrent
// callers; delivery is asynchronous so a broker outage never blocks
// the transaction path that produced the event.
type Producer struct {
	mu      sync.RWMutex
	writers map[string]*kafka.Writer
	brokers []string
	log     *logger.Logger
}

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers []string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		writers: make(map[string]*kafka.Writer),
		brokers: cfg.Brokers,
		log:     logger.Get().With("component", "kafka_producer"),
	}
}

// getWriter returns or creates a writer for a topic
func (p *Producer) getWriter(topic string) *kafka.Writer {
	p.mu.RLock()
	w, ok := p.writers[topic]
	p.mu.RUnlock()
	if ok {
		return w
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}

	w = &kafka.Writer{
		Addr:     kafka.TCP(p.brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		// Async: enqueue and return. Delivery failures surface through
		// Completion, never to the caller.
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.log.Errorf("Failed to deliver %d message(s) to %s: %v", len(messages), topic, err)
			}
		},
	}

	p.writers[topic] = w
	return w
}

// Publish enqueues a message for a topic. Only marshalling and enqueue
// failures are returned; broker errors are logged asynchronously.
func (p *Producer) Publish(ctx context.Context, topic string, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		p.log.Errorf("Failed to enqueue for %s: %v", topic, err)
		return err
	}

	p.log.Debugf("Enqueued for %s: %s", topic, key)
	return nil
}

// Close flushes and closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			p.log.Errorf("Failed to close writer for %s: %v", topic, err)
			return err
		}
	}
	return nil
}
