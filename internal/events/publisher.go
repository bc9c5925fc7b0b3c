package events

import (
	"context"

	"poolvault/internal/adapters/kafka"
	"poolvault/internal/domain/member"
	"poolvault/pkg/logger"
)

// Publisher emits pool lifecycle events to the event stream.
// Publishing is best-effort: a broker outage must never fail the
// operation that produced the event.
type Publisher interface {
	DepositExecuted(ctx context.Context, e DepositEvent)
	WithdrawalExecuted(ctx context.Context, e WithdrawalEvent)
	RebalanceExecuted(ctx context.Context, e RebalanceEvent)
	FeesChanged(ctx context.Context, e FeeEvent)
	DriftDetected(ctx context.Context, e DriftEvent)
	ResyncCompleted(ctx context.Context, e ResyncEvent)
}

// Compile-time check
var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher implements Publisher on top of the Kafka producer
type KafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewKafkaPublisher creates a Kafka-backed event publisher
func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		log:      logger.Get().With("component", "events"),
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, topic, key string, event interface{}) {
	if err := p.producer.Publish(ctx, topic, key, event); err != nil {
		p.log.Warnw("Event publish failed", "topic", topic, "error", err)
	}
}

// DepositExecuted emits a deposit event keyed by wallet
func (p *KafkaPublisher) DepositExecuted(ctx context.Context, e DepositEvent) {
	p.publish(ctx, kafka.TopicDeposits, member.Normalize(e.Wallet), e)
}

// WithdrawalExecuted emits a withdrawal event keyed by wallet
func (p *KafkaPublisher) WithdrawalExecuted(ctx context.Context, e WithdrawalEvent) {
	p.publish(ctx, kafka.TopicWithdrawals, member.Normalize(e.Wallet), e)
}

// RebalanceExecuted emits a rebalance event
func (p *KafkaPublisher) RebalanceExecuted(ctx context.Context, e RebalanceEvent) {
	p.publish(ctx, kafka.TopicRebalances, e.ExecutorID, e)
}

// FeesChanged emits a fee accrual or withdrawal event
func (p *KafkaPublisher) FeesChanged(ctx context.Context, e FeeEvent) {
	p.publish(ctx, kafka.TopicFees, e.Kind, e)
}

// DriftDetected emits a reconciliation drift event
func (p *KafkaPublisher) DriftDetected(ctx context.Context, e DriftEvent) {
	p.publish(ctx, kafka.TopicDrift, e.Field, e)
}

// ResyncCompleted emits a resync summary event
func (p *KafkaPublisher) ResyncCompleted(ctx context.Context, e ResyncEvent) {
	p.publish(ctx, kafka.TopicResync, "resync", e)
}

// NoopPublisher drops all events; used when Kafka is not configured
type NoopPublisher struct{}

func (NoopPublisher) DepositExecuted(context.Context, DepositEvent)       {}
func (NoopPublisher) WithdrawalExecuted(context.Context, WithdrawalEvent) {}
func (NoopPublisher) RebalanceExecuted(context.Context, RebalanceEvent)   {}
func (NoopPublisher) FeesChanged(context.Context, FeeEvent)               {}
func (NoopPublisher) DriftDetected(context.Context, DriftEvent)           {}
func (NoopPublisher) ResyncCompleted(context.Context, ResyncEvent)        {}
