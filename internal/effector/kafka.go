package effector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/steveyegge/triage/internal/deduplication"
	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
)

// DefaultDecisionTopic receives one record per triaged item
const DefaultDecisionTopic = "triage.decisions"

// Producer is the part of a kgo.Client the effector needs
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// DecisionRecord is the JSON value published for each outcome
type DecisionRecord struct {
	RunID    string                 `json:"run_id"`
	Item     string                 `json:"item"`
	URL      string                 `json:"url,omitempty"`
	Hash     string                 `json:"hash"`
	State    triage.State           `json:"state"`
	CacheHit bool                   `json:"cache_hit"`
	Action   *types.TriageAction    `json:"action,omitempty"`
	RuleName string                 `json:"rule_name,omitempty"`
	Verdict  *deduplication.Verdict `json:"verdict,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	Time     time.Time              `json:"time"`
}

// Kafka publishes every outcome, failed ones included, to a topic. Records
// are keyed by content hash so all decisions for the same text land on
// the same partition.
type Kafka struct {
	mu       sync.RWMutex
	producer Producer
	topic    string
	closed   bool
}

var _ triage.Effector = (*Kafka)(nil)

// NewKafka connects to brokers
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker address is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	return NewKafkaWithProducer(client, topic), nil
}

// NewKafkaWithProducer uses an existing producer
func NewKafkaWithProducer(p Producer, topic string) *Kafka {
	if topic == "" {
		topic = DefaultDecisionTopic
	}
	return &Kafka{producer: p, topic: topic}
}

// Apply implements triage.Effector
func (k *Kafka) Apply(ctx context.Context, item *types.Item, out *triage.Outcome) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return fmt.Errorf("kafka effector is closed")
	}

	record, err := BuildRecord(k.topic, item, out)
	if err != nil {
		return err
	}
	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish decision for %s: %w", item.Ref(), err)
	}
	return nil
}

// Close flushes and closes the producer
func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	k.producer.Close()
	return nil
}

// BuildRecord encodes an outcome as a kafka record
func BuildRecord(topic string, item *types.Item, out *triage.Outcome) (*kgo.Record, error) {
	rec := DecisionRecord{
		RunID:    out.RunID,
		Item:     item.Ref(),
		URL:      item.URL,
		Hash:     out.Hash.String(),
		State:    out.State,
		CacheHit: out.CacheHit,
		Action:   out.Action,
		RuleName: out.RuleName,
		Verdict:  out.Verdict,
		Reason:   out.Reason,
		Time:     out.StartedAt.Add(out.Duration).UTC(),
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode decision record: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(rec.Hash),
		Value: value,
	}, nil
}
