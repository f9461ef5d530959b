package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gridcap/gridcap/internal/core"
	"github.com/gridcap/gridcap/internal/stage"
)

const KafkaName = "kafka"

// KafkaConfig configures the kafka sink.
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	BatchTimeout string   `mapstructure:"batch_timeout"`
	Async        bool     `mapstructure:"async"`
}

// Kafka publishes one JSON record per packet row.
type Kafka struct {
	writer *kafka.Writer
}

func init() {
	Register(KafkaName, func(params map[string]any) (Sink, error) {
		var cfg KafkaConfig
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return NewKafka(&cfg)
	})
}

// NewKafka validates the connection parameters and builds the writer.
func NewKafka(cfg *KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka sink requires brokers", core.ErrConfigInvalid)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: kafka sink requires topic", core.ErrConfigInvalid)
	}
	batchTimeout := 100 * time.Millisecond
	if cfg.BatchTimeout != "" {
		d, err := time.ParseDuration(cfg.BatchTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: batch_timeout %q: %v", core.ErrConfigInvalid, cfg.BatchTimeout, err)
		}
		batchTimeout = d
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: batchTimeout,
		Compression:  kafka.Snappy,
		Async:        cfg.Async,
	}
	return &Kafka{writer: w}, nil
}

func (k *Kafka) Name() string { return KafkaName }

func (k *Kafka) Send(ctx context.Context, m *stage.Message) error {
	switch m.Kind() {
	case stage.KindControl:
		ctl, err := m.Control()
		if err != nil {
			return err
		}
		value, err := json.Marshal(ctl.Fields)
		if err != nil {
			return fmt.Errorf("encode control: %w", err)
		}
		return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ctl.Name), Value: value})
	default:
		b, err := m.Batch()
		if err != nil {
			return err
		}
		rows := stage.Rows(b, m.Selected())
		msgs := make([]kafka.Message, 0, len(rows))
		for _, row := range rows {
			value, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("encode row: %w", err)
			}
			msgs = append(msgs, kafka.Message{Value: value})
		}
		if len(msgs) == 0 {
			return nil
		}
		return k.writer.WriteMessages(ctx, msgs...)
	}
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
