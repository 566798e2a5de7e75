package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// TradePublisher sends each trade to Kafka keyed by instrument, so trades of
// one instrument land on one partition in the order they were produced.
type TradePublisher struct {
	writer MessageWriter
}

// NewKafkaWriter builds the production writer for cfg.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
}

func NewTradePublisher(w MessageWriter) *TradePublisher {
	return &TradePublisher{writer: w}
}

func (p *TradePublisher) PublishTrades(ctx context.Context, trades []orderbook.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		val, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode trade %d: %w", t.Sequence, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(t.Instrument),
			Value: val,
			Time:  t.Timestamp,
			Headers: []kafka.Header{
				{Key: "trade-seq", Value: []byte(strconv.FormatUint(t.Sequence, 10))},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d trades: %w", len(msgs), err)
	}
	return nil
}

func (p *TradePublisher) Close() error { return p.writer.Close() }
