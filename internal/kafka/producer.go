package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
)

// Producer buffers messages in an inbox and writes them from one goroutine.
// Each message names its own topic, so one producer serves every event type.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int, log zerolog.Logger) *Producer {
	p := &Producer{
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log,
	}
	p.w = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  true,
		// async writes report failures here instead of from WriteMessages
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil && len(msgs) > 0 {
				p.log.Error().Err(err).Int("messages", len(msgs)).Str("topic", msgs[0].Topic).Msg("kafka write failed")
			}
		},
	}
	return p
}

// Start runs the writer loop until Close drains the inbox.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.WithoutCancel(ctx), m); err != nil {
				p.log.Error().Err(err).Str("topic", m.Topic).Msg("kafka enqueue failed")
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Error().Err(err).Msg("kafka writer close")
		}
	}()
}

func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn().Str("topic", topic).Msg("publish after close dropped")
		return
	}
	p.inbox <- kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// PublishEnvelope keys the message by the envelope's order id.
func (p *Producer) PublishEnvelope(topic string, env orders.Envelope) {
	b, headers, err := EncodeEnvelope(env)
	if err != nil {
		p.log.Error().Err(err).Str("event_type", env.EventType).Msg("encode envelope")
		return
	}
	p.Publish(topic, orders.PartitionKey(env.CorrelationID), b, headers...)
}

// Close stops accepting messages; the loop flushes what is left.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

// WaitClosed blocks until the writer loop has flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
