package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"homecare-cloud/internal/eventing"
)

// Producer publishes relayed outbox envelopes to a topic exchange.
type Producer struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// NewProducer dials the broker and declares the exchange.
func NewProducer(amqpURL, exchange, routingKey string) (*Producer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Producer{conn: conn, ch: ch, exchange: exchange, routingKey: routingKey}, nil
}

// Publish sends the envelope carried by ctx. The routing key is the
// configured prefix plus the short event type.
func (p *Producer) Publish(ctx context.Context, event any) error {
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok {
		built, err := eventing.BuildEnvelope(event, eventing.Meta{})
		if err != nil {
			return err
		}
		env = built
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.EventID,
		CorrelationId: env.CorrelationID,
		Type:          env.EventType,
		Timestamp:     env.OccurredAt,
		Body:          body,
	}
	key := RoutingKey(p.routingKey, env.EventType)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		log.Printf("rabbitmq publish failed, reopening channel: exchange=%s key=%s err=%v", p.exchange, key, err)
		ch, chErr := p.conn.Channel()
		if chErr != nil {
			return errors.Join(err, chErr)
		}
		p.ch = ch
		return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
	}
	return nil
}

// Close closes the channel and connection.
func (p *Producer) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// LoggingBus is used when no broker is configured. Relayed events are only
// logged, so the outbox still drains.
type LoggingBus struct {
	Logger *log.Logger
}

// Publish logs the relayed envelope.
func (b LoggingBus) Publish(ctx context.Context, event any) error {
	logger := b.Logger
	if logger == nil {
		logger = log.Default()
	}
	env, _ := eventing.EnvelopeFromContext(ctx)
	logger.Printf("event relayed without broker: type=%s id=%s company=%s", env.EventType, env.EventID, env.CompanyID)
	return nil
}

// RoutingKey builds "<prefix>.<short type>", e.g. billing.BillsCommitted.
func RoutingKey(prefix, eventType string) string {
	short := eventType
	if idx := strings.LastIndex(short, "."); idx >= 0 {
		short = short[idx+1:]
	}
	if prefix == "" {
		return short
	}
	return prefix + "." + short
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %q", parsed.Scheme)
	}
	return clean, nil
}
