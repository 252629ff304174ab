package rabbitmq

import (
	"context"
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"homecare-cloud/internal/eventing"
)

// Consumer delivers envelopes from a queue to an eventing handler.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	registry *eventing.Registry
	logger   *log.Logger
}

// NewConsumer dials the broker.
func NewConsumer(amqpURL string, registry *eventing.Registry, logger *log.Logger) (*Consumer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Consumer{conn: conn, ch: ch, registry: registry, logger: logger}, nil
}

// Consume binds queue to exchange with bindingKey and runs handler for
// every delivery until ctx is done. Failed deliveries are requeued once.
func (c *Consumer) Consume(ctx context.Context, exchange, queue, bindingKey string, handler eventing.Handler) error {
	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	q, err := c.ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := c.ch.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		return err
	}
	deliveries, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				c.handle(ctx, d, handler)
			}
		}
	}()
	return nil
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery, handler eventing.Handler) {
	event, env, err := decodeDelivery(c.registry, d.Body)
	if err != nil {
		c.logger.Printf("rabbitmq drop undecodable delivery: key=%s err=%v", d.RoutingKey, err)
		_ = d.Nack(false, false)
		return
	}
	if err := handler(eventing.WithEnvelope(ctx, env), event); err != nil {
		c.logger.Printf("rabbitmq handler failed: type=%s id=%s err=%v", env.EventType, env.EventID, err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func decodeDelivery(registry *eventing.Registry, body []byte) (any, eventing.Envelope, error) {
	var env eventing.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, env, err
	}
	event, err := registry.DecodePayload(env)
	return event, env, err
}

// Close closes the channel and connection.
func (c *Consumer) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
