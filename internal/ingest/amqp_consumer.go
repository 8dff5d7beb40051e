package ingest

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const maxBackoff = 30 * time.Second

// AMQPConsumer reads snapshots from a durable RabbitMQ queue. It reconnects
// with exponential backoff until ctx is done.
type AMQPConsumer struct {
	url     string
	queue   string
	handler *Handler
	log     *zap.Logger
}

func NewAMQPConsumer(url, queue string, handler *Handler, log *zap.Logger) *AMQPConsumer {
	return &AMQPConsumer{url: url, queue: queue, handler: handler, log: log}
}

func (c *AMQPConsumer) Start(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("AMQP dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				break
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			break
		}
		c.log.Warn("AMQP consume loop ended, reconnecting", zap.Error(err))
		sleep(ctx, 2*time.Second)
	}
	c.log.Info("AMQP consumer stopped")
}

func (c *AMQPConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return Error.New("channel open: %v", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("AMQP set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return Error.New("queue declare: %v", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return Error.New("queue consume: %v", err)
	}
	c.log.Info("AMQP consumer listening", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return Error.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

// deliver acks stored snapshots, drops the ones redelivery cannot fix and
// requeues the rest.
func (c *AMQPConsumer) deliver(ctx context.Context, d amqp.Delivery) {
	res, err := c.handler.Handle(ctx, d.Body)
	switch {
	case err == nil:
		c.log.Debug("AMQP snapshot stored", zap.Int("lot_id", res.LotID))
		_ = d.Ack(false)
	case Permanent(err):
		c.log.Warn("AMQP snapshot rejected", zap.Error(err))
		_ = d.Nack(false, false)
	default:
		c.log.Error("AMQP snapshot failed, requeueing", zap.Error(err))
		_ = d.Nack(false, true)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
