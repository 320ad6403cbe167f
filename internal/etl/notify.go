package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/BartekS5/reviewseed/pkg/logger"
)

// Notifier is told about every finished run.
type Notifier interface {
	Notify(ctx context.Context, s *Summary) error
}

// NotifyAll runs every notifier. Failures are logged and never change the
// outcome of the run.
func NotifyAll(ctx context.Context, s *Summary, notifiers ...Notifier) {
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, s); err != nil {
			logger.Warn("run notification failed", "run_id", s.RunID.String(), "notifier", fmt.Sprintf("%T", n), "error", err)
		}
	}
}

// AMQPNotifier publishes each run summary as a persistent JSON message to a
// durable queue.
type AMQPNotifier struct {
	URL     string
	Queue   string
	Timeout time.Duration

	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPNotifier(url, queue string) *AMQPNotifier {
	return &AMQPNotifier{URL: url, Queue: queue, Timeout: 10 * time.Second}
}

func (n *AMQPNotifier) connect() error {
	if n.ch != nil && !n.ch.IsClosed() {
		return nil
	}
	conn, err := amqp.Dial(n.URL)
	if err != nil {
		return fmt.Errorf("connecting to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		n.Queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declaring queue %s: %w", n.Queue, err)
	}
	n.conn, n.ch = conn, ch
	return nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, s *Summary) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := n.connect(); err != nil {
		return err
	}

	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	err = n.ch.PublishWithContext(ctx,
		"",      // default exchange
		n.Queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    s.RunID.String(),
			Timestamp:    time.Now(),
			Type:         "import_run",
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing run summary to %s: %w", n.Queue, err)
	}
	logger.Debug("run summary published", "queue", n.Queue, "run_id", s.RunID.String())
	return nil
}

func (n *AMQPNotifier) Close() error {
	var errs []error
	if n.ch != nil {
		errs = append(errs, n.ch.Close())
		n.ch = nil
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
		n.conn = nil
	}
	return errors.Join(errs...)
}
