package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-queue-booking/internal/config"
	"github.com/iliyamo/clinic-queue-booking/internal/queue"
)

// Notifier is the outbound notification sink.  Send never blocks the
// booking flow and never reports failure to the caller.
type Notifier interface {
	Send(ctx context.Context, event string, targets []int64, data map[string]string)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, string, []int64, map[string]string) {}

// Publisher delivers one encoded message to the broker.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// AMQPPublisher publishes to a durable RabbitMQ queue through the default
// exchange.  It dials per message; the notification rate is a handful per
// booking write.
type AMQPPublisher struct {
	cfg config.BrokerConfig
}

func NewAMQPPublisher(cfg config.BrokerConfig) *AMQPPublisher { return &AMQPPublisher{cfg: cfg} }

// Publish implements Publisher.  Messages are marked as persistent.
func (p *AMQPPublisher) Publish(ctx context.Context, body []byte) error {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.PublishWithContext(ctx,
		"",          // default exchange
		p.cfg.Queue, // routing key = queue name
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
}

// BrokerNotifier turns Send calls into NotificationEvents and publishes
// them in the background.  Errors are logged at warn and swallowed.
type BrokerNotifier struct {
	pub     Publisher
	log     zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewBrokerNotifier returns a notifier publishing through pub.  timeout
// bounds each background publish.
func NewBrokerNotifier(pub Publisher, log zerolog.Logger, timeout time.Duration) *BrokerNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BrokerNotifier{pub: pub, log: log, timeout: timeout}
}

// Send implements Notifier.  Duplicate and zero targets are dropped; an
// event without targets is not published.
func (n *BrokerNotifier) Send(ctx context.Context, event string, targets []int64, data map[string]string) {
	targets = uniqueTargets(targets)
	if len(targets) == 0 {
		return
	}
	body, err := json.Marshal(queue.NewNotificationEvent(event, targets, data))
	if err != nil {
		n.log.Warn().Err(err).Str("event", event).Msg("notification encode failed")
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.pub.Publish(pctx, body); err != nil {
			n.log.Warn().Err(err).Str("event", event).Int("targets", len(targets)).Msg("notification publish failed")
			return
		}
		n.log.Debug().Str("event", event).Int("targets", len(targets)).Msg("notification published")
	}()
}

// Wait blocks until every background publish has finished.
func (n *BrokerNotifier) Wait() { n.wg.Wait() }

func uniqueTargets(in []int64) []int64 {
	seen := make(map[int64]bool, len(in))
	out := make([]int64, 0, len(in))
	for _, t := range in {
		if t == 0 || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
