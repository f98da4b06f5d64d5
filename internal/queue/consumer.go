package queue

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog"

    "github.com/iliyamo/clinic-queue-booking/internal/config"
)

// Relay consumes the notification queue and forwards every event to the
// bot service, one HTTP request per target.  Delivery is best effort: a
// failed request is logged and the message is still acknowledged.
type Relay struct {
    broker config.BrokerConfig
    bot    config.BotConfig
    http   *http.Client
    log    zerolog.Logger
}

// NewRelay builds a relay.  The HTTP client timeout is the bot timeout.
func NewRelay(broker config.BrokerConfig, bot config.BotConfig, log zerolog.Logger) *Relay {
    return &Relay{
        broker: broker,
        bot:    bot,
        http:   &http.Client{Timeout: bot.Timeout},
        log:    log.With().Str("component", "notify-relay").Logger(),
    }
}

// Run connects to RabbitMQ, declares the queue (durable) and consumes it
// until ctx is cancelled.  Broker failures are retried with exponential
// backoff capped at 30s.
func (r *Relay) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(r.broker.URL)
        if err != nil {
            r.log.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = r.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        r.log.Warn().Err(err).Msg("consume loop ended; reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (r *Relay) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        r.log.Warn().Err(err).Msg("set QoS failed")
    }
    if _, err := ch.QueueDeclare(r.broker.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(r.broker.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }
    r.log.Info().Str("queue", r.broker.Queue).Msg("relay consuming")

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := r.Handle(ctx, d.Body); err != nil {
                r.log.Warn().Err(err).Msg("drop malformed notification")
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle decodes one broker message and posts it to the bot service.  It
// fails only for an undecodable message; HTTP failures are logged.
func (r *Relay) Handle(ctx context.Context, body []byte) error {
    var ev NotificationEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Event == "" {
        return errors.New("event name missing")
    }
    for _, be := range ev.Split() {
        if err := r.post(ctx, be); err != nil {
            r.log.Warn().Err(err).Str("event", be.Event).Int64("tg_id", be.TgID).Msg("bot delivery failed")
        }
    }
    return nil
}

func (r *Relay) post(ctx context.Context, be BotEvent) error {
    payload, err := json.Marshal(be)
    if err != nil {
        return err
    }
    url := strings.TrimRight(r.bot.URL, "/") + "/event"
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
    if err != nil {
        return err
    }
    req.Header.Set("Content-Type", "application/json")
    if r.bot.APIKey != "" {
        req.Header.Set("ApiKey", r.bot.APIKey)
    }
    resp, err := r.http.Do(req)
    if err != nil {
        return err
    }
    defer resp.Body.Close()
    _, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
    if resp.StatusCode >= http.StatusBadRequest {
        return fmt.Errorf("bot service answered %d", resp.StatusCode)
    }
    return nil
}
