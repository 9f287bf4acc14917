package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/queue"
)

// RabbitNotifier publishes email events to the durable auth.email queue.
// It dials per message; failures are logged and reported as false so the
// calling flow is never interrupted. Messages are persistent.
type RabbitNotifier struct {
	URL     string
	Timeout time.Duration
	Log     *zap.Logger
	Now     func() time.Time
}

// NewRabbitNotifier returns a notifier publishing to the broker at url.
func NewRabbitNotifier(url string, log *zap.Logger) *RabbitNotifier {
	return &RabbitNotifier{URL: url, Timeout: 5 * time.Second, Log: log, Now: time.Now}
}

func (n *RabbitNotifier) SendPasswordResetEmail(ctx context.Context, email, token, name string) bool {
	return n.publish(ctx, q.EmailEvent{Kind: q.KindPasswordReset, To: email, Name: name, Token: token})
}

func (n *RabbitNotifier) SendPasswordChangeConfirmation(ctx context.Context, email, name string) bool {
	return n.publish(ctx, q.EmailEvent{Kind: q.KindPasswordChanged, To: email, Name: name})
}

func (n *RabbitNotifier) SendWelcomeEmail(ctx context.Context, email, name string) bool {
	return n.publish(ctx, q.EmailEvent{Kind: q.KindWelcome, To: email, Name: name})
}

func (n *RabbitNotifier) publish(ctx context.Context, ev q.EmailEvent) bool {
	ev.RequestedAt = n.Now().UTC()
	log := n.Log.With(zap.String("kind", string(ev.Kind)))

	ctx, cancel := context.WithTimeout(ctx, n.Timeout)
	defer cancel()

	conn, err := amqp.DialConfig(n.URL, amqp.Config{Dial: amqp.DefaultDial(n.Timeout)})
	if err != nil {
		log.Warn("rabbitmq: dial failed", zap.Error(err))
		return false
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return false
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(q.EmailQueueName, true, false, false, false, nil); err != nil {
		log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return false
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Warn("rabbitmq: marshal event failed", zap.Error(err))
		return false
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.RequestedAt,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.EmailQueueName, false, false, pub); err != nil {
		log.Warn("rabbitmq: publish failed", zap.Error(err))
		return false
	}
	return true
}
