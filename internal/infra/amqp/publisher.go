// Package amqp tees the audit trail onto a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/logger"
)

// Routing keys on the audit exchange.
const (
	KeyAnswerRecorded  = "answer.recorded"
	KeySimulatorAction = "simulator.action"
)

// Channel is the part of *amqp091.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends audit records as persistent JSON messages.
type Publisher struct {
	conn     *amqp091.Connection
	channel  Channel
	exchange string
	now      func() time.Time
}

// Dial connects, opens a channel and declares the durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = "quiz.audit"
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	p := NewPublisher(ch, exchange)
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an already declared channel.
func NewPublisher(ch Channel, exchange string) *Publisher {
	return &Publisher{channel: ch, exchange: exchange, now: time.Now}
}

func (p *Publisher) AppendAnswer(ctx context.Context, record domain.AnsweredRecord) error {
	return p.publish(ctx, KeyAnswerRecorded, record.ID, record)
}

func (p *Publisher) AppendAction(ctx context.Context, action domain.SimulatorAction) error {
	return p.publish(ctx, KeySimulatorAction, action.ActionID, action)
}

func (p *Publisher) publish(ctx context.Context, key, messageID string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.channel.PublishWithContext(pubCtx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    messageID,
		Timestamp:    p.now(),
		Body:         raw,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	chErr := p.channel.Close()
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("error closing RabbitMQ connection: %w", err)
		}
	}
	return chErr
}

// AuditTee writes to the primary sink first and then forwards to the broker. Broker failures are
// logged and never fail the primary append.
type AuditTee struct {
	primary   app.AuditLog
	publisher *Publisher
	log       *logger.Logger
}

func NewAuditTee(primary app.AuditLog, publisher *Publisher, log *logger.Logger) *AuditTee {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditTee{primary: primary, publisher: publisher, log: log.With("service", "AuditTee")}
}

func (t *AuditTee) AppendAnswer(ctx context.Context, record domain.AnsweredRecord) error {
	if err := t.primary.AppendAnswer(ctx, record); err != nil {
		return err
	}
	if err := t.publisher.AppendAnswer(ctx, record); err != nil {
		t.log.Warn("broker publish failed", "routing_key", KeyAnswerRecorded, "live_id", record.LiveID, "error", err)
	}
	return nil
}

func (t *AuditTee) AppendAction(ctx context.Context, action domain.SimulatorAction) error {
	if err := t.primary.AppendAction(ctx, action); err != nil {
		return err
	}
	if err := t.publisher.AppendAction(ctx, action); err != nil {
		t.log.Warn("broker publish failed", "routing_key", KeySimulatorAction, "session_id", action.SessionID, "error", err)
	}
	return nil
}
