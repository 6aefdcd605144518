package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeScheduleChanged    MessageType = "schedule.changed"
	MessageTypeExecutionCompleted MessageType = "execution.completed"
)

// ScheduleChange — вид изменения schedule.
type ScheduleChange string

const (
	ScheduleChangeCreated ScheduleChange = "created"
	ScheduleChangeUpdated ScheduleChange = "updated"
	ScheduleChangeDeleted ScheduleChange = "deleted"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// ScheduleChangedPayload — payload для события изменения schedule.
type ScheduleChangedPayload struct {
	ScheduleID uuid.UUID      `json:"schedule_id"`
	Change     ScheduleChange `json:"change"`
}

// ExecutionCompletedPayload — payload для события завершения execution.
type ExecutionCompletedPayload struct {
	ExecutionID uuid.UUID  `json:"execution_id"`
	ScheduleID  *uuid.UUID `json:"schedule_id,omitempty"`
	Domain      string     `json:"domain"`
	Status      string     `json:"status"`
	ScanID      string     `json:"scan_id,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishScheduleChanged публикует событие об изменении schedule.
// Потребитель: Scheduler Coordinator (запускает внеочередной watcher cycle).
func (p *Publisher) PublishScheduleChanged(ctx context.Context, scheduleID uuid.UUID, change ScheduleChange) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeScheduleChanged,
		Payload:   ScheduleChangedPayload{ScheduleID: scheduleID, Change: change},
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeSchedules, RoutingKeyChanged, msg)
}

// PublishExecutionCompleted публикует событие о завершении execution.
// Потребители: внешние notification/analytics сервисы.
func (p *Publisher) PublishExecutionCompleted(ctx context.Context, payload ExecutionCompletedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeExecutionCompleted,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return p.Publish(ctx, ExchangeExecutions, RoutingKeyCompleted, msg)
}
