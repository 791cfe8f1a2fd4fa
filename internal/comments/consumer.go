package comments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const Queue = "product.comments"

var ErrInvalidMessage = errors.New("invalid comment message")

type message struct {
	Type      string   `json:"type"`
	ProductID string   `json:"product_id"`
	ParentID  string   `json:"parent_id"`
	IDs       []string `json:"ids"`
	Comment   *Comment `json:"comment"`
}

// Decode turns a comment event body into a Patch.
func Decode(body []byte) (Patch, error) {
	var m message
	if err := json.Unmarshal(body, &m); err != nil {
		return Patch{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if m.ProductID == "" {
		return Patch{}, fmt.Errorf("%w: missing product_id", ErrInvalidMessage)
	}
	op, err := ParseOp(m.Type)
	if err != nil {
		return Patch{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return Patch{
		Op:        op,
		ProductID: m.ProductID,
		ParentID:  m.ParentID,
		IDs:       m.IDs,
		Comment:   m.Comment,
	}, nil
}

// StartConsumer applies comment events from the queue to board until ctx is
// done. Messages that cannot be applied are dropped.
func StartConsumer(ctx context.Context, conn *amqp.Connection, board *Board, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(
		Queue,
		"cartsync", // consumer tag
		false,      // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				logger.Info("stopping comment consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Warn("comment messages channel closed")
					return
				}
				if err := handle(board, msg.Body); err != nil {
					logger.Warn("comment event dropped", zap.Error(err))
					_ = msg.Nack(false, false)
					continue
				}
				_ = msg.Ack(false)
			}
		}
	}()

	return nil
}

func handle(board *Board, body []byte) error {
	p, err := Decode(body)
	if err != nil {
		return err
	}
	if err := board.Apply(p); err != nil {
		return fmt.Errorf("apply %s to product %s: %w", p.Op, p.ProductID, err)
	}
	return nil
}
