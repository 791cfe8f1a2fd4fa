package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic   = "checkout-outbox"
	GroupID = "cartsync-consumer"
)

var ErrInvalidEvent = errors.New("invalid checkout event")

// OrderApplier deducts a placed order from the buyer's cart.
type OrderApplier interface {
	ApplyOrder(ctx context.Context, userID, checkoutID string, purchased []domain.Purchase) error
}

const maxRetryDelay = 30 * time.Second

// messageReader is the part of *kafka.Reader the poller uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Poller struct {
	orders     OrderApplier
	reader     messageReader
	logger     *zap.Logger
	retryDelay time.Duration
}

func NewPoller(orders OrderApplier, logger *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{orders: orders, reader: reader, logger: logger, retryDelay: time.Second}
}

// Run consumes checkout events until ctx is done. An offset is committed
// only once its event was applied or found invalid; a failed application is
// retried with backoff and blocks the partition until it succeeds.
func (p *Poller) Run(ctx context.Context) {
	for {
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			p.logger.Warn("error fetching message", zap.Error(err))
			continue
		}
		if !p.process(ctx, m) {
			return
		}
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err = p.reader.CommitMessages(commitCtx, m)
		cancel()
		if err != nil {
			p.logger.Warn("error committing message", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// process handles m until it is applied or rejected as invalid. It reports
// false when ctx ended first.
func (p *Poller) process(ctx context.Context, m kafka.Message) bool {
	delay := p.retryDelay
	if delay <= 0 {
		delay = time.Second
	}
	for {
		err := p.Handle(ctx, m.Value)
		switch {
		case err == nil:
			return true
		case errors.Is(err, ErrInvalidEvent):
			p.logger.Error("skipping invalid checkout event",
				zap.Int64("offset", m.Offset), zap.ByteString("key", m.Key), zap.Error(err))
			return true
		}
		p.logger.Warn("checkout event not applied, retrying",
			zap.Int64("offset", m.Offset), zap.Duration("delay", delay), zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

// Handle applies one checkout-outbox payload.
func (p *Poller) Handle(ctx context.Context, value []byte) error {
	var ev checkoutEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if ev.UserID == "" {
		return fmt.Errorf("%w: missing user_id", ErrInvalidEvent)
	}

	checkoutID := normalizeCheckoutID(ev.CheckoutID)
	if checkoutID == "" {
		p.logger.Warn("checkout event without checkout_id, applying without deduplication",
			zap.String("user_id", ev.UserID))
	}

	purchased := make([]domain.Purchase, 0, len(ev.Items))
	for _, item := range ev.Items {
		if item.ProductID == "" || item.Quantity <= 0 {
			continue
		}
		purchased = append(purchased, domain.Purchase{ProductID: string(item.ProductID), Quantity: item.Quantity})
	}

	if err := p.orders.ApplyOrder(ctx, ev.UserID, checkoutID, purchased); err != nil {
		return fmt.Errorf("apply checkout %s: %w", checkoutID, err)
	}
	p.logger.Info("checkout applied to cart",
		zap.String("checkout_id", checkoutID), zap.String("user_id", ev.UserID), zap.Int("items", len(purchased)))
	return nil
}

type checkoutEvent struct {
	CheckoutID string         `json:"checkout_id"`
	UserID     string         `json:"user_id"`
	Items      []checkoutItem `json:"items"`
}

type checkoutItem struct {
	ProductID productID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// productID accepts both numeric and string ids.
type productID string

func (id *productID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = productID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product_id must be a string or number: %w", err)
	}
	*id = productID(n.String())
	return nil
}

// normalizeCheckoutID returns the canonical form of UUID ids so differently
// cased copies of one checkout deduplicate together.
func normalizeCheckoutID(raw string) string {
	raw = strings.TrimSpace(raw)
	if id, err := uuid.Parse(raw); err == nil {
		return id.String()
	}
	return raw
}
