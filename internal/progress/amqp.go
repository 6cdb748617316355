package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// BrokerPublisher is the slice of the RabbitMQ client the sink needs.
type BrokerPublisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// AMQPSink forwards hub events to a message broker so other services can
// follow dispatch progress. QR events are never forwarded: a pairing code
// grants access to the account.
type AMQPSink struct {
	hub        *Hub
	broker     BrokerPublisher
	routingKey string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewAMQPSink creates a sink publishing to routingKey + "." + event name.
func NewAMQPSink(hub *Hub, broker BrokerPublisher, routingKey string, logger *slog.Logger) *AMQPSink {
	return &AMQPSink{
		hub:        hub,
		broker:     broker,
		routingKey: routingKey,
		timeout:    5 * time.Second,
		logger:     logger,
	}
}

// Run forwards events until ctx is canceled.
func (s *AMQPSink) Run(ctx context.Context) error {
	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	s.logger.Info("AMQP progress sink started", slog.String("routing_key", s.routingKey))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("AMQP progress sink stopped")
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			s.forward(ctx, e)
		}
	}
}

func (s *AMQPSink) forward(ctx context.Context, e Event) {
	if e.Name == EventQR {
		return
	}

	body, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("Failed to encode progress event", slog.String("event", e.Name), slog.Any("error", err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.broker.PublishWithRetry(pubCtx, s.key(e.Name), body, "application/json"); err != nil {
		// Observers over websocket are unaffected; the broker copy is best effort.
		s.logger.Warn("Failed to forward progress event",
			slog.String("event", e.Name),
			slog.Any("error", err),
		)
	}
}

func (s *AMQPSink) key(event string) string {
	if s.routingKey == "" {
		return event
	}
	return s.routingKey + "." + event
}
