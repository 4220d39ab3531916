package events

import (
	"context"

	"go.uber.org/zap"

	"config-codex/internal/domain"
)

// Publisher entrega eventos de dominio a sus suscriptores.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) error { return nil }

// LogPublisher escribe cada evento en el log estructurado.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.Event) error {
	p.logger.Info("domain event",
		zap.String("type", event.Type),
		zap.String("aggregate_id", event.AggregateID),
		zap.String("email", event.Email),
		zap.String("ip_address", event.IPAddress),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
