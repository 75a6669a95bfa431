package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/passwordless/internal/infrastructure/mail"
	"github.com/fastygo/passwordless/internal/infrastructure/outbox"
	"github.com/fastygo/passwordless/pkg/logger"
)

// ConnectionHealth abstracts the connection monitor functionality.
type ConnectionHealth interface {
	IsOnline() bool
}

// ProcessorConfig controls how frequently the outbox is drained.
type ProcessorConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Retention  time.Duration
}

// OutboxProcessor delivers mail through a transport and parks what the
// transport refuses in the outbox until a later drain succeeds.
type OutboxProcessor struct {
	store     *outbox.Store
	transport mail.Transport
	monitor   ConnectionHealth
	logger    *zap.Logger
	cron      *cron.Cron
	cfg       ProcessorConfig
}

// NewOutboxProcessor wires the processor. store may be nil, in which case
// delivery is synchronous and failures are returned to the caller.
func NewOutboxProcessor(
	store *outbox.Store,
	transport mail.Transport,
	monitor ConnectionHealth,
	logger *zap.Logger,
	cfg ProcessorConfig,
) *OutboxProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &OutboxProcessor{
		store:     store,
		transport: transport,
		monitor:   monitor,
		logger:    logger,
		cfg:       cfg,
		cron:      cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", max(1, int(cfg.Interval.Seconds())))
	_, _ = p.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := p.Drain(ctx); err != nil {
			p.logger.Error("outbox drain failed", zap.Error(err))
		}
		if err := p.Cleanup(); err != nil {
			p.logger.Error("outbox cleanup failed", zap.Error(err))
		}
	})

	return p
}

// Start launches the cron scheduler.
func (p *OutboxProcessor) Start() {
	if p == nil || p.store == nil {
		return
	}
	p.cron.Start()
	p.logger.Info("outbox processor started", zap.String("transport", p.transport.Name()))
}

// Stop waits for a running drain or for ctx, whichever ends first.
func (p *OutboxProcessor) Stop(ctx context.Context) {
	if p == nil || p.cron == nil {
		return
	}
	stopCtx := p.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	p.logger.Info("outbox processor stopped")
}

// Deliver sends msg now when the transport looks healthy and falls back to
// the outbox. It fails only when the message could neither be sent nor queued.
func (p *OutboxProcessor) Deliver(ctx context.Context, msg outbox.Message) error {
	if p == nil || p.transport == nil {
		return errors.New("outbox processor not configured")
	}
	log := logger.WithRequestID(ctx, p.logger)

	var sendErr error
	if p.monitor == nil || p.monitor.IsOnline() {
		sendErr = p.transport.Send(ctx, msg)
		if sendErr == nil {
			return nil
		}
		log.Warn("immediate delivery failed", zap.String("message_id", msg.ID), zap.Error(sendErr))
	}

	if p.store == nil {
		if sendErr == nil {
			sendErr = fmt.Errorf("mail transport %s offline", p.transport.Name())
		}
		return sendErr
	}

	if sendErr != nil {
		msg.LastError = sendErr.Error()
	}
	if err := p.store.Enqueue(msg); err != nil {
		return errors.Join(sendErr, fmt.Errorf("outbox enqueue: %w", err))
	}
	log.Info("message queued in outbox", zap.String("message_id", msg.ID))
	return nil
}

// Drain retries queued messages in priority order.
func (p *OutboxProcessor) Drain(ctx context.Context) error {
	if p == nil || p.store == nil {
		return nil
	}
	if p.monitor != nil && !p.monitor.IsOnline() {
		p.logger.Debug("skipping outbox drain (transport offline)")
		return nil
	}

	msgs, err := p.store.Peek(p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, msg := range msgs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.transport.Send(ctx, msg); err != nil {
			msg.Retries++
			msg.LastError = err.Error()
			if msg.Retries >= p.cfg.MaxRetries {
				p.logger.Error("dropping outbox message (max retries reached)",
					zap.String("message_id", msg.ID),
					zap.Int("retries", msg.Retries),
					zap.Error(err))
				if err := p.store.Remove(msg); err != nil {
					p.logger.Warn("failed to remove outbox message", zap.Error(err))
				}
				continue
			}
			if err := p.store.Requeue(msg); err != nil {
				p.logger.Error("failed to requeue outbox message", zap.Error(err))
			}
			continue
		}

		if err := p.store.Remove(msg); err != nil {
			p.logger.Warn("failed to purge delivered outbox message", zap.Error(err))
		}
	}
	return nil
}

// Cleanup drops messages older than the retention window. Magic links are
// long expired by then.
func (p *OutboxProcessor) Cleanup() error {
	if p == nil || p.store == nil {
		return nil
	}
	removed, err := p.store.Cleanup(time.Now().Add(-p.cfg.Retention))
	if removed > 0 {
		p.logger.Info("expired outbox messages removed", zap.Int("count", removed))
	}
	return err
}

// Size returns the number of queued messages.
func (p *OutboxProcessor) Size() int {
	if p == nil || p.store == nil {
		return 0
	}
	size, err := p.store.Size()
	if err != nil {
		return 0
	}
	return size
}
