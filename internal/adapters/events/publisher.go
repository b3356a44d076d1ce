// Package events publishes server lifecycle events to a NATS subject tree.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/melih/servery/internal/core/domain"
)

const DefaultSubjectPrefix = "servery"

var ErrNotConnected = errors.New("nats: publisher not connected")

// Publisher implements ports.EventPublisher.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewPublisher connects to url. The connection reconnects on its own; events
// published while it is down are buffered by the client.
func NewPublisher(url, prefix string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	logger = logger.With(zap.String("component", "nats"))

	nc, err := nats.Connect(url,
		nats.Name("servery"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger}, nil
}

// Publish sends ev as JSON on <prefix>.<ev.Event>.
func (p *Publisher) Publish(ctx context.Context, ev domain.Event) error {
	if p.nc == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(Subject(p.prefix, ev.Event), payload); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Event, err)
	}
	return nil
}

// Close drains buffered events before closing the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

func Subject(prefix, event string) string {
	return prefix + "." + event
}

func Encode(ev domain.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return payload, nil
}
