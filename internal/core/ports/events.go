package ports

import (
	"context"
	"time"

	"github.com/melih/servery/internal/core/domain"
)

// EventPublisher announces server lifecycle transitions to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// ProvisionObserver records the outcome and duration of create calls.
type ProvisionObserver interface {
	ObserveProvision(outcome string, elapsed time.Duration)
}
