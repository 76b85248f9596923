package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/mkravets/deep-researcher/internal/core/domain"
)

// classifyPublishError tags connectivity failures as temporary so the
// executor retries them; anything else is returned as-is.
func classifyPublishError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return fmt.Errorf("nats publish: %w", err)
}
