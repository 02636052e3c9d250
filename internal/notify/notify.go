package notify

import (
	"context"
	"errors"
)

// ErrNoChannel is returned when a tenant has not configured where to notify.
var ErrNoChannel = errors.New("no notification channel configured")

// Notifier delivers a text message to channelRef. Delivery is best effort;
// callers never retry.
type Notifier interface {
	Send(ctx context.Context, channelRef, text string) error
}

type Multi []Notifier

func (m Multi) Send(ctx context.Context, channelRef, text string) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, channelRef, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
