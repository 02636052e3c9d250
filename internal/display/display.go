// Package display holds the short live labels shown per subscription.
package display

import (
	"context"
	"errors"

	"github.com/hamed0406/serverwatch/internal/domain"
)

var (
	ErrUnknownDisplay = errors.New("unknown display")
	ErrLabelTooLong   = errors.New("label exceeds sink limit")
)

// Sink is the surface that renders one label per subscription, e.g. a chat
// channel name or a tile on the status board.
type Sink interface {
	Create(ctx context.Context, label string) (domain.DisplayRef, error)
	Rename(ctx context.Context, ref domain.DisplayRef, label string) error
	Delete(ctx context.Context, ref domain.DisplayRef) error
	MaxLabelLen() int
}
