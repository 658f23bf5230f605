package notifier

import "context"

// TextNotifier pushes a rendered message to an operator channel.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}
