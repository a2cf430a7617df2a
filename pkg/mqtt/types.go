// Package mqtt wraps the paho v5 client with automatic reconnects and
// re-subscription, behind a small interface the pilot and its consoles share.
package mqtt

import (
	"context"
)

// MessageHandler processes one received message. Each call runs on its own
// goroutine with a bounded context.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is a broker connection.
type Client interface {
	// Start dials in the background. Use AwaitConnection to wait for it.
	Start(ctx context.Context) error
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers handler for filter. The subscription survives
	// reconnects.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error
	Unsubscribe(ctx context.Context, filter string) error

	AwaitConnection(ctx context.Context) error
	IsConnected() bool
}
