package notify

import "context"

// Message is one rendered payload handed to a channel sender.
type Message struct {
	// To is the channel address: phone number, email address, or push token.
	To     string
	ToName string

	Subject string
	Body    string
}

// Sender delivers messages over one channel. Implementations are injected
// into the dispatcher at startup; a channel with no sender configured is
// recorded as failed, never silently dropped.
type Sender interface {
	// Channel identifies which medium this sender serves.
	Channel() Channel

	// Send delivers the message and returns the provider's message id,
	// if the provider has one.
	Send(ctx context.Context, msg *Message) (externalID string, err error)
}
