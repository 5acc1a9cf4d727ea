// Package channel abstracts the chat platforms the gateway listens on.
package channel

import "context"

// Message is an inbound message from a platform.
type Message struct {
	ID        string
	Platform  string
	UserID    string
	Content   string
	Metadata  map[string]string
	Timestamp int64
}

// Response is an outbound reply to a platform user.
type Response struct {
	Content  string
	Metadata map[string]string
}

// Adapter is one platform connection. Adapters push what they receive onto
// Incoming and stay passive otherwise.
type Adapter interface {
	// Start connects the adapter and begins feeding Incoming. It returns
	// once the connection is established, not when it ends.
	Start(ctx context.Context) error

	// Stop disconnects and closes Incoming.
	Stop() error

	// SendMessage delivers a response to a user on this platform.
	SendMessage(userID string, resp *Response) error

	// Incoming returns the stream of inbound messages.
	Incoming() <-chan *Message

	Name() string
	IsEnabled() bool
}
