package notifier

import "context"

// Message is a notification addressed to one or more recipients. Providers
// that publish to a topic ignore To and route by topic subscription instead.
type Message struct {
	From       string
	To         []string
	Subject    string
	HTML       string
	Text       string
	Attributes map[string]string
}

// SendResult contains the response from the provider.
type SendResult struct {
	ProviderMessageID string
}

// Provider delivers notifications via a specific backend.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// Notifier is the top-level entry point for sending notifications.
type Notifier struct {
	provider    Provider
	fromAddress string
}

// New creates a Notifier with the given provider and default sender address.
func New(provider Provider, fromAddress string) *Notifier {
	return &Notifier{
		provider:    provider,
		fromAddress: fromAddress,
	}
}

// Send delivers msg via the configured provider.
// If msg.From is empty, the default fromAddress is used.
func (n *Notifier) Send(ctx context.Context, msg Message) (SendResult, error) {
	if msg.From == "" {
		msg.From = n.fromAddress
	}
	return n.provider.Send(ctx, msg)
}

// ProviderName returns the name of the configured provider.
func (n *Notifier) ProviderName() string {
	return n.provider.Name()
}
