package platform

import "context"

// Notifier delivers a message to a recipient on the chat platform.
// Recipients are opaque platform references: a user id for direct messages
// or a channel reference for staff surfaces.
type Notifier interface {
	Notify(ctx context.Context, recipient, content string) error
}

// ChannelManager manipulates the transport channel backing a ticket. All
// operations are best-effort; a failure never fails the ticket transition
// that requested it.
type ChannelManager interface {
	Provision(ctx context.Context, tenantID, ticketID string) (string, error)
	Lock(ctx context.Context, channelRef string) error
	Rename(ctx context.Context, channelRef, name string) error
	Delete(ctx context.Context, channelRef string) error
}

// Summarizer turns the conversation behind a channel into a short summary.
// An empty string means no summary could be produced; the close pipeline
// then skips clustering for that ticket.
type Summarizer interface {
	Summarize(ctx context.Context, channelRef string) (string, error)
}
