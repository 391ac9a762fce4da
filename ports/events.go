package ports

import "context"

// EventPublisher notifies other instances about identity changes.
type EventPublisher interface {
	PublishWalletLinked(ctx context.Context, publicKey, userID string) error
	PublishWalletUnlinked(ctx context.Context, publicKey, userID string) error
	PublishSessionRevoked(ctx context.Context, publicKey, sessionID string) error
}
