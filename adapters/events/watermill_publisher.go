package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/walletauth/ports"
)

// Topics carrying identity lifecycle events.
const (
	TopicWalletLinked   = "auth.wallet_linked"
	TopicWalletUnlinked = "auth.wallet_unlinked"
	TopicSessionRevoked = "auth.session_revoked"
)

// WalletEvent is the payload of linked/unlinked events.
type WalletEvent struct {
	PublicKey string `json:"public_key"`
	UserID    string `json:"user_id"`
}

// SessionEvent is the payload of session revocation events.
type SessionEvent struct {
	PublicKey string `json:"public_key"`
	SessionID string `json:"session_id"`
}

// WatermillPublisher implements the EventPublisher port on top of a
// Watermill publisher.
type WatermillPublisher struct {
	publisher message.Publisher
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher wraps a Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) PublishWalletLinked(ctx context.Context, publicKey, userID string) error {
	return p.publish(TopicWalletLinked, WalletEvent{PublicKey: publicKey, UserID: userID})
}

func (p *WatermillPublisher) PublishWalletUnlinked(ctx context.Context, publicKey, userID string) error {
	return p.publish(TopicWalletUnlinked, WalletEvent{PublicKey: publicKey, UserID: userID})
}

func (p *WatermillPublisher) PublishSessionRevoked(ctx context.Context, publicKey, sessionID string) error {
	return p.publish(TopicSessionRevoked, SessionEvent{PublicKey: publicKey, SessionID: sessionID})
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
