// Package notify pushes formatted cards to the messaging-platform user behind
// an Identity. Delivery is best-effort; callers log failures and move on, the
// primary operation never fails because a push did.
package notify

import "context"

// Message is one outbound notification.
type Message struct {
	Text string
}

// Gateway delivers messages to the platform user behind an identity id.
type Gateway interface {
	Push(ctx context.Context, identityID string, message Message) error
}

type nopGateway struct{}

// NewNopGateway returns a gateway that silently drops every message. Used
// when no delivery credentials are configured.
func NewNopGateway() Gateway {
	return nopGateway{}
}

func (nopGateway) Push(context.Context, string, Message) error {
	return nil
}
