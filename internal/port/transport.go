package port

import "context"

// PushTransport delivers one message to one device token. A nil return
// means the push was accepted; any error means the delivery failed.
// Implementations must never panic across this boundary.
type PushTransport interface {
	Send(ctx context.Context, title, message, token string) error
}
