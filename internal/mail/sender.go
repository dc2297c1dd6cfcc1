// Package mail builds outbound messages and hands them to a relay or to
// the local sandbox.
package mail

import "context"

// Sender delivers a message
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}
