package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/grippy/hollywood/addr"
)

// Declarer is satisfied by anything that can report the
// (ActorKind, []MessageKind) pair a Mailbox binds against -- in
// practice an agent.Actor, but kept minimal here to avoid a mailbox ->
// agent import cycle.
type Declarer interface {
	ActorKind() addr.ActorKind
	DispatchTypes() []addr.MessageKind
}

// Mailbox is a typed wrapper around a Client bound, at construction, to
// one actor type A and one message type M (spec section 4.4). A and M
// are phantom type parameters used only to keep distinct bindings from
// being confused at compile time; the binding itself is carried in
// kind/msg below.
type Mailbox[A Declarer, M any] struct {
	client  *Client
	subject string
	kind    addr.MessageKind
	mode    addr.Mode
}

// NewMailbox validates that msg appears in actor's declared dispatch
// types, computes the address for mode, and binds client to it.
func NewMailbox[A Declarer, M any](client *Client, system string, actor A, msg addr.MessageKind, mode addr.Mode) (*Mailbox[A, M], error) {
	declared := false
	for _, m := range actor.DispatchTypes() {
		if m == msg {
			declared = true
			break
		}
	}
	if !declared {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedMessage, msg.Type, msg.Version)
	}
	subject := addr.Address(system, actor.ActorKind(), msg, mode)
	return &Mailbox[A, M]{client: client, subject: subject, kind: msg, mode: mode}, nil
}

func (mb *Mailbox[A, M]) checkBinding(msgVersion string) error {
	if msgVersion != mb.kind.Version {
		return fmt.Errorf("mailbox: message version %q does not match binding %q", msgVersion, mb.kind.Version)
	}
	return nil
}

// Send wraps Client.Send, additionally checking the message version
// matches this Mailbox's binding.
func (mb *Mailbox[A, M]) Send(msgVersion string, payload json.RawMessage) error {
	if err := mb.checkBinding(msgVersion); err != nil {
		return err
	}
	return mb.client.Send(mb.subject, msgVersion, payload)
}

// Publish wraps Client.Publish with the same binding check.
func (mb *Mailbox[A, M]) Publish(msgVersion string, payload json.RawMessage) error {
	if err := mb.checkBinding(msgVersion); err != nil {
		return err
	}
	return mb.client.Publish(mb.subject, msgVersion, payload)
}

// Request wraps Client.Request with the same binding check.
func (mb *Mailbox[A, M]) Request(ctx context.Context, msgVersion string, payload json.RawMessage) (json.RawMessage, error) {
	if err := mb.checkBinding(msgVersion); err != nil {
		return nil, err
	}
	return mb.client.Request(ctx, mb.subject, msgVersion, payload)
}

// RequestTimeout wraps Client.RequestTimeout with the same binding
// check.
func (mb *Mailbox[A, M]) RequestTimeout(ctx context.Context, msgVersion string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if err := mb.checkBinding(msgVersion); err != nil {
		return nil, err
	}
	return mb.client.RequestTimeout(ctx, mb.subject, msgVersion, payload, timeout)
}

// Subject returns the resolved bus subject this Mailbox sends to.
func (mb *Mailbox[A, M]) Subject() string {
	return mb.subject
}
