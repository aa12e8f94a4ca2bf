// Package agent owns one actor instance: it serializes all handler
// invocations, performs version dispatch, and formats and publishes
// reply envelopes (spec section 4.6).
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/grippy/hollywood/addr"
	"github.com/grippy/hollywood/control"
	"github.com/grippy/hollywood/envelope"
)

// SendHandler processes a fire-and-forget Send item.
type SendHandler func(ctx context.Context, payload json.RawMessage) error

// RequestHandler processes a Request item. A nil reply with a nil error
// means "no reply"; the agent publishes a Response with msg=nil,
// error=nil (spec section 4.6, resolving the "unknown_version"
// sentinel open question per SPEC_FULL.md section 4.6).
type RequestHandler func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// SubscribeHandler processes a Publish/Subscribe item.
type SubscribeHandler func(ctx context.Context, payload json.RawMessage) error

// DispatchEntry binds one declared (MessageKind) to its handler triple.
// Any of the three handlers may be nil if the actor does not support
// that interaction mode for this message kind.
type DispatchEntry struct {
	Kind      addr.MessageKind
	Send      SendHandler
	Request   RequestHandler
	Subscribe SubscribeHandler
}

// Actor is implemented by application code. ActorKind and DispatchTypes
// are compile-time constants per actor type (spec section 3); Dispatch
// returns the registration table built at construction time (spec
// section 9, "compile-time dispatch tables").
type Actor interface {
	ActorKind() addr.ActorKind
	DispatchTypes() []addr.MessageKind
	Dispatch() []DispatchEntry
}

// ErrDispatchUnknownVersion is the "programmer error" case from spec
// section 4.6: a MailboxItem's version isn't in the actor's table. The
// broker should never enqueue one, since subscriptions are derived from
// the same declared set.
var ErrDispatchUnknownVersion = fmt.Errorf("agent: message version not in dispatch table")

// Publisher is the narrow capability the agent needs to publish reply
// envelopes; satisfied by bus.Conn.Publish.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Agent drives one actor instance via its mailbox channel and the
// shared control inbox (spec section 4.6).
type Agent struct {
	actor     Actor
	table     map[string]DispatchEntry // keyed by msg_version
	mailbox   <-chan MailboxItem
	control   <-chan control.Msg
	publisher Publisher

	shutdown bool
}

// New builds an Agent for actor, consuming items from mailbox and
// control, publishing replies through publisher.
func New(actor Actor, mailbox <-chan MailboxItem, ctrl <-chan control.Msg, publisher Publisher) *Agent {
	table := make(map[string]DispatchEntry, len(actor.Dispatch()))
	for _, e := range actor.Dispatch() {
		table[e.Kind.Version] = e
	}
	return &Agent{actor: actor, table: table, mailbox: mailbox, control: ctrl, publisher: publisher}
}

// Run executes the main loop described in spec section 4.6 until
// Shutdown is observed and the mailbox channel is empty. ctx bounds
// handler invocations; it does not itself trigger shutdown (that is the
// control plane's job).
func (a *Agent) Run(ctx context.Context) {
	const idleYield = time.Millisecond
	for {
		if a.shutdown && len(a.mailbox) == 0 {
			return
		}

		select {
		case item, ok := <-a.mailbox:
			if !ok {
				return
			}
			a.handleItem(ctx, item)
			continue
		default:
		}

		if msg, ok := control.TryRecv(a.control); ok {
			a.handleControl(msg)
			continue
		}

		time.Sleep(idleYield)
	}
}

func (a *Agent) handleControl(msg control.Msg) {
	switch msg.Kind {
	case control.Health:
		if msg.Reply != nil {
			select {
			case msg.Reply <- control.NewHeartbeat(control.ComponentAgent):
			default:
			}
		}
	case control.Shutdown:
		a.shutdown = true
	}
}

func (a *Agent) handleItem(ctx context.Context, item MailboxItem) {
	switch item.Kind {
	case ItemRequest:
		a.handleRequest(ctx, item)
	case ItemSend:
		a.handleSend(ctx, item)
	case ItemSubscribe:
		a.handleSubscribe(ctx, item)
	case ItemShutdown:
		a.shutdown = true
	}
}

func (a *Agent) handleRequest(ctx context.Context, item MailboxItem) {
	entry, ok := a.table[item.Version]
	if !ok || entry.Request == nil {
		a.reply(item, nil, fmt.Errorf("%w: %s", ErrDispatchUnknownVersion, item.Version))
		return
	}
	reply, err := entry.Request(ctx, item.Payload)
	if err != nil {
		a.reply(item, nil, err)
		return
	}
	a.reply(item, reply, nil)
}

func (a *Agent) reply(item MailboxItem, payload json.RawMessage, handlerErr error) {
	var env *envelope.Envelope
	if handlerErr != nil {
		env = envelope.NewErrorResponse(item.ID, item.Version, handlerErr.Error())
	} else {
		// payload may be nil: "no reply" success case, spec section 4.6
		// step 4 / SPEC_FULL.md section 4.6.
		env = envelope.NewResponse(item.ID, item.Version, payload)
	}
	raw, err := env.Encode()
	if err != nil {
		log.Printf("agent: encoding response for %s: %v", item.ID, err)
		return
	}
	if err := a.publisher.Publish(item.ReplySubject, raw); err != nil {
		log.Printf("agent: publishing response for %s to %s: %v", item.ID, item.ReplySubject, err)
	}
}

func (a *Agent) handleSend(ctx context.Context, item MailboxItem) {
	entry, ok := a.table[item.Version]
	if !ok || entry.Send == nil {
		log.Printf("agent: %s: %s", ErrDispatchUnknownVersion, item.Version)
		return
	}
	if err := entry.Send(ctx, item.Payload); err != nil {
		log.Printf("agent: send handler for version %s: %v", item.Version, err)
	}
}

func (a *Agent) handleSubscribe(ctx context.Context, item MailboxItem) {
	entry, ok := a.table[item.Version]
	if !ok || entry.Subscribe == nil {
		log.Printf("agent: %s: %s", ErrDispatchUnknownVersion, item.Version)
		return
	}
	if err := entry.Subscribe(ctx, item.Payload); err != nil {
		log.Printf("agent: subscribe handler for version %s: %v", item.Version, err)
	}
}
