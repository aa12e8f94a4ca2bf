// Package broker owns inbound traffic for one agent: one subscriber
// task per declared (actor, message version) address, translating bus
// envelopes into agent.MailboxItem values while applying backpressure
// and backoff (spec section 4.5).
package broker

import (
	"log"
	"time"

	"github.com/grippy/hollywood/addr"
	"github.com/grippy/hollywood/agent"
	"github.com/grippy/hollywood/bus"
	"github.com/grippy/hollywood/control"
	"github.com/grippy/hollywood/envelope"
)

// Tuning exposes the broker's magic numbers as configuration, per the
// open question in spec section 9 ("these magic numbers appear
// tunable").
type Tuning struct {
	// BackpressurePoll is how long a subscriber sleeps between rechecks
	// while the agent mailbox holds at least the broker's max size (when
	// that max size is positive).
	BackpressurePoll time.Duration
	// BackoffStep is added to the backoff delay after an empty bus poll.
	BackoffStep time.Duration
	// BackoffMax caps the backoff delay.
	BackoffMax time.Duration
}

// DefaultTuning matches the fixed values from spec section 4.5.
func DefaultTuning() Tuning {
	return Tuning{
		BackpressurePoll: 100 * time.Millisecond,
		BackoffStep:      10 * time.Millisecond,
		BackoffMax:       1000 * time.Millisecond,
	}
}

// Subscription is the narrow capability a subscriber task needs from a
// bus connection for one address.
type Subscription interface {
	// Poll returns the next message if one is immediately available.
	Poll() (bus.Msg, bool)
	Close()
}

type polledSub struct {
	sub *bus.Subscription
}

func (p *polledSub) Poll() (bus.Msg, bool) {
	select {
	case m := <-p.sub.C:
		return m, true
	default:
		return bus.Msg{}, false
	}
}

func (p *polledSub) Close() {
	p.sub.Unsubscribe()
}

// Broker spawns one subscriber task per declared message version.
type Broker struct {
	actorName string
	conn      bus.Conn
	system    string
	actorKind addr.ActorKind
	mode      addr.Mode
	maxSize   int
	mailbox   chan<- agent.MailboxItem
	ctrl      <-chan control.Msg
	tuning    Tuning
}

// New creates a Broker for actorKind, with Queue or Publish mode shared
// across every message kind later passed to Run (spec section 4.5: "a list of Queue addresses... or a single Publish
// subject").
func New(conn bus.Conn, system string, actorKind addr.ActorKind, mode addr.Mode, maxSize int, mailbox chan<- agent.MailboxItem, ctrl <-chan control.Msg, tuning Tuning) *Broker {
	return &Broker{
		actorName: actorKind.Type,
		conn:      conn,
		system:    system,
		actorKind: actorKind,
		mode:      mode,
		maxSize:   maxSize,
		mailbox:   mailbox,
		ctrl:      ctrl,
		tuning:    tuning,
	}
}

// Run spawns subscriber goroutines and returns immediately; each runs
// until Shutdown is observed on ctrl. In Queue mode it spawns one
// goroutine per declared message version, each on its own address. In
// Publish mode it spawns exactly one goroutine regardless of how many
// message kinds are declared: addr.Address resolves every one of them
// to the same actor-chosen subject (spec section 4.5: "a single Publish
// subject"), so subscribing once per kind would hand every published
// message to this agent once per declared kind instead of exactly once
// (spec section 8 scenario 4).
func (b *Broker) Run(dispatchTypes []addr.MessageKind) error {
	if !addr.IsQueue(b.mode) {
		subject, _ := addr.SubjectOf(b.mode)
		sub, err := b.subscribe(subject)
		if err != nil {
			return err
		}
		var fallbackVersion string
		if len(dispatchTypes) > 0 {
			fallbackVersion = dispatchTypes[0].Version
		}
		go b.spawn(subject, fallbackVersion, sub)
		return nil
	}

	for _, msg := range dispatchTypes {
		subject := addr.QueueAddress(b.system, b.actorKind, msg)
		sub, err := b.subscribe(subject)
		if err != nil {
			return err
		}
		go b.spawn(subject, msg.Version, sub)
	}
	return nil
}

func (b *Broker) subscribe(subject string) (Subscription, error) {
	if addr.IsQueue(b.mode) {
		s, err := b.conn.QueueSubscribe(subject, subject)
		if err != nil {
			return nil, err
		}
		return &polledSub{sub: s}, nil
	}
	s, err := b.conn.Subscribe(subject)
	if err != nil {
		return nil, err
	}
	return &polledSub{sub: s}, nil
}

// spawn implements the per-subject subscriber loop from spec section
// 4.5, grounded on original_source/hollywood/src/broker.rs's Broker::spawn.
func (b *Broker) spawn(subject, msgVersion string, sub Subscription) {
	defer sub.Close()
	backoff := time.Duration(0)

	for {
		// 1. Backpressure gate.
		for b.maxSize > 0 && len(b.mailbox) >= b.maxSize {
			time.Sleep(b.tuning.BackpressurePoll)
		}

		// 2. Control poll (non-blocking).
		if msg, ok := control.TryRecv(b.ctrl); ok {
			switch msg.Kind {
			case control.Health:
				if msg.Reply != nil {
					select {
					case msg.Reply <- control.NewHeartbeat(control.ComponentBroker):
					default:
					}
				}
			case control.Shutdown:
				log.Printf("%s agent broker shutting down, stopping reads for subject %q", b.actorName, subject)
				return
			}
		}

		// 3. Bus poll (non-blocking).
		busMsg, ok := sub.Poll()
		if !ok {
			backoff += b.tuning.BackoffStep
			if backoff > b.tuning.BackoffMax {
				backoff = b.tuning.BackoffMax
			}
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		env, err := envelope.Decode(busMsg.Data)
		if err != nil {
			log.Printf("%s broker: decoding envelope on %q: %v", b.actorName, subject, err)
			continue
		}

		item, ok := toMailboxItem(env, msgVersion, busMsg.Reply)
		if !ok {
			continue
		}

		if shutdown := b.enqueue(item); shutdown {
			log.Printf("%s agent broker shutting down, stopping reads for subject %q", b.actorName, subject)
			return
		}
	}
}

// enqueue delivers item to the agent mailbox, blocking (while still
// answering Health probes) until it fits rather than dropping it: spec
// section 4.5 step 5 only sanctions a log-and-exit on a closed channel,
// never a silent drop of an already-accepted bus message, and spec
// section 8 requires exactly one Response for every enqueued Request. A
// plain blocking send also closes the race the backpressure gate above
// cannot: two subscriber goroutines sharing one mailbox can both pass
// that check-then-act gate when only one slot is free, but the channel
// itself arbitrates concurrent sends atomically, so nothing is lost
// here even when that happens.
//
// A Shutdown observed while waiting does not abandon the item mid-flight
// (spec section 5, "allows in-flight mailbox items to finish"); it keeps
// trying to deliver it and reports shutdown to the caller once it does,
// so spawn stops reading the bus after this message rather than before.
func (b *Broker) enqueue(item agent.MailboxItem) (shutdown bool) {
	for {
		select {
		case b.mailbox <- item:
			return shutdown
		case msg, ok := <-b.ctrl:
			if !ok {
				return true
			}
			switch msg.Kind {
			case control.Health:
				if msg.Reply != nil {
					select {
					case msg.Reply <- control.NewHeartbeat(control.ComponentBroker):
					default:
					}
				}
			case control.Shutdown:
				shutdown = true
			}
		}
	}
}

// toMailboxItem implements the Envelope -> MailboxItem mapping in spec
// section 4.5 step 4.
func toMailboxItem(env *envelope.Envelope, fallbackVersion, replySubject string) (agent.MailboxItem, bool) {
	version := env.MsgVersion
	if version == "" {
		version = fallbackVersion
	}
	switch env.Tag {
	case envelope.TagRequest:
		if replySubject != "" {
			return agent.MailboxItem{Kind: agent.ItemRequest, ID: env.ID, Version: version, Payload: env.Msg, ReplySubject: replySubject}, true
		}
		log.Printf("broker: received Request with no reply subject, demoting to Send: id=%s", env.ID)
		return agent.MailboxItem{Kind: agent.ItemSend, ID: env.ID, Version: version, Payload: env.Msg}, true
	case envelope.TagSend:
		return agent.MailboxItem{Kind: agent.ItemSend, ID: env.ID, Version: version, Payload: env.Msg}, true
	case envelope.TagPublish:
		return agent.MailboxItem{Kind: agent.ItemSubscribe, ID: env.ID, Version: version, Payload: env.Msg}, true
	case envelope.TagResponse:
		log.Printf("broker: received Response on inbound subject, dropping: id=%s", env.ID)
		return agent.MailboxItem{}, false
	default:
		return agent.MailboxItem{}, false
	}
}
