// Package control implements the small in-process bus of system messages
// (health, heartbeat, shutdown) shared by the agent and broker
// subscriber tasks, per spec section 4.7.
package control

import "time"

// Component tags a SystemMsg's origin for Heartbeat reporting.
type Component string

const (
	ComponentActor  Component = "actor"
	ComponentAgent  Component = "agent"
	ComponentBroker Component = "broker"
)

// Kind discriminates the SystemMsg variants.
type Kind int

const (
	Health Kind = iota
	Heartbeat
	Shutdown
)

// Msg is the tagged union flowing on the control channel. Reply is only
// populated for Health; Component and EpochMillis are only populated for
// Heartbeat.
type Msg struct {
	Kind        Kind
	Reply       chan Msg
	Component   Component
	EpochMillis int64
}

// NewHealth builds a Health probe carrying a reply channel the receiver
// should send a Heartbeat back on.
func NewHealth() Msg {
	return Msg{Kind: Health, Reply: make(chan Msg, 1)}
}

// NewHeartbeat builds a Heartbeat response tagged with component at the
// current time.
func NewHeartbeat(component Component) Msg {
	return Msg{Kind: Heartbeat, Component: component, EpochMillis: time.Now().UnixMilli()}
}

// NewShutdown builds a Shutdown message.
func NewShutdown() Msg {
	return Msg{Kind: Shutdown}
}

// Inbox is the receive side of the control channel shared by a
// component. TryRecv is non-blocking, matching the agent/broker
// cooperative poll loops (spec section 9).
type Inbox <-chan Msg

// TryRecv attempts a non-blocking receive; ok is false if no message is
// currently available.
func TryRecv(in Inbox) (Msg, bool) {
	select {
	case m := <-in:
		return m, true
	default:
		return Msg{}, false
	}
}

// Bus is a fan-out control channel: Shutdown and Health are delivered to
// every registered subscriber, matching "fans out to all subscribers and
// to the agent" in spec section 4.7.
type Bus struct {
	subs []chan Msg
}

// NewBus creates an empty control bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers and returns a new inbox with the given buffer
// depth.
func (b *Bus) Subscribe(buffer int) chan Msg {
	ch := make(chan Msg, buffer)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers msg to every subscriber, non-blocking; a full
// subscriber channel drops the message rather than stalling the
// publisher.
func (b *Bus) Publish(msg Msg) {
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}
