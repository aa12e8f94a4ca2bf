// Package addr derives bus subjects from (system, actor, message)
// triples, per the Queue and Publish addressing rules in spec section
// 4.2.
package addr

import "fmt"

// ActorKind identifies an actor implementation by type name and version.
type ActorKind struct {
	Type    string
	Version string
}

// MessageKind identifies a message type by name and version. Payload
// encoding/decoding is each handler's own concern (SPEC_FULL.md section
// 4.1); MessageKind carries no codec.
type MessageKind struct {
	Type    string
	Version string
}

// Mode is the closed sum type described in spec section 3: Queue
// (load-balanced, addressed by actor) or Publish (fan-out, addressed by
// a free subject). Implemented as an interface with two unexported
// variants, the idiomatic analogue of a Rust enum used purely for
// dispatch.
type Mode interface {
	isMode()
}

type queueMode struct{}

func (queueMode) isMode() {}

// Queue returns the Queue subscribe mode.
func Queue() Mode { return queueMode{} }

type publishMode struct{ Subject string }

func (publishMode) isMode() {}

// Publish returns the Publish subscribe mode bound to subject.
func Publish(subject string) Mode { return publishMode{Subject: subject} }

// SubjectOf returns subject if m is Publish mode, or false otherwise.
func SubjectOf(m Mode) (string, bool) {
	p, ok := m.(publishMode)
	return p.Subject, ok
}

// IsQueue reports whether m is Queue mode.
func IsQueue(m Mode) bool {
	_, ok := m.(queueMode)
	return ok
}

// QueueAddress derives the literal subject/queue-group string
// hollywood://{system}@{actor_type}/{actor_version}::{msg_type}/{msg_version}.
func QueueAddress(system string, actor ActorKind, msg MessageKind) string {
	return fmt.Sprintf("hollywood://%s@%s/%s::%s/%s", system, actor.Type, actor.Version, msg.Type, msg.Version)
}

// Address resolves the bus subject to use for actor handling msg under
// mode m, within system. For Publish mode the system name is not part
// of the resulting subject.
func Address(system string, actor ActorKind, msg MessageKind, m Mode) string {
	if subj, ok := SubjectOf(m); ok {
		return subj
	}
	return QueueAddress(system, actor, msg)
}
