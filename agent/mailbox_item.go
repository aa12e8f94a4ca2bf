package agent

import "encoding/json"

// ItemKind discriminates MailboxItem variants (spec section 3).
type ItemKind int

const (
	ItemRequest ItemKind = iota
	ItemSend
	ItemSubscribe
	ItemShutdown
)

// MailboxItem is the internal work item the broker produces and the
// agent consumes. ReplySubject is only populated for ItemRequest.
type MailboxItem struct {
	Kind         ItemKind
	ID           string
	Version      string
	Payload      json.RawMessage
	ReplySubject string
}
