// Package envelope defines the wire-level tagged union carried over the
// bus: Request, Response, Send, and Publish. Encoding is JSON with a
// "type" discriminant, matching the default codec used throughout the
// runtime.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Tag identifies which of the four envelope variants a frame carries.
type Tag string

const (
	TagRequest  Tag = "Request"
	TagResponse Tag = "Response"
	TagSend     Tag = "Send"
	TagPublish  Tag = "Publish"
)

// ErrUnknownTag is returned when a decoded frame carries a "type" value
// that is not one of the four known variants.
var ErrUnknownTag = errors.New("envelope: unknown tag")

// Envelope is the tagged union described in spec section 4.1. Only the
// fields relevant to Tag are populated; Msg is nil on a Response carrying
// Error, and Error is nil everywhere else.
type Envelope struct {
	Tag        Tag             `json:"type"`
	ID         string          `json:"id"`
	MsgVersion string          `json:"msg_version"`
	Msg        json.RawMessage `json:"msg,omitempty"`
	Error      *string         `json:"error,omitempty"`
}

// NewRequest builds a Request envelope carrying msg encoded by the
// caller. id is a random UUIDv4 when empty.
func NewRequest(id, msgVersion string, msg json.RawMessage) *Envelope {
	return &Envelope{Tag: TagRequest, ID: orNewID(id), MsgVersion: msgVersion, Msg: msg}
}

// NewSend builds a Send envelope.
func NewSend(id, msgVersion string, msg json.RawMessage) *Envelope {
	return &Envelope{Tag: TagSend, ID: orNewID(id), MsgVersion: msgVersion, Msg: msg}
}

// NewPublish builds a Publish envelope.
func NewPublish(id, msgVersion string, msg json.RawMessage) *Envelope {
	return &Envelope{Tag: TagPublish, ID: orNewID(id), MsgVersion: msgVersion, Msg: msg}
}

// NewResponse builds a successful Response envelope.
func NewResponse(id, msgVersion string, msg json.RawMessage) *Envelope {
	return &Envelope{Tag: TagResponse, ID: id, MsgVersion: msgVersion, Msg: msg}
}

// NewErrorResponse builds a Response envelope carrying an error string
// instead of a message body.
func NewErrorResponse(id, msgVersion, errMsg string) *Envelope {
	return &Envelope{Tag: TagResponse, ID: id, MsgVersion: msgVersion, Error: &errMsg}
}

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

// Encode serializes the envelope to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	if e.Tag == "" {
		return nil, errors.New("envelope: missing tag")
	}
	return json.Marshal(e)
}

// Decode parses raw into an Envelope and rejects unknown tags and
// malformed frames. Callers should log and drop on error rather than
// propagating it to handlers (section 4.1).
func Decode(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("envelope: decode: %w", err)
	}
	switch e.Tag {
	case TagRequest, TagResponse, TagSend, TagPublish:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, e.Tag)
	}
	return &e, nil
}
