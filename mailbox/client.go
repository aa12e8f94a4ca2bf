// Package mailbox implements the outward interface an actor or external
// caller uses to send/request/publish to a target actor: Client (spec
// section 4.3) and the typed Mailbox wrapper (spec section 4.4).
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grippy/hollywood/bus"
	"github.com/grippy/hollywood/envelope"
)

// ErrUnsupportedMessage is returned by NewMailbox when the bound
// message (name, version) is not in the actor's declared dispatch set.
var ErrUnsupportedMessage = errors.New("mailbox: message not declared by actor")

// ErrProtocol is returned when a Request yields an envelope variant
// other than Response.
var ErrProtocol = errors.New("mailbox: unexpected envelope variant in reply")

// Client holds a bus connection and exposes the four client operations
// described in spec section 4.3.
type Client struct {
	conn bus.Conn
}

// NewClient wraps an existing bus connection.
func NewClient(conn bus.Conn) *Client {
	return &Client{conn: conn}
}

// Publish encodes msg, wraps it as Publish, and publishes it to subject.
func (c *Client) Publish(subject, msgVersion string, msg json.RawMessage) error {
	env := envelope.NewPublish("", msgVersion, msg)
	raw, err := env.Encode()
	if err != nil {
		return fmt.Errorf("mailbox: encode publish: %w", err)
	}
	return c.conn.Publish(subject, raw)
}

// Send encodes msg, wraps it as Send, and publishes it to subject.
func (c *Client) Send(subject, msgVersion string, msg json.RawMessage) error {
	env := envelope.NewSend("", msgVersion, msg)
	raw, err := env.Encode()
	if err != nil {
		return fmt.Errorf("mailbox: encode send: %w", err)
	}
	return c.conn.Publish(subject, raw)
}

// Request wraps msg as Request, issues a request-with-inbox on the bus,
// and blocks until a Response arrives or the bus returns a transport
// error, using the default request timeout.
func (c *Client) Request(ctx context.Context, subject, msgVersion string, msg json.RawMessage) (json.RawMessage, error) {
	return c.RequestTimeout(ctx, subject, msgVersion, msg, 0)
}

// RequestTimeout is Request with an explicit deadline; zero means the
// transport default.
func (c *Client) RequestTimeout(ctx context.Context, subject, msgVersion string, msg json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	env := envelope.NewRequest("", msgVersion, msg)
	raw, err := env.Encode()
	if err != nil {
		return nil, fmt.Errorf("mailbox: encode request: %w", err)
	}

	reply, err := c.conn.Request(ctx, subject, raw, timeout)
	if err != nil {
		return nil, err
	}

	respEnv, err := envelope.Decode(reply.Data)
	if err != nil {
		return nil, fmt.Errorf("mailbox: decode response: %w", err)
	}
	if respEnv.Tag != envelope.TagResponse {
		return nil, fmt.Errorf("%w: got %q", ErrProtocol, respEnv.Tag)
	}
	if respEnv.Error != nil {
		return nil, errors.New(*respEnv.Error)
	}
	return respEnv.Msg, nil
}
