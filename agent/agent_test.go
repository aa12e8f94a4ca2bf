package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grippy/hollywood/addr"
	"github.com/grippy/hollywood/control"
	"github.com/grippy/hollywood/envelope"
)

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]byte
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][]byte)}
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[subject] = data
	return nil
}

func (f *fakePublisher) get(subject string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.published[subject]
	return d, ok
}

type testActor struct {
	kind addr.ActorKind
	msgs []addr.MessageKind
	disp []DispatchEntry
}

func (a *testActor) ActorKind() addr.ActorKind           { return a.kind }
func (a *testActor) DispatchTypes() []addr.MessageKind   { return a.msgs }
func (a *testActor) Dispatch() []DispatchEntry           { return a.disp }

func waitFor(t *testing.T, pub *fakePublisher, subject string) []byte {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if d, ok := pub.get(subject); ok {
			return d
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no publish observed on %s", subject)
	return nil
}

func TestAgentHelloRoundTrip(t *testing.T) {
	kind := addr.MessageKind{Type: "XMsg", Version: "v1.0"}
	actor := &testActor{
		kind: addr.ActorKind{Type: "X", Version: "v1.0"},
		msgs: []addr.MessageKind{kind},
		disp: []DispatchEntry{{
			Kind: kind,
			Request: func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
				return json.RawMessage(`{"ack":true}`), nil
			},
		}},
	}

	mbox := make(chan MailboxItem, 10)
	ctrl := make(chan control.Msg, 10)
	pub := newFakePublisher()
	a := New(actor, mbox, ctrl, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	defer cancel()

	mbox <- MailboxItem{Kind: ItemRequest, ID: "r1", Version: "v1.0", Payload: json.RawMessage(`{"hello":true}`), ReplySubject: "reply.r1"}

	raw := waitFor(t, pub, "reply.r1")
	env, err := envelope.Decode(raw)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Tag != envelope.TagResponse || env.Error != nil || string(env.Msg) != `{"ack":true}` {
		t.Fatalf("unexpected response: %+v", env)
	}
}

func TestAgentRequestHandlerError(t *testing.T) {
	kind := addr.MessageKind{Type: "XMsg", Version: "v1.0"}
	actor := &testActor{
		kind: addr.ActorKind{Type: "X", Version: "v1.0"},
		msgs: []addr.MessageKind{kind},
		disp: []DispatchEntry{{
			Kind: kind,
			Request: func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
				return nil, errors.New("boom")
			},
		}},
	}

	mbox := make(chan MailboxItem, 10)
	ctrl := make(chan control.Msg, 10)
	pub := newFakePublisher()
	a := New(actor, mbox, ctrl, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	defer cancel()

	mbox <- MailboxItem{Kind: ItemRequest, ID: "r2", Version: "v1.0", Payload: json.RawMessage(`{}`), ReplySubject: "reply.r2"}

	raw := waitFor(t, pub, "reply.r2")
	env, err := envelope.Decode(raw)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Error == nil || *env.Error != "boom" {
		t.Fatalf("expected boom error response, got %+v", env)
	}
}

func TestAgentUnknownVersionRespondsError(t *testing.T) {
	actor := &testActor{kind: addr.ActorKind{Type: "X", Version: "v1.0"}}
	mbox := make(chan MailboxItem, 10)
	ctrl := make(chan control.Msg, 10)
	pub := newFakePublisher()
	a := New(actor, mbox, ctrl, pub)

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	defer cancel()

	mbox <- MailboxItem{Kind: ItemRequest, ID: "r3", Version: "v9.9", Payload: json.RawMessage(`{}`), ReplySubject: "reply.r3"}

	raw := waitFor(t, pub, "reply.r3")
	env, _ := envelope.Decode(raw)
	if env.Error == nil {
		t.Fatalf("expected error response for unknown version, got %+v", env)
	}
}

func TestAgentShutdownDrainsMailbox(t *testing.T) {
	kind := addr.MessageKind{Type: "XMsg", Version: "v1.0"}
	var handled int32
	actor := &testActor{
		kind: addr.ActorKind{Type: "X", Version: "v1.0"},
		msgs: []addr.MessageKind{kind},
		disp: []DispatchEntry{{
			Kind: kind,
			Send: func(ctx context.Context, payload json.RawMessage) error {
				handled++
				return nil
			},
		}},
	}
	mbox := make(chan MailboxItem, 10)
	ctrl := make(chan control.Msg, 10)
	pub := newFakePublisher()
	a := New(actor, mbox, ctrl, pub)

	mbox <- MailboxItem{Kind: ItemSend, ID: "s1", Version: "v1.0", Payload: json.RawMessage(`{}`)}
	ctrl <- control.NewShutdown()

	done := make(chan struct{})
	go func() {
		a.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("agent did not exit after shutdown drained mailbox")
	}
	if handled != 1 {
		t.Fatalf("expected in-flight send to be handled before exit, got %d", handled)
	}
}
