package env

import "testing"

func TestSystemNATSURIVar(t *testing.T) {
	if got := SystemNATSURIVar("demo"); got != "HOLLYWOOD_SYSTEM_DEMO_NATS_URI" {
		t.Fatalf("unexpected var name: %s", got)
	}
}

func TestResolveMissing(t *testing.T) {
	t.Setenv(SystemVar, "")
	if _, _, err := Resolve(); err == nil {
		t.Fatal("expected error when HOLLYWOOD_SYSTEM is unset")
	}
}

func TestResolveOK(t *testing.T) {
	t.Setenv(SystemVar, "demo")
	t.Setenv("HOLLYWOOD_SYSTEM_DEMO_NATS_URI", "127.0.0.1:4222")
	sys, uri, err := Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sys != "demo" || uri != "127.0.0.1:4222" {
		t.Fatalf("unexpected resolve result: %s %s", sys, uri)
	}
}
