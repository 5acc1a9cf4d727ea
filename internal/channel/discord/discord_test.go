package discord

import (
	"testing"

	"github.com/cortexhub/persona-gateway/internal/channel"
)

func TestName(t *testing.T) {
	a := New("token")
	if a.Name() != "discord" {
		t.Errorf("expected name discord, got %s", a.Name())
	}
}

func TestDisabledWithoutToken(t *testing.T) {
	if New("").IsEnabled() {
		t.Error("adapter without token should be disabled")
	}
}

func TestStopDropsLateInbound(t *testing.T) {
	a := New("token")
	if err := a.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// A handler goroutine can still be in flight after Stop returns.
	a.push(&channel.Message{Platform: "discord", UserID: "u1", Content: "late"})

	if _, ok := <-a.Incoming(); ok {
		t.Error("expected incoming channel to be closed with no late message")
	}
}
