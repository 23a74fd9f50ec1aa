package watch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("expected 5s reconnect delay, got %v", cfg.ReconnectDelay)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("expected 2s poll interval, got %v", cfg.PollInterval)
	}
}

func TestStreamsUnsupported(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("(Location40573) The $changeStream stage is only supported on replica sets"), true},
		{errors.New("$changeStream is not supported"), true},
		{errors.New("connection refused"), false},
	}
	for _, c := range cases {
		if got := streamsUnsupported(c.err); got != c.want {
			t.Fatalf("streamsUnsupported(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestEmitRespectsCanceledContext(t *testing.T) {
	w := &Watcher{events: make(chan Event)} // unbuffered, no reader

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.emit(ctx, Event{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on canceled context")
	}
}
