package client_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/doodlebox/canvas"
	"github.com/Seednode/doodlebox/client"
	"github.com/Seednode/doodlebox/event"
	"github.com/Seednode/doodlebox/relay"
)

func newServer(t *testing.T, opts ...relay.Option) (*relay.Relay, string) {
	t.Helper()

	opts = append([]relay.Option{relay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	r := relay.New(opts...)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		r.Close()
		srv.Close()
	})

	return r, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, ctx context.Context, url string) *client.Conn {
	t.Helper()

	c, err := client.Dial(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func timeout(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func TestCatchupOnEmptyRelay(t *testing.T) {
	_, url := newServer(t)
	ctx := timeout(t)

	c := dial(t, ctx, url)
	h, err := c.Catchup(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 0 {
		t.Errorf("expected empty history, got %d entries", len(h))
	}
}

func TestSendEchoesToSender(t *testing.T) {
	_, url := newServer(t)
	ctx := timeout(t)

	c := dial(t, ctx, url)
	if _, err := c.Catchup(ctx, nil); err != nil {
		t.Fatal(err)
	}

	want := event.Guess{Text: "a boat", By: "AI", Timestamp: 1700000000000}
	if err := c.Send(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := c.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("echo: got %#v want %#v", got, want)
	}
}

func TestSendAfterClose(t *testing.T) {
	_, url := newServer(t)
	ctx := timeout(t)

	c := dial(t, ctx, url)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Send(ctx, event.Clear{}); !errors.Is(err, client.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

// A client that catches up late renders exactly what a client present from
// the start rendered.
func TestLateJoinerRendersSameCanvas(t *testing.T) {
	_, url := newServer(t)
	ctx := timeout(t)
	rng := rand.New(rand.NewSource(3))

	stroke := func() event.Stroke {
		return event.Stroke{
			X0: rng.Float64() * 160, Y0: rng.Float64() * 120,
			X1: rng.Float64() * 160, Y1: rng.Float64() * 120,
			Color: "#1d4ed8", Size: 1 + rng.Float64()*6,
		}
	}

	early := dial(t, ctx, url)
	if _, err := early.Catchup(ctx, nil); err != nil {
		t.Fatal(err)
	}
	live := canvas.New(160, 120)

	exchange := func(m event.Event) {
		t.Helper()
		if err := early.Send(ctx, m); err != nil {
			t.Fatal(err)
		}
		got, err := early.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		live.Apply(got)
	}

	for i := 0; i < 40; i++ {
		exchange(stroke())
	}
	exchange(event.Clear{})
	for i := 0; i < 40; i++ {
		exchange(stroke())
	}

	late := dial(t, ctx, url)
	replica := canvas.New(160, 120)
	h, err := late.Catchup(ctx, replica.Apply)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 81 {
		t.Fatalf("history has %d entries, want 81", len(h))
	}
	replica.Apply(h)

	for i := 0; i < 10; i++ {
		s := stroke()
		exchange(s)
		got, err := late.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		replica.Apply(got)
	}

	if d := canvas.Diff(live, replica); d != 0 {
		t.Errorf("%d pixels differ between the early and late client", d)
	}
	if len(replica.Strokes()) != 50 {
		t.Errorf("replica holds %d strokes since the clear, want 50", len(replica.Strokes()))
	}
}
