package relay_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/Seednode/doodlebox/event"
	"github.com/Seednode/doodlebox/relay"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRelay(opts ...relay.Option) *relay.Relay {
	return relay.New(append([]relay.Option{relay.WithLogger(discardLogger())}, opts...)...)
}

func connect(t *testing.T, r *relay.Relay, buffer int) *relay.Client {
	t.Helper()
	c := relay.NewClient(nil, buffer)
	if !r.Register(c) {
		t.Fatal("register failed")
	}
	return c
}

// drain returns every frame currently queued for c.
func drain(c *relay.Client) []event.Message {
	var out []event.Message
	for {
		select {
		case frame, ok := <-c.Frames():
			if !ok {
				return out
			}
			m, err := event.Decode(frame)
			if err != nil {
				panic(fmt.Sprintf("relay sent undecodable frame %s: %v", frame, err))
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func send(t *testing.T, r *relay.Relay, c *relay.Client, frame string) error {
	t.Helper()
	return r.Handle(context.Background(), c, []byte(frame))
}

const drawFrame = `{"type":"draw","payload":{"x0":0,"y0":0,"x1":10,"y1":10,"color":"#000","size":4}}`

var drawEvent = event.Stroke{X0: 0, Y0: 0, X1: 10, Y1: 10, Color: "#000", Size: 4}

func TestJoinScenario(t *testing.T) {
	r := newRelay()
	a := connect(t, r, 16)

	if err := send(t, r, a, `{"type":"join"}`); err != nil {
		t.Fatal(err)
	}
	if got := drain(a); !reflect.DeepEqual(got, []event.Message{event.History{}}) {
		t.Fatalf("A join: got %v, want empty history", got)
	}

	if err := send(t, r, a, drawFrame); err != nil {
		t.Fatal(err)
	}
	if got := drain(a); !reflect.DeepEqual(got, []event.Message{drawEvent}) {
		t.Fatalf("A should receive its own draw, got %v", got)
	}

	b := connect(t, r, 16)
	if err := send(t, r, b, `{"type":"join"}`); err != nil {
		t.Fatal(err)
	}
	if got := drain(b); !reflect.DeepEqual(got, []event.Message{event.History{drawEvent}}) {
		t.Fatalf("B join: got %v, want history with one draw", got)
	}

	// Join is unicast.
	if got := drain(a); len(got) != 0 {
		t.Errorf("A received %v when B joined", got)
	}
}

func TestBroadcastReachesEveryoneIncludingSender(t *testing.T) {
	r := newRelay()
	clients := []*relay.Client{connect(t, r, 16), connect(t, r, 16), connect(t, r, 16)}

	if err := send(t, r, clients[1], `{"type":"clear"}`); err != nil {
		t.Fatal(err)
	}
	if err := send(t, r, clients[2], `{"type":"guess","payload":{"text":"cat","by":"AI","timestamp":5}}`); err != nil {
		t.Fatal(err)
	}

	want := []event.Message{event.Clear{}, event.Guess{Text: "cat", By: "AI", Timestamp: 5}}
	for i, c := range clients {
		if got := drain(c); !reflect.DeepEqual(got, want) {
			t.Errorf("client %d: got %v want %v", i, got, want)
		}
	}

	if got := r.Snapshot(); !reflect.DeepEqual(got, event.History{want[0].(event.Event), want[1].(event.Event)}) {
		t.Errorf("history: got %v", got)
	}
}

func TestMalformedFramesHaveNoEffect(t *testing.T) {
	r := newRelay()
	a := connect(t, r, 16)
	b := connect(t, r, 16)

	frames := []string{
		`garbage`,
		`{"type":"cursor","payload":{"x":1,"y":2}}`,
		`{"type":"draw","payload":{"x0":0,"y0":0}}`,
		`{"type":"guess","payload":{"text":"no author"}}`,
		`{"type":"history","payload":[]}`,
		`{}`,
	}
	for _, f := range frames {
		if err := send(t, r, a, f); err == nil {
			t.Errorf("expected %s to be rejected", f)
		}
	}

	if got := drain(a); len(got) != 0 {
		t.Errorf("sender received %v", got)
	}
	if got := drain(b); len(got) != 0 {
		t.Errorf("peer received %v", got)
	}
	if stats := r.Stats(); stats.HistoryLen != 0 || stats.Clients != 2 {
		t.Errorf("unexpected stats after malformed input: %+v", stats)
	}

	// The connection is still a participant.
	if err := send(t, r, a, drawFrame); err != nil {
		t.Fatal(err)
	}
	if got := drain(b); !reflect.DeepEqual(got, []event.Message{drawEvent}) {
		t.Errorf("peer got %v after valid draw", got)
	}
}

func TestSlowClientIsEvictedWithoutBlockingOthers(t *testing.T) {
	r := newRelay()
	slow := connect(t, r, 1)
	fast := connect(t, r, 16)

	for i := 0; i < 3; i++ {
		if err := send(t, r, fast, drawFrame); err != nil {
			t.Fatal(err)
		}
	}

	if got := drain(fast); len(got) != 3 {
		t.Errorf("fast client got %d frames, want 3", len(got))
	}

	// The slow client keeps what fit, then its queue is closed.
	frames := 0
	for range slow.Frames() {
		frames++
	}
	if frames != 1 {
		t.Errorf("slow client got %d frames, want 1", frames)
	}
	if stats := r.Stats(); stats.Clients != 1 {
		t.Errorf("expected slow client evicted, %d clients remain", stats.Clients)
	}

	// Unregistering an evicted client is harmless.
	r.Unregister(slow)
}

func TestDepartedClientIsSkipped(t *testing.T) {
	r := newRelay()
	gone := connect(t, r, 16)
	live := connect(t, r, 16)

	r.Unregister(gone)
	r.Unregister(gone)

	if err := send(t, r, live, drawFrame); err != nil {
		t.Fatal(err)
	}
	if got := drain(live); len(got) != 1 {
		t.Errorf("live client got %v", got)
	}
	if _, ok := <-gone.Frames(); ok {
		t.Error("departed client's queue should be closed")
	}

	// A join from a client that already left is ignored.
	r.Join(context.Background(), gone)
}

func TestHistoryCapacityOption(t *testing.T) {
	r := newRelay(relay.WithHistorySize(3))
	c := connect(t, r, 64)

	for i := 0; i < 10; i++ {
		frame := fmt.Sprintf(`{"type":"guess","payload":{"text":"t%d","by":"x","timestamp":%d}}`, i, i)
		if err := send(t, r, c, frame); err != nil {
			t.Fatal(err)
		}
	}

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	for i, e := range snap {
		if got := e.(event.Guess).Timestamp; got != int64(7+i) {
			t.Errorf("entry %d: timestamp %d, want %d", i, got, 7+i)
		}
	}
}

// A client that joins while others publish must see every event exactly
// once across its history batch and the broadcasts that follow it.
func TestJoinIsLinearizedWithPublish(t *testing.T) {
	const (
		publishers = 8
		perWorker  = 200
	)

	r := newRelay(relay.WithHistorySize(publishers * perWorker))
	senders := make([]*relay.Client, publishers)
	for i := range senders {
		senders[i] = connect(t, r, publishers*perWorker+1)
	}
	joiner := connect(t, r, publishers*perWorker+1)

	var wg sync.WaitGroup
	for w := 0; w < publishers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				frame := fmt.Sprintf(`{"type":"guess","payload":{"text":"w","by":"%d","timestamp":%d}}`, w, i)
				_ = r.Handle(context.Background(), senders[w], []byte(frame))
			}
		}(w)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Join(context.Background(), joiner)
	}()
	wg.Wait()

	var replayed []event.Event
	seenHistory := false
	for _, m := range drain(joiner) {
		switch v := m.(type) {
		case event.History:
			seenHistory = true
			replayed = append([]event.Event(nil), v...)
		case event.Event:
			if seenHistory {
				replayed = append(replayed, v)
			}
		}
	}

	if !seenHistory {
		t.Fatal("joiner never received history")
	}
	if want := r.Snapshot(); !reflect.DeepEqual(event.History(replayed), want) {
		t.Errorf("joiner reconstructed %d events, authoritative history has %d", len(replayed), len(want))
	}
}

func TestCloseDisconnectsEveryone(t *testing.T) {
	r := newRelay()
	a := connect(t, r, 4)

	r.Close()

	if _, ok := <-a.Frames(); ok {
		t.Error("expected queue closed")
	}
	late := relay.NewClient(nil, 4)
	if r.Register(late) {
		t.Error("register after close should fail")
	}
	r.Publish(context.Background(), event.Clear{})
	if r.Stats().HistoryLen != 0 {
		t.Error("publish after close should be ignored")
	}
}

func TestFramesAreForwardedInCanonicalForm(t *testing.T) {
	r := newRelay()
	c := connect(t, r, 16)

	padded := `{"type":"draw","extra":true,"payload":{"x0":0,"y0":0,"x1":10,"y1":10,"color":"#000","size":4,"pressure":0.5}}`
	if err := send(t, r, c, padded); err != nil {
		t.Fatal(err)
	}

	want, err := event.Encode(drawEvent)
	if err != nil {
		t.Fatal(err)
	}
	got := <-c.Frames()
	if !bytes.Equal(got, want) {
		t.Fatalf("forwarded %s, want %s", got, want)
	}
	for _, field := range []string{"extra", "pressure"} {
		if bytes.Contains(got, []byte(field)) {
			t.Errorf("unknown field %q was forwarded", field)
		}
	}

	// Invalid UTF-8 is replaced the same way live and on replay.
	if err := send(t, r, c, "{\"type\":\"guess\",\"payload\":{\"text\":\"a\xffb\",\"by\":\"ann\",\"timestamp\":1}}"); err != nil {
		t.Fatal(err)
	}
	live := drain(c)
	if len(live) != 1 || live[0].(event.Guess).Text != "a\ufffdb" {
		t.Fatalf("live guess: %v", live)
	}

	late := connect(t, r, 16)
	if err := send(t, r, late, `{"type":"join"}`); err != nil {
		t.Fatal(err)
	}
	replay := drain(late)
	if len(replay) != 1 {
		t.Fatalf("late joiner got %v", replay)
	}
	h := replay[0].(event.History)
	if len(h) != 2 || !reflect.DeepEqual(h[0], drawEvent) || h[1].(event.Guess).Text != "a\ufffdb" {
		t.Fatalf("replayed %v", h)
	}
}
