package guess_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/doodlebox/canvas"
	"github.com/Seednode/doodlebox/event"
	"github.com/Seednode/doodlebox/guess"
)

type stubGuesser struct {
	answer string
	err    error
}

func (s stubGuesser) Guess(context.Context, []byte) (string, error) {
	return s.answer, s.err
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()
	img := []byte{0x89, 'P', 'N', 'G'}

	cases := []struct {
		name    string
		g       guess.Guesser
		png     []byte
		want    string
		wantErr error
	}{
		{"no image", stubGuesser{answer: "cat"}, nil, guess.TextNeedImage, guess.ErrNoImage},
		{"no guesser", nil, img, guess.TextNotConfigured, guess.ErrNotConfigured},
		{"no key", guess.NewOpenAI("", "", "", time.Second), img, guess.TextNotConfigured, guess.ErrNotConfigured},
		{"answer", stubGuesser{answer: "  a cat "}, img, "I guess it's “a cat”", nil},
		{"empty answer", stubGuesser{}, img, "I guess it's “" + guess.TextNoIdea + "”", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := guess.Describe(ctx, tc.g, tc.png)
			if got != tc.want {
				t.Errorf("text: got %q want %q", got, tc.want)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err: got %v want %v", err, tc.wantErr)
			}
		})
	}

	boom := errors.New("boom")
	got, err := guess.Describe(ctx, stubGuesser{err: boom}, img)
	if !errors.Is(err, boom) || !strings.Contains(got, "boom") {
		t.Errorf("failure: got %q, %v", got, err)
	}
}

func TestDataURL(t *testing.T) {
	payload := []byte("not really a png")

	got, err := guess.DecodeDataURL(guess.EncodeDataURL(payload))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q", got)
	}

	for _, bad := range []string{"", "hello", "data:image/png,abc", "data:image/png;base64,@@@"} {
		if _, err := guess.DecodeDataURL(bad); err == nil {
			t.Errorf("DecodeDataURL(%q) accepted", bad)
		}
	}
}

func TestOpenAI(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":" a lighthouse \n"}}]}`)
	}))
	defer srv.Close()

	g := guess.NewOpenAI(srv.URL, "sk-test", "", time.Second)
	answer, err := g.Guess(context.Background(), []byte("png"))
	if err != nil {
		t.Fatal(err)
	}
	if answer != "a lighthouse" {
		t.Errorf("answer %q", answer)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization %q", gotAuth)
	}
	if gotBody["model"] != guess.DefaultModel {
		t.Errorf("model %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(30) {
		t.Errorf("max_tokens %v", gotBody["max_tokens"])
	}
	if !strings.Contains(mustJSON(t, gotBody["messages"]), guess.EncodeDataURL([]byte("png"))) {
		t.Error("request does not carry the image")
	}
}

func TestOpenAI_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := guess.NewOpenAI(srv.URL, "sk-test", "m", time.Second).Guess(context.Background(), []byte("png"))
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected status error, got %v", err)
	}

	_, err = guess.NewOpenAI(srv.URL, "", "m", time.Second).Guess(context.Background(), []byte("png"))
	if !errors.Is(err, guess.ErrNotConfigured) {
		t.Errorf("missing key: got %v", err)
	}
}

func TestHeuristic(t *testing.T) {
	c := canvas.New(100, 100)

	var blank bytes.Buffer
	if err := c.EncodePNG(&blank); err != nil {
		t.Fatal(err)
	}
	answer, err := guess.Heuristic{}.Guess(context.Background(), blank.Bytes())
	if err != nil || answer != "" {
		t.Errorf("blank canvas: got %q, %v", answer, err)
	}

	c.Apply(event.Stroke{X0: 10, Y0: 50, X1: 90, Y1: 50, Color: "#ff0000", Size: 6})
	var drawn bytes.Buffer
	if err := c.EncodePNG(&drawn); err != nil {
		t.Fatal(err)
	}
	answer, err = guess.Heuristic{}.Guess(context.Background(), drawn.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if answer != "a heart" {
		t.Errorf("red line: got %q", answer)
	}

	if _, err := (guess.Heuristic{}).Guess(context.Background(), []byte("junk")); err == nil {
		t.Error("junk input accepted")
	}
}

// pngHeader returns a PNG holding only a header that declares an 8-bit RGBA
// image of the given size, with no pixel data.
func pngHeader(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	chunk := func(kind string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(kind), data...)
		buf.Write(body)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha
	chunk("IHDR", ihdr)
	chunk("IEND", nil)

	return buf.Bytes()
}

func TestHeuristic_RejectsOversizedImages(t *testing.T) {
	huge := pngHeader(16000, 16000)

	_, err := guess.Heuristic{}.Guess(context.Background(), huge)
	if !errors.Is(err, guess.ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}

	text, err := guess.Describe(context.Background(), guess.Heuristic{}, huge)
	if text != guess.TextTooLarge || !errors.Is(err, guess.ErrImageTooLarge) {
		t.Errorf("Describe: got %q, %v", text, err)
	}

	_, err = guess.Heuristic{MaxPixels: 50 * 50}.Guess(context.Background(), pngHeader(100, 100))
	if !errors.Is(err, guess.ErrImageTooLarge) {
		t.Errorf("custom limit: got %v", err)
	}

	c := canvas.New(100, 100)
	var small bytes.Buffer
	if err := c.EncodePNG(&small); err != nil {
		t.Fatal(err)
	}
	if _, err := (guess.Heuristic{MaxPixels: 100 * 100}).Guess(context.Background(), small.Bytes()); err != nil {
		t.Errorf("image at the limit rejected: %v", err)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}

	return string(data)
}
