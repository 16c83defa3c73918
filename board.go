/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Doodlebox Board
//
// Everyone who opens the page draws on the same canvas. Each stroke segment,
// clear and guess is sent over a websocket to the relay, which echoes it to
// every connected client (the sender included) and keeps the most recent
// events so that anyone joining later can replay them and catch up.
//
// Routes:
//   - /            → HTML client
//   - /ws          → websocket carrying draw, clear, guess, join and history frames
//   - /qr          → PNG QR code for the board URL
//   - /canvas.png  → server-side render of the replayed history
//   - /canvas.pdf  → the strokes since the last clear, as vector lines
//   - /api/guess   → asks the guesser what a PNG of the canvas shows

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/doodlebox/canvas"
	"github.com/Seednode/doodlebox/guess"
	"github.com/Seednode/doodlebox/relay"
)

const (
	qrSize = 320

	// Largest accepted guess request: a data URL of a full-size canvas.
	maxGuessBody = 8 << 20
)

type board struct {
	relay   *relay.Relay
	guesser guess.Guesser
}

func newBoard(cfg *Config, r *relay.Relay) *board {
	return &board{
		relay:   r,
		guesser: cfg.guesser(),
	}
}

// render replays the current history onto a blank canvas.
func (b *board) render(cfg *Config) *canvas.Canvas {
	c := canvas.New(cfg.canvasWidth, cfg.canvasHeight)
	c.Apply(b.relay.Snapshot())

	return c
}

type guessRequest struct {
	Image string `json:"image"`
}

type guessResponse struct {
	Result string `json:"result"`
}

func serveWebsocket(cfg *Config, b *board) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		logf(cfg, "BOARD: Connection from %s", realIP(r))

		b.relay.ServeHTTP(w, r)

		logf(cfg, "BOARD: %s disconnected after %s",
			realIP(r),
			time.Since(startTime).Round(time.Millisecond),
		)
	}
}

// boardURL derives the public URL of the board, respecting TLS and
// X-Forwarded-Proto if present.
func boardURL(cfg *Config, r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix + "/"
}

func serveQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		png, err := qrcode.Encode(boardURL(cfg, r), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		_, err = w.Write(png)
		if err != nil {
			errs <- err

			return
		}
	}
}

func serveCanvasPNG(cfg *Config, b *board, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var buf bytes.Buffer
		if err := b.render(cfg).EncodePNG(&buf); err != nil {
			http.Error(w, "render failed", http.StatusInternalServerError)
			errs <- err

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		written, err := w.Write(buf.Bytes())
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "BOARD: Canvas render (%s) to %s in %s",
			humanReadableSize(written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveCanvasPDF(cfg *Config, b *board, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var buf bytes.Buffer
		if err := b.render(cfg).EncodePDF(&buf); err != nil {
			http.Error(w, "render failed", http.StatusInternalServerError)
			errs <- err

			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `inline; filename="doodlebox.pdf"`)
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		written, err := w.Write(buf.Bytes())
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "BOARD: Canvas export (%s) to %s in %s",
			humanReadableSize(written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// describeUpload reads a guess request and returns the player text along
// with the status to answer with.
func describeUpload(cfg *Config, b *board, w http.ResponseWriter, r *http.Request) (string, int) {
	var req guessRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxGuessBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logf(cfg, "BOARD: Guess from %s exceeded %s", realIP(r), humanReadableSize(int(tooLarge.Limit)))

			return guess.TextTooLarge, http.StatusRequestEntityTooLarge
		}

		return guess.TextNeedImage, http.StatusBadRequest
	}

	png, err := guess.DecodeDataURL(req.Image)
	if err != nil {
		png = nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), cfg.guessTimeout)
	defer cancel()

	text, err := guess.Describe(ctx, b.guesser, png)
	switch {
	case err == nil:
		return text, http.StatusOK
	case errors.Is(err, guess.ErrNoImage):
		return text, http.StatusBadRequest
	case errors.Is(err, guess.ErrImageTooLarge):
		return text, http.StatusRequestEntityTooLarge
	default:
		logf(cfg, "BOARD: Guess for %s failed: %v", realIP(r), err)

		return text, http.StatusInternalServerError
	}
}

func serveGuess(cfg *Config, b *board, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		text, status := describeUpload(cfg, b, w, r)

		w.Header().Set("Content-Type", "application/json")
		securityHeaders(cfg, w)
		w.WriteHeader(status)

		if err := json.NewEncoder(w).Encode(guessResponse{Result: text}); err != nil {
			errs <- err

			return
		}

		logf(cfg, "BOARD: Guess %q for %s in %s",
			strings.TrimSpace(text),
			realIP(r),
			time.Since(startTime).Round(time.Millisecond),
		)
	}
}

func registerBoard(cfg *Config, b *board, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/ws", serveWebsocket(cfg, b))

	mux.GET(cfg.prefix+"/qr", serveQR(cfg, errs))

	mux.GET(cfg.prefix+"/canvas.png", serveCanvasPNG(cfg, b, errs))
	mux.GET(cfg.prefix+"/canvas.pdf", serveCanvasPDF(cfg, b, errs))

	mux.POST(cfg.prefix+"/api/guess", serveGuess(cfg, b, errs))
}
