/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package guess turns a picture of the canvas into a short guess of what it
// shows. Failures never escape this package as errors to players: Describe
// maps them to placeholder text.
package guess

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Texts shown to players.
const (
	TextNeedImage     = "I can't see anything yet, try drawing bigger?"
	TextNotConfigured = "The guessing service is not configured"
	TextNoIdea        = "I can't tell yet"
	TextTooLarge      = "That picture is too large for me to look at"
	textFailure       = "Guessing failed: %s"
	textResult        = "I guess it's “%s”"
)

var (
	ErrNoImage       = errors.New("no image provided")
	ErrNotConfigured = errors.New("guesser not configured")
	ErrImageTooLarge = errors.New("image too large")
)

// Guesser looks at a PNG rendering of the canvas and names what it shows.
type Guesser interface {
	Guess(ctx context.Context, png []byte) (string, error)
}

// Describe asks g about png and always returns text suitable for a guess
// entry, along with the error that produced a placeholder, if any.
func Describe(ctx context.Context, g Guesser, png []byte) (string, error) {
	if len(png) == 0 {
		return TextNeedImage, ErrNoImage
	}
	if g == nil {
		return TextNotConfigured, ErrNotConfigured
	}

	answer, err := g.Guess(ctx, png)
	switch {
	case errors.Is(err, ErrNotConfigured):
		return TextNotConfigured, err
	case errors.Is(err, ErrImageTooLarge):
		return TextTooLarge, err
	case err != nil:
		return fmt.Sprintf(textFailure, err), err
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = TextNoIdea
	}

	return fmt.Sprintf(textResult, answer), nil
}

// DecodeDataURL extracts the bytes from a base64 "data:" URL, as produced by
// canvas.toDataURL in the browser.
func DecodeDataURL(s string) ([]byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, errors.New("not a data url")
	}

	meta, data, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("data url is not base64 encoded")
	}

	out, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}

	return out, nil
}

// EncodeDataURL wraps a PNG as a data URL.
func EncodeDataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
