/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Seednode/doodlebox/canvas"
	"github.com/Seednode/doodlebox/guess"
	"github.com/Seednode/doodlebox/relay"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind         string
	canvasHeight int
	canvasWidth  int
	guessKey     string
	guessModel   string
	guessTimeout time.Duration
	guessURL     string
	historySize  int
	maxFrameSize int64
	mdns         bool
	metrics      bool
	port         int
	prefix       string
	profile      bool
	sendBuffer   int
	tlsCert      string
	tlsKey       string
	verbose      bool
	version      bool
	writeTimeout time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.historySize < 1 {
		return fmt.Errorf("invalid history size (must be at least 1): %d", c.historySize)
	}
	if c.sendBuffer < 1 {
		return fmt.Errorf("invalid send buffer (must be at least 1): %d", c.sendBuffer)
	}
	if c.maxFrameSize < 1 {
		return fmt.Errorf("invalid max frame size (must be at least 1): %d", c.maxFrameSize)
	}
	if c.writeTimeout <= 0 {
		return fmt.Errorf("invalid write timeout (must be positive): %s", c.writeTimeout)
	}
	if c.canvasWidth < 1 || c.canvasHeight < 1 {
		return fmt.Errorf("invalid canvas size: %dx%d", c.canvasWidth, c.canvasHeight)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) logger() *slog.Logger {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// guesser picks the hosted model when a key is configured and the local
// heuristic otherwise.
func (c *Config) guesser() guess.Guesser {
	if c.guessKey == "" {
		return guess.Heuristic{}
	}

	return guess.NewOpenAI(c.guessURL, c.guessKey, c.guessModel, c.guessTimeout)
}

// bindEnv lets every flag in fs be set from a DOODLEBOX_ environment variable.
func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func normalizeFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DOODLEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

func newCmd(cfg *Config) *cobra.Command {
	v := newViper()

	cmd := &cobra.Command{
		Use:           "doodlebox",
		Short:         "A shared drawing board with history replay for late joiners.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(normalizeFlags)

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: DOODLEBOX_BIND)")
	fs.IntVar(&cfg.canvasHeight, "canvas-height", canvas.DefaultHeight, "height of server-side renders, in pixels (env: DOODLEBOX_CANVAS_HEIGHT)")
	fs.IntVar(&cfg.canvasWidth, "canvas-width", canvas.DefaultWidth, "width of server-side renders, in pixels (env: DOODLEBOX_CANVAS_WIDTH)")
	fs.StringVar(&cfg.guessKey, "guess-key", "", "api key for the guessing model; the local heuristic is used when empty (env: DOODLEBOX_GUESS_KEY)")
	fs.StringVar(&cfg.guessModel, "guess-model", guess.DefaultModel, "model used for guesses (env: DOODLEBOX_GUESS_MODEL)")
	fs.DurationVar(&cfg.guessTimeout, "guess-timeout", 20*time.Second, "time allowed for a single guess (env: DOODLEBOX_GUESS_TIMEOUT)")
	fs.StringVar(&cfg.guessURL, "guess-url", guess.DefaultURL, "chat completions endpoint used for guesses (env: DOODLEBOX_GUESS_URL)")
	fs.IntVar(&cfg.historySize, "history-size", relay.DefaultHistorySize, "number of events kept for replay to late joiners (env: DOODLEBOX_HISTORY_SIZE)")
	fs.Int64Var(&cfg.maxFrameSize, "max-frame-size", relay.DefaultMaxFrameSize, "largest accepted inbound frame, in bytes (env: DOODLEBOX_MAX_FRAME_SIZE)")
	fs.BoolVar(&cfg.mdns, "mdns", false, "advertise the board on the local network (env: DOODLEBOX_MDNS)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "expose prometheus metrics at /metrics (env: DOODLEBOX_METRICS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: DOODLEBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: DOODLEBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: DOODLEBOX_PROFILE)")
	fs.IntVar(&cfg.sendBuffer, "send-buffer", relay.DefaultSendBuffer, "frames queued per connection; a client that falls this far behind is disconnected and must reconnect and rejoin to catch up (env: DOODLEBOX_SEND_BUFFER)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: DOODLEBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: DOODLEBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: DOODLEBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: DOODLEBOX_VERSION)")
	fs.DurationVar(&cfg.writeTimeout, "write-timeout", relay.DefaultWriteTimeout, "time allowed to write a single frame to a client (env: DOODLEBOX_WRITE_TIMEOUT)")

	bindEnv(v, fs)

	cmd.AddCommand(newSnapshotCmd(v))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("doodlebox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
