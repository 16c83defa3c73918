/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Seednode/doodlebox/canvas"
	"github.com/Seednode/doodlebox/client"
)

type snapshotConfig struct {
	format  string
	height  int
	out     string
	timeout time.Duration
	width   int
}

func (c *snapshotConfig) validate() error {
	switch c.format {
	case "png", "pdf":
	default:
		return fmt.Errorf("invalid format (must be png or pdf): %q", c.format)
	}
	if c.width < 1 || c.height < 1 {
		return fmt.Errorf("invalid canvas size: %dx%d", c.width, c.height)
	}
	if c.timeout <= 0 {
		return fmt.Errorf("invalid timeout (must be positive): %s", c.timeout)
	}
	return nil
}

// capture joins the relay at url and rebuilds its canvas from the history
// it replays.
func capture(ctx context.Context, url string, width, height int) (*canvas.Canvas, error) {
	conn, err := client.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	c := canvas.New(width, height)

	history, err := conn.Catchup(ctx, c.Apply)
	if err != nil {
		return nil, fmt.Errorf("catch up: %w", err)
	}
	c.Apply(history)

	return c, nil
}

func writeSnapshot(c *canvas.Canvas, format, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	switch format {
	case "pdf":
		err = c.EncodePDF(f)
	default:
		err = c.EncodePNG(f)
	}
	if err != nil {
		return 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	return info.Size(), f.Close()
}

func newSnapshotCmd(v *viper.Viper) *cobra.Command {
	cfg := &snapshotConfig{}

	cmd := &cobra.Command{
		Use:   "snapshot <ws-url>",
		Short: "Save the current drawing of a running board as a PNG or PDF.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.out != "" && !cmd.Flags().Changed("format") {
				if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(cfg.out)), "."); ext == "pdf" {
					cfg.format = ext
				}
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			if cfg.out == "" {
				cfg.out = "doodlebox." + cfg.format
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
			defer cancel()

			c, err := capture(ctx, args[0], cfg.width, cfg.height)
			if err != nil {
				return err
			}

			size, err := writeSnapshot(c, cfg.format, cfg.out)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %d strokes since the last clear)\n",
				cfg.out,
				humanReadableSize(int(size)),
				len(c.Strokes()),
			)

			return nil
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(normalizeFlags)

	fs.StringVar(&cfg.format, "format", "png", "output format, png or pdf (env: DOODLEBOX_FORMAT)")
	fs.IntVar(&cfg.height, "height", canvas.DefaultHeight, "canvas height, in pixels (env: DOODLEBOX_HEIGHT)")
	fs.StringVarP(&cfg.out, "out", "o", "", "file to write, defaults to doodlebox.<format> (env: DOODLEBOX_OUT)")
	fs.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "time allowed to connect and catch up (env: DOODLEBOX_TIMEOUT)")
	fs.IntVar(&cfg.width, "width", canvas.DefaultWidth, "canvas width, in pixels (env: DOODLEBOX_WIDTH)")

	bindEnv(v, fs)

	return cmd
}
