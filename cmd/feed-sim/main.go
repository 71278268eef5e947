// Command feed-sim drives a leaderboard service with simulated contest
// results: it pushes batches to push boards and serves mock feeds for
// boards configured with the http source.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/bauman-code-tournament/leaderboard/internal/feedsim"
	"github.com/bauman-code-tournament/leaderboard/pkg/logger"
)

const (
	defaultFeedAddr    = ":9090"
	readHeaderTimeout  = 5 * time.Second
	serverShutdownWait = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "feed-sim",
		Usage: "simulate judges for the Bauman Code Tournament leaderboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "text or json"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
		},
		Before: func(c *cli.Context) error {
			format := logger.FormatText
			if c.String("log-format") == "json" {
				format = logger.FormatJSON
			}
			if err := logger.Init(logger.WithFormat(format)); err != nil {
				return err
			}
			return logger.SetLevelString(c.String("log-level"))
		},
		Commands: []*cli.Command{
			pushCommand(),
			serveCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func pushCommand() *cli.Command {
	def := feedsim.DefaultConfig()
	return &cli.Command{
		Name:  "push",
		Usage: "push result batches to push boards and verify the leaderboards",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: def.BaseURL, Usage: "leaderboard service base URL"},
			&cli.StringSliceFlag{Name: "board", Value: cli.NewStringSlice(def.Boards...), Usage: "push board to feed (repeatable)"},
			&cli.IntFlag{Name: "teams", Value: def.Teams, Usage: "teams per board"},
			&cli.IntFlag{Name: "rounds", Value: def.Rounds, Usage: "batches per board"},
			&cli.DurationFlag{Name: "interval", Value: def.Interval, Usage: "pause between rounds"},
			&cli.DurationFlag{Name: "timeout", Value: def.Timeout, Usage: "HTTP request timeout"},
			&cli.Int64Flag{Name: "seed", Value: def.Seed, Usage: "base random seed"},
			&cli.Float64Flag{Name: "error-rate", Value: def.ErrorRate, Usage: "chance a team fails a round"},
			&cli.Float64Flag{Name: "replay-rate", Value: def.ReplayRate, Usage: "chance a round re-sends the previous batch"},
			&cli.StringFlag{Name: "tie-break", Value: def.TieBreak, Usage: "tie-break the service uses"},
			&cli.BoolFlag{Name: "verify", Value: def.Verify, Usage: "check final leaderboards"},
		},
		Action: func(c *cli.Context) error {
			cfg := feedsim.Config{
				BaseURL:    c.String("url"),
				Boards:     c.StringSlice("board"),
				Teams:      c.Int("teams"),
				Rounds:     c.Int("rounds"),
				Interval:   c.Duration("interval"),
				Timeout:    c.Duration("timeout"),
				Seed:       c.Int64("seed"),
				ErrorRate:  c.Float64("error-rate"),
				ReplayRate: c.Float64("replay-rate"),
				TieBreak:   c.String("tie-break"),
				Verify:     c.Bool("verify"),
			}
			stats, err := feedsim.Run(c.Context, cfg)
			if err != nil {
				return fmt.Errorf("feed simulation failed: %w", err)
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d batches failed", stats.Failed)
			}
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve mock result feeds at /feeds/{board}",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: defaultFeedAddr, Usage: "listen address"},
			&cli.StringSliceFlag{Name: "board", Value: cli.NewStringSlice("feed"), Usage: "board to serve (repeatable)"},
			&cli.IntFlag{Name: "teams", Value: feedsim.DefaultTeams, Usage: "teams per board"},
			&cli.Int64Flag{Name: "seed", Value: 1, Usage: "base random seed"},
			&cli.Float64Flag{Name: "error-rate", Value: 0.05, Usage: "chance a team fails a round"},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			log := logger.Get().Named("feed-server")
			fs := feedsim.NewFeedServer(c.StringSlice("board"), c.Int64("seed"), c.Int("teams"), c.Float64("error-rate"))
			srv := &http.Server{
				Addr:              c.String("addr"),
				Handler:           fs.Routes(),
				ReadHeaderTimeout: readHeaderTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info(ctx, "serving mock feeds",
					logger.String("addr", srv.Addr),
					logger.Any("boards", c.StringSlice("board")))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownWait)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown feed server: %w", err)
			}
			log.Info(ctx, "feed server stopped")
			return nil
		},
	}
}
