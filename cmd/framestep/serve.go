package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/framestep/internal/api"
	"github.com/samcharles93/framestep/internal/metrics"
	"github.com/samcharles93/framestep/internal/session"
)

type serveOptions struct {
	addr           string
	readTimeout    time.Duration
	runTimeout     time.Duration
	maxTokensLimit int64
}

func serveCmd() *cli.Command {
	var o serveOptions

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve frames over HTTP",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &o.addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &o.readTimeout,
			},
			&cli.DurationFlag{
				Name:        "run-timeout",
				Usage:       "cancel frames whose /run takes longer than this (0 = no limit)",
				Value:       30 * time.Second,
				Destination: &o.runTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-tokens-limit",
				Usage:       "largest max_tokens a client may request (0 = no limit)",
				Value:       4096,
				Destination: &o.maxTokensLimit,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyServeConfig(cmd, cfg, &o)
			applyLoggingConfig(cmd, cfg)

			log, err := openLogger()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			m := metrics.New()
			store := session.NewStore(log.With("component", "store"), m)
			server := api.NewServer(store, m, log.With("component", "api"), api.Config{
				RunTimeout: o.runTimeout,
				MaxTokens:  int(o.maxTokensLimit),
			})

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", o.addr, "run_timeout", o.runTimeout)
			sc := echo.StartConfig{
				Address: o.addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = o.readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
