package main

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/goliatone/go-book-catalog/internal/config"
	"github.com/goliatone/go-book-catalog/pkg/di"
)

// runtime holds what the Before hook builds for the commands.
type runtime struct {
	container *di.Container
	registry  *prometheus.Registry
	logger    zerolog.Logger
	json      bool
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	rt := &runtime{logger: zerolog.Nop()}

	return &cli.App{
		Name:      "bookshelf",
		Usage:     "browse the book catalog, manage reviews and favorites",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "catalog API base URL, overrides " + config.EnvPrefix + "API_BASE_URL",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files to load before the environment",
				Value: cli.NewStringSlice(config.DefaultEnvFiles...),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print results as JSON",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.StringSlice("env-file")...)
			if err != nil {
				return err
			}
			if u := c.String("base-url"); u != "" {
				cfg.API.BaseURL = u
			}

			logger, err := newLogger(cfg, stderr)
			if err != nil {
				return err
			}

			opts := []di.Option{di.WithLogger(logger)}
			if cfg.Metrics {
				rt.registry = prometheus.NewRegistry()
				opts = append(opts, di.WithRegisterer(rt.registry))
			}

			container, err := di.NewContainer(cfg, opts...)
			if err != nil {
				return err
			}

			rt.container = container
			rt.logger = logger
			rt.json = c.Bool("json")
			return nil
		},
		After: func(c *cli.Context) error {
			if rt.registry == nil {
				return nil
			}
			return logMetrics(rt.logger, rt.registry)
		},
		Commands: []*cli.Command{
			browseCommand(rt),
			bookCommand(rt),
			reviewsCommand(rt),
			favoritesCommand(rt),
			myReviewsCommand(rt),
			favoriteCommand(rt),
			reviewCommand(rt),
		},
	}
}

// newLogger builds the console or JSON logger selected by the configuration.
func newLogger(cfg config.Config, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}

	if cfg.LogFormat == "json" {
		return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
	}
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	return zerolog.New(console).Level(level).With().Timestamp().Logger(), nil
}

func logMetrics(logger zerolog.Logger, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	for _, f := range families {
		for _, m := range f.GetMetric() {
			ev := logger.Info().Str("metric", f.GetName()).Float64("value", m.GetCounter().GetValue())
			for _, l := range m.GetLabel() {
				ev = ev.Str(l.GetName(), l.GetValue())
			}
			ev.Msg("cache metrics")
		}
	}
	return nil
}
