// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/attestor"
	"github.com/poiesic/attestor/ai/local"
	"github.com/poiesic/attestor/telemetry"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	var shutdownTracing func(context.Context) error

	return &cli.App{
		Name:  "attestor",
		Usage: "Answer questions with verified, cited evidence",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				Value:   "./attestor_db",
				EnvVars: []string{"ATTESTOR_DB"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML settings file",
				EnvVars: []string{"ATTESTOR_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "scope",
				Aliases: []string{"s"},
				Usage:   "Authorization scope for evidence and runs",
				EnvVars: []string{"ATTESTOR_SCOPE"},
			},
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Use the built-in lexical models instead of an OpenAI-compatible server",
			},
			&cli.BoolFlag{
				Name:  "trace",
				Usage: "Print OpenTelemetry spans to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			if !c.Bool("trace") {
				return nil
			}
			shutdown, err := telemetry.Init(c.Context, telemetry.Config{
				ServiceName: c.App.Name,
				Writer:      c.App.ErrWriter,
			})
			if err != nil {
				return err
			}
			shutdownTracing = shutdown
			return nil
		},
		After: func(c *cli.Context) error {
			if shutdownTracing == nil {
				return nil
			}
			return shutdownTracing(context.Background())
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Reconcile a document; each non-empty line becomes one evidence unit",
				ArgsUsage: "FILE",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "document",
						Usage: "Document identifier (defaults to the file name)",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Wait until new and changed units are embedded",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Answer a question from the evidence in scope",
				ArgsUsage: "QUESTION...",
				Action:    queryCommand,
			},
			{
				Name:   "queue",
				Usage:  "Show the embedding backlog",
				Action: queueCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed every unit in scope with the configured embedding model",
				Action: reembedCommand,
			},
			{
				Name:      "runs",
				Usage:     "Show a recorded query run with its citations",
				ArgsUsage: "RUN_ID",
				Action:    runsCommand,
			},
			{
				Name:   "config",
				Usage:  "Print the effective settings as YAML",
				Action: configCommand,
			},
		},
	}
}

// loadSettings reads --config, falling back to the defaults.
func loadSettings(c *cli.Context) (*attestor.Settings, error) {
	path := c.String("config")
	if path == "" {
		return attestor.DefaultSettings(), nil
	}
	settings, err := attestor.LoadSettings(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

func openEngine(c *cli.Context) (*attestor.Engine, error) {
	settings, err := loadSettings(c)
	if err != nil {
		return nil, err
	}

	opts := []attestor.EngineOption{
		attestor.WithSettings(settings),
		attestor.WithLogger(slog.Default()),
	}
	if c.Bool("offline") {
		opts = append(opts, attestor.WithProvider(local.NewProvider()))
	}

	engine, err := attestor.Open(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return engine, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
