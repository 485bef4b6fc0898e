// Package main is the entry point for the Shellbox MCP server.
//
// The Shellbox server implements a Model Context Protocol (MCP) server that
// leases isolated practice containers to learners, executes their shell
// commands inside them, and grades captured output against a challenge
// catalog. The server supports both stdio and HTTP transports, persists
// sessions and attempt history in SQLite, and reaps expired sessions on a
// cron schedule.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main

import (
	"context"
	"database/sql"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/shellbox/challenge"
	"github.com/isdmx/shellbox/config"
	"github.com/isdmx/shellbox/evaluator"
	"github.com/isdmx/shellbox/logger"
	"github.com/isdmx/shellbox/mcpserver"
	"github.com/isdmx/shellbox/progress"
	"github.com/isdmx/shellbox/runtime"
	"github.com/isdmx/shellbox/session"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Container runtime based on config
			runtime.New,

			// SQLite database shared by the session and progress stores
			func(cfg *config.Config) (*sql.DB, error) {
				return session.Open(cfg.Session.StorePath)
			},

			func(db *sql.DB) (*session.Store, error) {
				return session.NewStore(context.Background(), db)
			},

			// Challenge catalog
			func(log *zap.Logger, cfg *config.Config) (*challenge.Registry, error) {
				return challenge.LoadRegistry(log, cfg.Challenges.Path)
			},

			func(cfg *config.Config) *evaluator.Evaluator {
				return evaluator.New(cfg.Evaluation.SimilarityThreshold)
			},

			func(db *sql.DB) (progress.Recorder, error) {
				return progress.NewStore(context.Background(), db)
			},

			func(log *zap.Logger, store *session.Store, rt runtime.Runtime, challenges *challenge.Registry, cfg *config.Config) *session.Manager {
				return session.NewManager(log, store, rt, challenges, cfg)
			},

			// MCP Server
			mcpserver.New,
		),

		// Close the database when the application stops
		fx.Invoke(
			func(lc fx.Lifecycle, db *sql.DB) {
				lc.Append(fx.Hook{
					OnStop: func(_ context.Context) error {
						return db.Close()
					},
				})
			},
		),

		// Warn early when the container engine is unreachable. Sessions
		// cannot be created until it comes back, but the server still
		// starts and serves errors.
		fx.Invoke(
			func(log *zap.Logger, rt runtime.Runtime) {
				if err := rt.Ping(context.Background()); err != nil {
					log.Warn("container engine is not reachable", zap.Error(err))
				}
			},
		),

		// Reap expired sessions on the configured schedule
		fx.Invoke(
			func(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, manager *session.Manager) error {
				c := cron.New()
				_, err := c.AddFunc(cfg.Session.ReapSchedule, func() {
					reaped, err := manager.ReapExpired(context.Background())
					if err != nil {
						log.Error("session reap failed", zap.Error(err))
						return
					}
					if reaped > 0 {
						log.Info("reaped expired sessions", zap.Int("count", reaped))
					}
				})
				if err != nil {
					return err
				}

				lc.Append(fx.Hook{
					OnStart: func(_ context.Context) error {
						c.Start()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						select {
						case <-c.Stop().Done():
						case <-ctx.Done():
						}
						return nil
					},
				})
				return nil
			},
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
