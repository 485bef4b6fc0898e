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
