// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes
// sandbox session tools. It uses the mark3labs/mcp-go library to handle
// the protocol details and provides create_session, execute_command,
// evaluate_output, stop_session, and list_sessions as the interface for
// learner-facing front ends.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, sessions, eval, challenges, recorder)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
