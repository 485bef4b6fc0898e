// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes
// sandbox session tools. It uses the mark3labs/mcp-go library to handle
// the protocol details and provides create_session, execute_command,
// evaluate_output, stop_session, and list_sessions as the interface for
// learner-facing front ends.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/shellbox/challenge"
	"github.com/isdmx/shellbox/config"
	"github.com/isdmx/shellbox/evaluator"
	"github.com/isdmx/shellbox/progress"
	"github.com/isdmx/shellbox/runtime"
	"github.com/isdmx/shellbox/session"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	sessions   *session.Manager
	evaluator  *evaluator.Evaluator
	challenges *challenge.Registry
	recorder   progress.Recorder
	mcpServer  *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sessions *session.Manager, eval *evaluator.Evaluator, challenges *challenge.Registry, recorder progress.Recorder) (*MCPServer, error) {
	s := &MCPServer{
		config:     cfg,
		logger:     logger,
		sessions:   sessions,
		evaluator:  eval,
		challenges: challenges,
		recorder:   recorder,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("runtime.backend", cfg.Runtime.Backend),
		zap.String("runtime.image", cfg.Runtime.Image),
		zap.Int("runtime.memory_mb", cfg.Runtime.MemoryMB),
		zap.Int("runtime.cpu_quota_percent", cfg.Runtime.CPUQuotaPercent),
		zap.Bool("runtime.network_enabled", cfg.Runtime.NetworkEnabled),
		zap.Int("session.ttl_sec", cfg.Session.TTLSec),
		zap.String("session.reap_schedule", cfg.Session.ReapSchedule),
		zap.Float64("evaluation.similarity_threshold", cfg.Evaluation.SimilarityThreshold),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("shellbox", "A sandbox session orchestrator for shell practice")

	// Register the session tools
	s.registerSessionTools()

	return s, nil
}

func (s *MCPServer) registerSessionTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create (or reuse) a sandbox session for a learner, optionally prepared for a challenge",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"owner_id": map[string]any{
					"type":        "string",
					"description": "Authenticated learner identity",
				},
				"challenge_id": map[string]any{
					"type":        "string",
					"description": "Challenge to prepare the sandbox for (optional)",
				},
			},
			Required: []string{"owner_id"},
		},
	}, s.handleCreateSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "execute_command",
		Description: "Execute a shell command inside a sandbox session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"owner_id": map[string]any{
					"type":        "string",
					"description": "Authenticated learner identity",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Target session",
				},
				"command": map[string]any{
					"type":        "string",
					"description": "Shell command to run",
				},
			},
			Required: []string{"owner_id", "session_id", "command"},
		},
	}, s.handleExecuteCommand)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "evaluate_output",
		Description: "Grade captured command output against the session's challenge and record the attempt",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"owner_id": map[string]any{
					"type":        "string",
					"description": "Authenticated learner identity",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Target session",
				},
				"output": map[string]any{
					"type":        "string",
					"description": "Captured command output to grade",
				},
				"executed_command": map[string]any{
					"type":        "string",
					"description": "The command the learner ran (used by command-mode challenges)",
				},
				"time_seconds": map[string]any{
					"type":        "number",
					"description": "Seconds the learner spent on the attempt",
				},
			},
			Required: []string{"owner_id", "session_id", "output"},
		},
	}, s.handleEvaluateOutput)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "stop_session",
		Description: "Stop a sandbox session and tear down its container",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"owner_id": map[string]any{
					"type":        "string",
					"description": "Authenticated learner identity",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Target session",
				},
			},
			Required: []string{"owner_id", "session_id"},
		},
	}, s.handleStopSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List a learner's sandbox sessions, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"owner_id": map[string]any{
					"type":        "string",
					"description": "Authenticated learner identity",
				},
			},
			Required: []string{"owner_id"},
		},
	}, s.handleListSessions)
}

type sessionPayload struct {
	SessionID    string `json:"session_id"`
	OwnerID      string `json:"owner_id"`
	ChallengeID  string `json:"challenge_id,omitempty"`
	ContainerRef string `json:"container_ref"`
	CreatedAt    string `json:"created_at"`
	ExpiresAt    string `json:"expires_at"`
	IsActive     bool   `json:"is_active"`
}

func toSessionPayload(rec session.Record) sessionPayload {
	return sessionPayload{
		SessionID:    rec.ID,
		OwnerID:      rec.OwnerID,
		ChallengeID:  rec.ChallengeID,
		ContainerRef: rec.ContainerRef,
		CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt:    rec.ExpiresAt.UTC().Format(time.RFC3339),
		IsActive:     rec.IsActive,
	}
}

func (s *MCPServer) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := request.RequireString("owner_id")
	if err != nil {
		return validationError("owner_id parameter is required"), nil
	}

	challengeID := request.GetString("challenge_id", "")

	s.logger.Info("session requested",
		zap.String("owner_id", ownerID),
		zap.String("challenge_id", challengeID))

	rec, err := s.sessions.GetOrCreate(ctx, ownerID, challengeID)
	if err != nil {
		s.logger.Error("session creation failed",
			zap.String("owner_id", ownerID),
			zap.String("challenge_id", challengeID),
			zap.Error(err))
		return s.toolError(err), nil
	}

	return jsonResult(toSessionPayload(rec))
}

func (s *MCPServer) handleExecuteCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := request.RequireString("owner_id")
	if err != nil {
		return validationError("owner_id parameter is required"), nil
	}
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return validationError("session_id parameter is required"), nil
	}
	command, err := request.RequireString("command")
	if err != nil {
		return validationError("command parameter is required"), nil
	}

	if strings.TrimSpace(command) == "" {
		return validationError("command must not be empty"), nil
	}
	if len(command) > s.config.Session.MaxCommandLen {
		return validationError(fmt.Sprintf("command exceeds maximum length of %d", s.config.Session.MaxCommandLen)), nil
	}

	result, err := s.sessions.Execute(ctx, sessionID, ownerID, command)
	if err != nil {
		s.logger.Warn("command execution failed",
			zap.String("session_id", sessionID),
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return s.toolError(err), nil
	}

	s.logger.Info("command executed",
		zap.String("session_id", sessionID),
		zap.String("owner_id", ownerID),
		zap.Int("exit_code", result.ExitCode),
		zap.Int("output_len", len(result.Output)))

	return jsonResult(map[string]any{
		"output":    result.Output,
		"exit_code": result.ExitCode,
	})
}

func (s *MCPServer) handleEvaluateOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := request.RequireString("owner_id")
	if err != nil {
		return validationError("owner_id parameter is required"), nil
	}
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return validationError("session_id parameter is required"), nil
	}

	output := request.GetString("output", "")
	executedCommand := request.GetString("executed_command", "")
	timeSeconds := request.GetInt("time_seconds", 0)

	rec, err := s.sessions.Get(ctx, sessionID, ownerID)
	if err != nil {
		return s.toolError(err), nil
	}
	if !rec.Usable(time.Now()) {
		return s.toolError(fmt.Errorf("%w: session %s", session.ErrExpiredOrInactive, sessionID)), nil
	}
	if rec.ChallengeID == "" {
		return validationError("no challenge associated with this session"), nil
	}

	spec, err := s.challenges.Get(rec.ChallengeID)
	if err != nil {
		return s.toolError(err), nil
	}

	isCorrect, feedback := s.evaluator.Evaluate(output, executedCommand, spec)

	// The attempt is recorded exactly once per evaluation. A recorder
	// failure never reaches the learner; their grading result is
	// already determined.
	if err := s.recorder.RecordAttempt(ctx, ownerID, rec.ChallengeID, isCorrect, timeSeconds); err != nil {
		s.logger.Error("failed to record attempt",
			zap.String("owner_id", ownerID),
			zap.String("challenge_id", rec.ChallengeID),
			zap.Error(err))
	}

	s.logger.Info("output evaluated",
		zap.String("session_id", sessionID),
		zap.String("owner_id", ownerID),
		zap.String("challenge_id", rec.ChallengeID),
		zap.Bool("is_correct", isCorrect))

	return jsonResult(map[string]any{
		"is_correct":   isCorrect,
		"feedback":     feedback,
		"challenge_id": rec.ChallengeID,
	})
}

func (s *MCPServer) handleStopSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := request.RequireString("owner_id")
	if err != nil {
		return validationError("owner_id parameter is required"), nil
	}
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return validationError("session_id parameter is required"), nil
	}

	if err := s.sessions.Stop(ctx, sessionID, ownerID); err != nil {
		return s.toolError(err), nil
	}

	return jsonResult(map[string]any{"message": "Session stopped"})
}

func (s *MCPServer) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID, err := request.RequireString("owner_id")
	if err != nil {
		return validationError("owner_id parameter is required"), nil
	}

	records, err := s.sessions.ListByOwner(ctx, ownerID)
	if err != nil {
		return s.toolError(err), nil
	}

	payload := make([]sessionPayload, 0, len(records))
	for _, rec := range records {
		payload = append(payload, toSessionPayload(rec))
	}
	return jsonResult(map[string]any{"sessions": payload})
}

// toolError maps the error taxonomy onto tool results with stable
// prefixes so front ends can branch on them
func (s *MCPServer) toolError(err error) *mcp.CallToolResult {
	prefix := "error"
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, challenge.ErrNotFound):
		prefix = "not found"
	case errors.Is(err, session.ErrExpiredOrInactive):
		prefix = "session expired or inactive"
	case errors.Is(err, session.ErrPermissionDenied):
		prefix = "permission denied"
	case errors.Is(err, runtime.ErrUnavailable):
		prefix = "runtime unavailable"
	case errors.Is(err, runtime.ErrContainerNotFound):
		prefix = "not found"
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: fmt.Sprintf("%s: %v", prefix, err),
			},
		},
		IsError: true,
	}
}

func validationError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: "validation error: " + msg,
			},
		},
		IsError: true,
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(b),
			},
		},
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
