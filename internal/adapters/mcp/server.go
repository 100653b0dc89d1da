// Package mcp exposes session stacks to MCP clients: inspection, undo and
// redo, reset, and transforms through the operation executor.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/session"
	"github.com/aretw0/strata/pkg/stack"
	"github.com/aretw0/strata/pkg/transform"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// HistoryURI names the resource listing every session's history.
const HistoryURI = "strata://history"

// SessionArgs selects the session a tool acts on.
type SessionArgs struct {
	SessionID string `json:"session_id,omitempty"`
}

// TransformArgs are the arguments of apply_transform.
type TransformArgs struct {
	SessionID string         `json:"session_id,omitempty"`
	Op        string         `json:"op"`
	Params    map[string]any `json:"params,omitempty"`
}

// StateResponse is returned by stack_state, undo, redo and reset_stack.
type StateResponse struct {
	SessionID string            `json:"session_id" jsonschema_description:"The session the call acted on"`
	Moved     bool              `json:"moved" jsonschema_description:"Whether the stack changed"`
	State     domain.StackState `json:"state" jsonschema_description:"The stack state after the call"`
}

// TransformResponse is returned by apply_transform.
type TransformResponse struct {
	SessionID string            `json:"session_id"`
	Operation string            `json:"operation"`
	InputID   domain.VersionID  `json:"input_uuid"`
	OutputID  domain.VersionID  `json:"output_uuid"`
	State     domain.StackState `json:"state"`
}

// History is one entry of the history resource.
type History struct {
	SessionID string             `json:"session_id"`
	OriginID  domain.VersionID   `json:"origin_id,omitempty"`
	Pointer   int                `json:"pointer"`
	History   []domain.VersionID `json:"history"`
}

// Server exposes the session registry as an MCP Server.
type Server struct {
	sessions  *session.Manager
	transform *transform.Orchestrator
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, orchestrator *transform.Orchestrator, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		transform: orchestrator,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("strata-mcp", strings.TrimSpace(strata.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func sessionOption() mcp.ToolOption {
	return mcp.WithString("session_id", mcp.Description("Session to act on (defaults to \"default\")"))
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("stack_state",
		mcp.WithDescription("Report whether the session has an image and where it stands in its history."),
		sessionOption(),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleState))

	s.mcpServer.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Move the session back to the previous version."),
		sessionOption(),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleUndo))

	s.mcpServer.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Move the session forward to the next version."),
		sessionOption(),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleRedo))

	s.mcpServer.AddTool(mcp.NewTool("reset_stack",
		mcp.WithDescription("Clear the session's image and history, deleting its stored versions."),
		sessionOption(),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleReset))

	s.mcpServer.AddTool(mcp.NewTool("apply_transform",
		mcp.WithDescription("Run an operation on the active version and push the result."),
		sessionOption(),
		mcp.WithString("op", mcp.Required(), mcp.Description("Operation name, e.g. blur, color_correct, clip, tile")),
		mcp.WithObject("params", mcp.Description("Operation parameters")),
		mcp.WithOutputSchema[TransformResponse](),
	), mcp.NewStructuredToolHandler(s.handleTransform))
}

func (s *Server) stack(ctx context.Context, id string) (*stack.Stack, error) {
	if id == "" {
		id = domain.DefaultSessionID
	}
	return s.sessions.Stack(ctx, id)
}

func (s *Server) handleState(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (StateResponse, error) {
	st, err := s.stack(ctx, args.SessionID)
	if err != nil {
		return StateResponse{}, err
	}
	return StateResponse{SessionID: st.ID(), State: st.State()}, nil
}

func (s *Server) handleUndo(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (StateResponse, error) {
	return s.move(ctx, args.SessionID, (*stack.Stack).Undo)
}

func (s *Server) handleRedo(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (StateResponse, error) {
	return s.move(ctx, args.SessionID, (*stack.Stack).Redo)
}

func (s *Server) move(ctx context.Context, id string, step func(*stack.Stack, context.Context) (bool, error)) (StateResponse, error) {
	st, err := s.stack(ctx, id)
	if err != nil {
		return StateResponse{}, err
	}
	moved, err := step(st, ctx)
	if err != nil {
		return StateResponse{}, err
	}
	return StateResponse{SessionID: st.ID(), Moved: moved, State: st.State()}, nil
}

func (s *Server) handleReset(ctx context.Context, _ mcp.CallToolRequest, args SessionArgs) (StateResponse, error) {
	st, err := s.stack(ctx, args.SessionID)
	if err != nil {
		return StateResponse{}, err
	}
	had := st.State().HasImage
	if err := st.Reset(ctx); err != nil {
		return StateResponse{}, err
	}
	return StateResponse{SessionID: st.ID(), Moved: had, State: st.State()}, nil
}

func (s *Server) handleTransform(ctx context.Context, _ mcp.CallToolRequest, args TransformArgs) (TransformResponse, error) {
	st, err := s.stack(ctx, args.SessionID)
	if err != nil {
		return TransformResponse{}, err
	}
	res, err := s.transform.Apply(ctx, st, args.Op, args.Params)
	if err != nil {
		s.logger.Warn("MCP transform failed", "session_id", st.ID(), "op", args.Op, "err", err)
		return TransformResponse{}, err
	}
	return TransformResponse{
		SessionID: st.ID(),
		Operation: res.Operation,
		InputID:   res.InputID,
		OutputID:  res.OutputID,
		State:     res.State,
	}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(HistoryURI, "Session Histories",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		histories, err := s.histories(ctx)
		if err != nil {
			return nil, err
		}
		jsonBytes, err := json.Marshal(histories)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      HistoryURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func (s *Server) histories(ctx context.Context) ([]History, error) {
	ids, err := s.sessions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]History, 0, len(ids))
	for _, id := range ids {
		st, err := s.sessions.Stack(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", id, err)
		}
		sess := st.Session()
		out = append(out, History{
			SessionID: id,
			OriginID:  sess.OriginID,
			Pointer:   sess.Pointer,
			History:   sess.History,
		})
	}
	return out, nil
}
