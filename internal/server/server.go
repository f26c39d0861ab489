// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"

	"glucose-engine/internal/engine"
	"glucose-engine/internal/nutrition"
	"glucose-engine/internal/predictor"
	"glucose-engine/internal/storage"
)

type Config struct {
	Host   string
	Port   int
	DBPath string

	// External model gateway; prediction works without it.
	GatewayURL    string
	GatewayAPIKey string
	GatewayModel  string

	BiasWindow    int
	RetryAttempts int
	RetryBackoff  time.Duration
}

type GlucoseServer struct {
	server     *server.Server
	httpServer *http.Server
	storage    *storage.SQLiteStorage
	engine     *engine.Engine
	nutrition  *nutrition.Calculator
	logger     *slog.Logger
	config     *Config
}

func NewGlucoseServer(cfg *Config) (*GlucoseServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	stor, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	gateway := predictor.NewGatewayClient(predictor.GatewayConfig{
		BaseURL: cfg.GatewayURL,
		APIKey:  cfg.GatewayAPIKey,
		Model:   cfg.GatewayModel,
	})

	var client predictor.CompletionClient
	if gateway.Enabled() {
		client = gateway
	}

	eng := engine.New(engine.Config{
		BiasWindow:      cfg.BiasWindow,
		ExternalEnabled: gateway.Enabled(),
		RetryAttempts:   cfg.RetryAttempts,
		RetryBackoff:    cfg.RetryBackoff,
		Logger:          logger,
	}, stor, client)

	glucoseServer := &GlucoseServer{
		storage:   stor,
		engine:    eng,
		nutrition: nutrition.NewCalculator(nil, logger),
		logger:    logger,
		config:    cfg,
	}

	mux := http.NewServeMux()

	mcpServer, err := server.NewServer(
		nil, // transport is handled by the HTTP mux below
		server.WithServerInfo(protocol.Implementation{
			Name:    "glucose-engine",
			Version: "1.0.0",
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP server: %w", err)
	}

	glucoseServer.server = mcpServer

	if err := glucoseServer.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	mux.HandleFunc("/", glucoseServer.handleHTTP)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	glucoseServer.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return glucoseServer, nil
}

func (s *GlucoseServer) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.toolHandlers()[request.Name]
	if !ok {
		http.Error(w, fmt.Sprintf("Unknown tool: %s", request.Name), http.StatusNotFound)
		return
	}

	result, err := handler(r.Context(), &request)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "tool call failed",
			"tool", request.Name, "error", err)
		http.Error(w, err.Error(), toolErrorStatus(err))
		return
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *GlucoseServer) Start(ctx context.Context) error {
	s.logger.Info("starting glucose engine server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *GlucoseServer) Stop() error {
	if s.storage != nil {
		s.storage.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(context.Background())
	}
	return nil
}

func (s *GlucoseServer) createJSONResponse(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}
