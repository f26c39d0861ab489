// internal/predictor/gateway.go
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// CompletionClient is the external text-generation collaborator.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GatewayConfig configures the completion gateway client. Zero values
// fall back to environment variables and defaults.
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GatewayClient talks to an OpenRouter-style completion gateway over
// JSON-RPC.
type GatewayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("GLUCOSE_GATEWAY_URL")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GLUCOSE_GATEWAY_API_KEY")
	}

	model := cfg.Model
	if model == "" {
		model = os.Getenv("GLUCOSE_GATEWAY_MODEL")
	}
	if model == "" {
		model = "anthropic/claude-3.5-sonnet"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &GatewayClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
	}
}

// Enabled reports whether a gateway endpoint is configured at all.
func (g *GatewayClient) Enabled() bool {
	return g.baseURL != ""
}

func (g *GatewayClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.baseURL == "" {
		return "", fmt.Errorf("completion gateway not configured")
	}

	completionRequest := map[string]interface{}{
		"model":         g.model,
		"system_prompt": systemPrompt,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": userPrompt,
			},
		},
		"max_tokens":  2000,
		"temperature": 0.3,
	}

	requestData := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      "create_completion",
			"arguments": completionRequest,
		},
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/openrouter-gateway", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", fmt.Errorf("request failed with status %d and couldn't read body: %v", resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var rpcResponse map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResponse); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	text, ok := extractGatewayText(rpcResponse)
	if !ok {
		return "", fmt.Errorf("unexpected response format")
	}

	// The gateway wraps the model output as {"content": "..."}; fall
	// back to the raw text when it doesn't.
	var completion struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(text), &completion); err == nil && completion.Content != "" {
		return completion.Content, nil
	}
	return text, nil
}

func extractGatewayText(rpcResponse map[string]interface{}) (string, bool) {
	result, ok := rpcResponse["result"].(map[string]interface{})
	if !ok {
		return "", false
	}
	content, ok := result["content"].([]interface{})
	if !ok || len(content) == 0 {
		return "", false
	}
	textContent, ok := content[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	text, ok := textContent["text"].(string)
	return text, ok
}
