package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Config struct {
	APIKey    string
	Model     string
	Providers []string
	// Endpoint overrides the OpenRouter chat completions URL.
	Endpoint string
}

var (
	mu     sync.RWMutex
	config *Config
)

func Init(cfg *Config) {
	mu.Lock()
	config = cfg
	mu.Unlock()
}

func current() (*Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return nil, errors.New("LLM client not initialized")
	}
	if config.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if config.Model == "" {
		return nil, errors.New("model is required")
	}
	return config, nil
}

// OpenRouter API structures
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ProviderPreferences struct {
	Order          []string `json:"order,omitempty"`
	Quantizations  []string `json:"quantizations,omitempty"`
	AllowFallbacks *bool    `json:"allow_fallbacks,omitempty"`
}

type ChatRequest struct {
	Model       string               `json:"model"`
	Messages    []Message            `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Provider    *ProviderPreferences `json:"provider,omitempty"`
}

type ChatResponse struct {
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Message Message `json:"message"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"` // Can be string or number
}

const (
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	maxRetries    = 3
	initialDelay  = 1 * time.Second
	systemPrompt  = "You rewrite text for the user. Apply the instruction to the text and return ONLY the resulting text:\n" +
		"- No explanations\n" +
		"- No quotes around the result\n" +
		"- No markdown\n" +
		"- Preserve line breaks unless the instruction says otherwise."
)

// getProviderPreferences returns provider preferences based on config
func getProviderPreferences(cfg *Config) *ProviderPreferences {
	if len(cfg.Providers) == 0 {
		// No providers specified, use default OpenRouter routing
		return nil
	}
	allowFallbacks := false
	return &ProviderPreferences{
		Order:          cfg.Providers,
		AllowFallbacks: &allowFallbacks,
	}
}

// Rewrite applies instruction to text and returns the model's answer.
func Rewrite(ctx context.Context, instruction, text string) (string, error) {
	cfg, err := current()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty text")
	}

	request := ChatRequest{
		Model: cfg.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Instruction: %s\n\nText:\n%s", instruction, text)},
		},
		Temperature: 0.2,
		MaxTokens:   2000,
		Provider:    getProviderPreferences(cfg),
	}

	// Retry logic with backoff
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(initialDelay) * (1.5 * float64(attempt)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		response, err := makeAPIRequest(ctx, cfg, request)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", err
			}
			slog.Warn("LLM request failed", "attempt", attempt+1, "err", err)
			continue
		}
		if len(response.Choices) == 0 {
			lastErr = fmt.Errorf("no choices in API response")
			continue
		}

		out := cleanResult(response.Choices[0].Message.Content)
		if out == "" {
			return "", fmt.Errorf("model returned no text")
		}
		return out, nil
	}
	return "", fmt.Errorf("failed after %d attempts: %v", maxRetries, lastErr)
}

// Ping checks the configuration and that the endpoint answers a tiny request.
func Ping(ctx context.Context) error {
	cfg, err := current()
	if err != nil {
		return err
	}
	request := ChatRequest{
		Model:     cfg.Model,
		Messages:  []Message{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
		Provider:  getProviderPreferences(cfg),
	}
	_, err = makeAPIRequest(ctx, cfg, request)
	return err
}

func makeAPIRequest(ctx context.Context, cfg *Config, request ChatRequest) (*ChatResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	url := cfg.Endpoint
	if url == "" {
		url = openRouterURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey))
	req.Header.Set("X-Title", "Instant Translator")

	client := &http.Client{Timeout: 45 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %v", resp.StatusCode, err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s (type: %s, code: %v)", response.Error.Message, response.Error.Type, response.Error.Code)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	return &response, nil
}

// cleanResult strips wrapping quotes and code fences some models add anyway.
func cleanResult(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") && strings.HasSuffix(text, "```") && len(text) >= 6 {
		text = strings.TrimSpace(text[3 : len(text)-3])
	}
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}
	return text
}
