package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"quorum/internal/logging"
	"quorum/internal/types"
)

// GatewayClient implements Client for any OpenAI-compatible endpoint: a
// self-hosted gateway, a local model server, or a relay. The base URL is
// required; the API key is whatever the endpoint expects (may be empty for
// local servers).
type GatewayClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// NewGatewayClient creates a client for an OpenAI-compatible gateway.
func NewGatewayClient(opts Options) (*GatewayClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("gateway requires a base URL")
	}
	opts.applyDefaults(defaultOpenAIModel)
	return &GatewayClient{
		apiKey:      opts.APIKey,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}, nil
}

// Name returns the provider identifier.
func (c *GatewayClient) Name() string { return ProviderGateway }

// Model returns the configured model.
func (c *GatewayClient) Model() string { return c.model }

// Complete sends a prompt and returns the completion.
func (c *GatewayClient) Complete(ctx context.Context, prompt string) (string, *types.Usage, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *GatewayClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, *types.Usage, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.ProviderDebug("[Gateway] CompleteWithSystem: url=%s model=%s", c.baseURL, c.model)

	c.throttle()

	messages := make([]openaiMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: userPrompt})

	reqBody := gatewayRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			case <-ctx.Done():
				return "", nil, &types.ProviderCallError{Provider: ProviderGateway, Model: c.model, Err: ctx.Err()}
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, &types.ProviderCallError{Provider: ProviderGateway, Model: c.model, Err: ctx.Err()}
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("retryable status (%d)", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", nil, &types.ProviderCallError{Provider: ProviderGateway, Model: c.model,
				Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))}
		}

		var apiResp gatewayResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return "", nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if apiResp.Error != nil {
			return "", nil, &types.ProviderCallError{Provider: ProviderGateway, Model: c.model,
				Err: fmt.Errorf("API error: %s", apiResp.Error.Message)}
		}
		if len(apiResp.Choices) == 0 {
			return "", nil, &types.ProviderCallError{Provider: ProviderGateway, Model: c.model,
				Err: fmt.Errorf("no completion returned")}
		}

		usage := &types.Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		}
		response := strings.TrimSpace(apiResp.Choices[0].Message.Content)
		logging.Provider("[Gateway] completed in %v response_len=%d", time.Since(startTime), len(response))
		return response, usage, nil
	}

	return "", nil, &types.ProviderCallError{Provider: ProviderGateway, Model: c.model,
		Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// CompleteWithStreaming sends a prompt with streaming enabled.
func (c *GatewayClient) CompleteWithStreaming(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		startTime := time.Now()
		c.throttle()

		messages := make([]openaiMessage, 0, 2)
		if systemPrompt != "" {
			messages = append(messages, openaiMessage{Role: "system", Content: systemPrompt})
		}
		messages = append(messages, openaiMessage{Role: "user", Content: userPrompt})

		reqBody := gatewayRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			Stream:      true,
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errorChan <- &types.ProviderCallError{Provider: ProviderGateway, Model: c.model,
				Err: fmt.Errorf("request failed: %w", err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- &types.ProviderCallError{Provider: ProviderGateway, Model: c.model,
				Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				break
			}

			var chunk gatewayResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				errorChan <- &types.ProviderCallError{Provider: ProviderGateway, Model: c.model,
					Err: fmt.Errorf("API error: %s", chunk.Error.Message)}
				return
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta != nil && chunk.Choices[0].Delta.Content != "" {
				select {
				case contentChan <- chunk.Choices[0].Delta.Content:
				case <-ctx.Done():
					errorChan <- ctx.Err()
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errorChan <- &types.ProviderCallError{Provider: ProviderGateway, Model: c.model,
				Err: fmt.Errorf("stream error: %w", err)}
			return
		}
		logging.Provider("[Gateway] streaming completed in %v", time.Since(startTime))
	}()

	return contentChan, errorChan
}

func (c *GatewayClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestGap {
		time.Sleep(minRequestGap - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}
