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

// AnthropicClient implements Client for the direct Anthropic API.
type AnthropicClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(opts Options) *AnthropicClient {
	opts.applyDefaults(defaultAnthropicModel)
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicClient{
		apiKey:      opts.APIKey,
		baseURL:     opts.BaseURL,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
}

// Name returns the provider identifier.
func (c *AnthropicClient) Name() string { return ProviderAnthropic }

// Model returns the configured model.
func (c *AnthropicClient) Model() string { return c.model }

// Complete sends a prompt and returns the completion.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, *types.Usage, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, *types.Usage, error) {
	// Auto-apply timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.ProviderDebug("[Anthropic] CompleteWithSystem: model=%s system_len=%d user_len=%d",
		c.model, len(systemPrompt), len(userPrompt))

	if c.apiKey == "" {
		return "", nil, &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model,
			Err: fmt.Errorf("API key not configured")}
	}

	c.throttle()

	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.temperature,
	}

	// Retry loop for rate limits and transient errors
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			case <-ctx.Done():
				return "", nil, &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model, Err: ctx.Err()}
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return "", nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model, Err: ctx.Err()}
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

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			logging.ProviderError("[Anthropic] API returned status %d", resp.StatusCode)
			return "", nil, &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model,
				Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))}
		}

		var apiResp anthropicResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return "", nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if apiResp.Error != nil {
			return "", nil, &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model,
				Err: fmt.Errorf("API error: %s", apiResp.Error.Message)}
		}
		if len(apiResp.Content) == 0 {
			return "", nil, &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model,
				Err: fmt.Errorf("no completion returned")}
		}

		var result strings.Builder
		for _, block := range apiResp.Content {
			if block.Type == "text" {
				result.WriteString(block.Text)
			}
		}

		usage := &types.Usage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		}
		response := strings.TrimSpace(result.String())
		logging.Provider("[Anthropic] completed in %v response_len=%d tokens=%d",
			time.Since(startTime), len(response), usage.TotalTokens)
		return response, usage, nil
	}

	logging.ProviderError("[Anthropic] max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", nil, &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model,
		Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// CompleteWithStreaming sends a prompt with streaming enabled.
func (c *AnthropicClient) CompleteWithStreaming(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	logging.ProviderDebug("[Anthropic] CompleteWithStreaming: model=%s", c.model)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		startTime := time.Now()

		if c.apiKey == "" {
			errorChan <- &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model,
				Err: fmt.Errorf("API key not configured")}
			return
		}

		c.throttle()

		reqBody := anthropicRequest{
			Model:     c.model,
			MaxTokens: c.maxTokens,
			System:    systemPrompt,
			Messages: []anthropicMessage{
				{Role: "user", Content: userPrompt},
			},
			Temperature: c.temperature,
			Stream:      true,
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errorChan <- &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model,
				Err: fmt.Errorf("request failed: %w", err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model,
				Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		scanDone := make(chan struct{})
		scanErrChan := make(chan error, 1)

		go func() {
			defer close(scanDone)
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
					return
				}

				var evt struct {
					Type  string `json:"type"`
					Delta *struct {
						Type string `json:"type"`
						Text string `json:"text,omitempty"`
					} `json:"delta,omitempty"`
					Error *struct {
						Type    string `json:"type"`
						Message string `json:"message"`
					} `json:"error,omitempty"`
				}
				if err := json.Unmarshal([]byte(data), &evt); err != nil {
					continue
				}
				if evt.Error != nil {
					scanErrChan <- fmt.Errorf("API error: %s", evt.Error.Message)
					return
				}
				if evt.Type == "content_block_delta" && evt.Delta != nil && evt.Delta.Text != "" {
					select {
					case contentChan <- evt.Delta.Text:
					case <-ctx.Done():
						return
					}
				}
			}
			if err := scanner.Err(); err != nil {
				scanErrChan <- err
			}
		}()

		select {
		case <-scanDone:
			select {
			case err := <-scanErrChan:
				logging.ProviderError("[Anthropic] stream error after %v: %v", time.Since(startTime), err)
				errorChan <- &types.ProviderCallError{Provider: ProviderAnthropic, Model: c.model,
					Err: fmt.Errorf("stream error: %w", err)}
			default:
				logging.Provider("[Anthropic] streaming completed in %v", time.Since(startTime))
			}
		case <-ctx.Done():
			resp.Body.Close()
			<-scanDone
			logging.ProviderWarn("[Anthropic] streaming cancelled after %v", time.Since(startTime))
			errorChan <- ctx.Err()
		}
	}()

	return contentChan, errorChan
}

// throttle enforces a minimum gap between requests on this client.
func (c *AnthropicClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestGap {
		time.Sleep(minRequestGap - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}
