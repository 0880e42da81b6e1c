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

// GeminiClient implements Client for the Gemini REST API.
type GeminiClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(opts Options) *GeminiClient {
	opts.applyDefaults(defaultGeminiModel)
	if opts.BaseURL == "" {
		opts.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	return &GeminiClient{
		apiKey:      opts.APIKey,
		baseURL:     opts.BaseURL,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
}

// Name returns the provider identifier.
func (c *GeminiClient) Name() string { return ProviderGemini }

// Model returns the configured model.
func (c *GeminiClient) Model() string { return c.model }

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, *types.Usage, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, *types.Usage, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.ProviderDebug("[Gemini] CompleteWithSystem: model=%s system_len=%d user_len=%d",
		c.model, len(systemPrompt), len(userPrompt))

	if c.apiKey == "" {
		return "", nil, &types.ProviderCallError{Provider: ProviderGemini, Model: c.model,
			Err: fmt.Errorf("API key not configured")}
	}

	c.throttle()

	reqBody := c.buildRequest(systemPrompt, userPrompt)

	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			case <-ctx.Done():
				return "", nil, &types.ProviderCallError{Provider: ProviderGemini, Model: c.model, Err: ctx.Err()}
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, &types.ProviderCallError{Provider: ProviderGemini, Model: c.model, Err: ctx.Err()}
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
			logging.ProviderError("[Gemini] API returned status %d", resp.StatusCode)
			return "", nil, &types.ProviderCallError{Provider: ProviderGemini, Model: c.model,
				Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))}
		}

		var apiResp geminiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return "", nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if apiResp.Error != nil {
			return "", nil, &types.ProviderCallError{Provider: ProviderGemini, Model: c.model,
				Err: fmt.Errorf("API error: %s", apiResp.Error.Message)}
		}
		if len(apiResp.Candidates) == 0 {
			return "", nil, &types.ProviderCallError{Provider: ProviderGemini, Model: c.model,
				Err: fmt.Errorf("no completion returned")}
		}

		var result strings.Builder
		for _, part := range apiResp.Candidates[0].Content.Parts {
			result.WriteString(part.Text)
		}

		usage := &types.Usage{
			PromptTokens:     apiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: apiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      apiResp.UsageMetadata.TotalTokenCount,
		}
		response := strings.TrimSpace(result.String())
		logging.Provider("[Gemini] completed in %v response_len=%d tokens=%d",
			time.Since(startTime), len(response), usage.TotalTokens)
		return response, usage, nil
	}

	logging.ProviderError("[Gemini] max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", nil, &types.ProviderCallError{Provider: ProviderGemini, Model: c.model,
		Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// CompleteWithStreaming sends a prompt with SSE streaming enabled.
func (c *GeminiClient) CompleteWithStreaming(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error) {
	contentChan := make(chan string, 100)
	errorChan := make(chan error, 1)

	logging.ProviderDebug("[Gemini] CompleteWithStreaming: model=%s", c.model)

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
			errorChan <- &types.ProviderCallError{Provider: ProviderGemini, Model: c.model,
				Err: fmt.Errorf("API key not configured")}
			return
		}

		c.throttle()

		jsonData, err := json.Marshal(c.buildRequest(systemPrompt, userPrompt))
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errorChan <- &types.ProviderCallError{Provider: ProviderGemini, Model: c.model,
				Err: fmt.Errorf("request failed: %w", err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errorChan <- &types.ProviderCallError{Provider: ProviderGemini, Model: c.model,
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
				if data == "" || data == "[DONE]" {
					continue
				}

				var chunk geminiResponse
				if err := json.Unmarshal([]byte(data), &chunk); err != nil {
					continue
				}
				if chunk.Error != nil {
					scanErrChan <- fmt.Errorf("API error: %s", chunk.Error.Message)
					return
				}
				for _, cand := range chunk.Candidates {
					for _, part := range cand.Content.Parts {
						if part.Text == "" {
							continue
						}
						select {
						case contentChan <- part.Text:
						case <-ctx.Done():
							return
						}
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
				logging.ProviderError("[Gemini] stream error after %v: %v", time.Since(startTime), err)
				errorChan <- &types.ProviderCallError{Provider: ProviderGemini, Model: c.model,
					Err: fmt.Errorf("stream error: %w", err)}
			default:
				logging.Provider("[Gemini] streaming completed in %v", time.Since(startTime))
			}
		case <-ctx.Done():
			resp.Body.Close()
			<-scanDone
			logging.ProviderWarn("[Gemini] streaming cancelled after %v", time.Since(startTime))
			errorChan <- ctx.Err()
		}
	}()

	return contentChan, errorChan
}

func (c *GeminiClient) buildRequest(systemPrompt, userPrompt string) geminiRequest {
	req := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: userPrompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxTokens,
		},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	return req
}

func (c *GeminiClient) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestGap {
		time.Sleep(minRequestGap - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}
