package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/types"
)

func gatewayOpts(url string) Options {
	return Options{BaseURL: url, Model: "test-model", MaxTokens: 64, Timeout: 10 * time.Second}
}

func TestNewGatewayClientRequiresBaseURL(t *testing.T) {
	_, err := NewGatewayClient(Options{})
	require.Error(t, err)
}

func TestGatewayCompleteWithSystem(t *testing.T) {
	var gotReq openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"  hello  "}}],
			"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`)
	}))
	defer srv.Close()

	opts := gatewayOpts(srv.URL)
	opts.APIKey = "secret"
	client, err := NewGatewayClient(opts)
	require.NoError(t, err)

	content, usage, err := client.CompleteWithSystem(context.Background(), "be brief", "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)
	require.NotNil(t, usage)
	assert.Equal(t, 8, usage.TotalTokens)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "be brief", gotReq.Messages[0].Content)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.Equal(t, "test-model", gotReq.Model)
}

func TestGatewayRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"recovered"}}]}`)
	}))
	defer srv.Close()

	client, err := NewGatewayClient(gatewayOpts(srv.URL))
	require.NoError(t, err)

	content, _, err := client.CompleteWithSystem(context.Background(), "", "q")
	require.NoError(t, err)
	assert.Equal(t, "recovered", content)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGatewayClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewGatewayClient(gatewayOpts(srv.URL))
	require.NoError(t, err)

	_, _, err = client.CompleteWithSystem(context.Background(), "", "q")
	var callErr *types.ProviderCallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, ProviderGateway, callErr.Provider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGatewayAPIErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"message":"model not found","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	client, err := NewGatewayClient(gatewayOpts(srv.URL))
	require.NoError(t, err)

	_, _, err = client.CompleteWithSystem(context.Background(), "", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestGatewayCompleteWithStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, chunk := range []string{"str", "eam", "ed"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", chunk)
			fl.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fl.Flush()
	}))
	defer srv.Close()

	client, err := NewGatewayClient(gatewayOpts(srv.URL))
	require.NoError(t, err)

	contentChan, errChan := client.CompleteWithStreaming(context.Background(), "", "q")
	var got string
	for chunk := range contentChan {
		got += chunk
	}
	require.NoError(t, <-errChan)
	assert.Equal(t, "streamed", got)
}

func TestGatewayStreamingHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewGatewayClient(gatewayOpts(srv.URL))
	require.NoError(t, err)

	contentChan, errChan := client.CompleteWithStreaming(context.Background(), "", "q")
	for range contentChan {
	}
	err = <-errChan
	var callErr *types.ProviderCallError
	require.ErrorAs(t, err, &callErr)
}
