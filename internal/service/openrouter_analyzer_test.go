package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestOpenRouter(t *testing.T, handler http.HandlerFunc) *OpenRouterAnalyzer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewOpenRouterAnalyzer(
		config.AnalysisConfig{Provider: config.ProviderOpenRouter, MaxInputChars: 1000, Timeout: 5 * time.Second},
		config.OpenRouterConfig{APIKey: "test-key", BaseURL: srv.URL},
		quietLogger(),
	)
	require.NoError(t, err)
	a.client.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)
	return a
}

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		"usage":   map[string]int{"total_tokens": 42},
	})
}

func TestOpenRouterAnalyze(t *testing.T) {
	var gotAuth, gotModel string
	a := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		gotModel = gjson.GetBytes(raw, "model").String()
		chatReply(w, `{"language":"en","entities":[{"text":"2020-05-01","label":"DATE"}]}`)
	})

	res, err := a.Analyze(context.Background(), "Collected 2020-05-01")
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "openai/gpt-4o-mini", gotModel)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "DATE", res.Entities[0].Label)
	assert.Equal(t, 10, res.Entities[0].Start)
}

func TestOpenRouterRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	a := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		chatReply(w, `{"entities":[]}`)
	})

	_, err := a.Analyze(context.Background(), "report")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestOpenRouterReportsClientErrors(t *testing.T) {
	a := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})

	_, err := a.Analyze(context.Background(), "report")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")
}

func TestOpenRouterEmptyReply(t *testing.T) {
	a := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, "")
	})

	_, err := a.Analyze(context.Background(), "report")
	assert.ErrorContains(t, err, "no response")
}

func TestOpenRouterRejectsEmptyInput(t *testing.T) {
	var called atomic.Bool
	a := newTestOpenRouter(t, func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	})

	_, err := a.Analyze(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.False(t, called.Load())
}

func TestNewOpenRouterAnalyzerRequiresKey(t *testing.T) {
	_, err := NewOpenRouterAnalyzer(config.AnalysisConfig{}, config.OpenRouterConfig{}, quietLogger())
	assert.Error(t, err)
}
