package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

type fakeGenerator struct {
	errs  []error
	reply string
	calls int
	model string
}

func (f *fakeGenerator) generate(_ context.Context, model string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return textResponse(f.reply), nil
}

func newTestGemini(gen *fakeGenerator) *GeminiAnalyzer {
	a := newGeminiAnalyzer(gen.generate, config.AnalysisConfig{
		Provider:      config.ProviderGemini,
		MaxInputChars: 1000,
		Timeout:       time.Second,
	}, quietLogger())
	a.BaseDelay = time.Millisecond
	a.MaxDelay = 5 * time.Millisecond
	return a
}

func TestGeminiAnalyzeParsesReply(t *testing.T) {
	gen := &fakeGenerator{reply: `{"language":"en","entities":[{"text":"John Smith","label":"PERSON"}]}`}
	a := newTestGemini(gen)

	res, err := a.Analyze(context.Background(), "Name: John Smith")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", gen.model)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, 6, res.Entities[0].Start)
}

func TestGeminiAnalyzeRejectsEmptyInput(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := newTestGemini(gen).Analyze(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, gen.calls)
}

func TestGeminiRetriesTransientErrors(t *testing.T) {
	gen := &fakeGenerator{
		errs:  []error{&genai.APIError{Code: 503}, errors.New("connection reset by peer")},
		reply: `{"entities":[]}`,
	}
	a := newTestGemini(gen)

	_, err := a.Analyze(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, 3, gen.calls)
	errs, open := a.GetCircuitBreakerStatus()
	assert.Zero(t, errs)
	assert.False(t, open)
}

func TestGeminiStopsOnClientError(t *testing.T) {
	gen := &fakeGenerator{errs: []error{&genai.APIError{Code: 400}}}
	a := newTestGemini(gen)

	_, err := a.Analyze(context.Background(), "report")
	require.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}

func clientErrors(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = &genai.APIError{Code: 401}
	}
	return errs
}

func TestGeminiCircuitBreakerRecoversAfterCooldown(t *testing.T) {
	gen := &fakeGenerator{errs: clientErrors(5), reply: `{}`}
	a := newTestGemini(gen)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }
	a.CircuitBreakerCooldown = time.Minute

	for i := 0; i < 5; i++ {
		_, err := a.Analyze(context.Background(), "report")
		require.Error(t, err)
	}
	_, err := a.Analyze(context.Background(), "report")
	require.ErrorContains(t, err, "circuit breaker open")
	assert.Equal(t, 5, gen.calls)

	clock = clock.Add(30 * time.Second)
	_, err = a.Analyze(context.Background(), "report")
	require.ErrorContains(t, err, "circuit breaker open")
	assert.Equal(t, 5, gen.calls)

	clock = clock.Add(30 * time.Second)
	_, err = a.Analyze(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, 6, gen.calls)

	errs, open := a.GetCircuitBreakerStatus()
	assert.Zero(t, errs)
	assert.False(t, open)
}

func TestGeminiFailedTrialReopensCircuitBreaker(t *testing.T) {
	gen := &fakeGenerator{errs: clientErrors(6), reply: `{}`}
	a := newTestGemini(gen)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }
	a.CircuitBreakerCooldown = time.Minute

	for i := 0; i < 5; i++ {
		_, _ = a.Analyze(context.Background(), "report")
	}

	clock = clock.Add(time.Minute)
	_, err := a.Analyze(context.Background(), "report")
	require.ErrorContains(t, err, "generate content failed")
	assert.Equal(t, 6, gen.calls)

	_, err = a.Analyze(context.Background(), "report")
	require.ErrorContains(t, err, "circuit breaker open")
	assert.Equal(t, 6, gen.calls)

	clock = clock.Add(time.Minute)
	_, err = a.Analyze(context.Background(), "report")
	require.NoError(t, err)
	assert.Equal(t, 7, gen.calls)
}

func TestGeminiBackoffIsCapped(t *testing.T) {
	a := &GeminiAnalyzer{BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, a.calculateBackoff(1))
	assert.Equal(t, 4*time.Second, a.calculateBackoff(3))
	assert.Equal(t, 5*time.Second, a.calculateBackoff(6))
}

func TestGeminiRetryableClassification(t *testing.T) {
	a := &GeminiAnalyzer{}

	assert.True(t, a.isRetryableError(&genai.APIError{Code: 429}))
	assert.False(t, a.isRetryableError(&genai.APIError{Code: 403}))
	assert.False(t, a.isRetryableError(context.Canceled))
	assert.True(t, a.isRetryableError(errors.New("unexpected EOF")))
	assert.False(t, a.isRetryableError(errors.New("invalid argument")))
}
