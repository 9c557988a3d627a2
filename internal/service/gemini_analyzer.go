package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/config"
	"github.com/fadilmartias/bioreport-worker/internal/dto"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiAnalyzer extracts entities with a Gemini model. Transient API errors
// are retried with exponential backoff; repeated failures open a circuit
// breaker. Once CircuitBreakerCooldown has passed, a single trial call is let
// through: success closes the breaker, failure keeps it open for another
// cooldown.
type GeminiAnalyzer struct {
	generate      generateFunc
	model         string
	maxInputChars int
	log           logrus.FieldLogger

	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration

	CircuitBreakerCooldown time.Duration

	mu                sync.Mutex
	consecutiveErrors int
	circuitBreakerMax int
	openedAt          time.Time
	now               func() time.Time
}

func NewGeminiAnalyzer(ctx context.Context, cfg config.AnalysisConfig, gemini config.GeminiConfig, log logrus.FieldLogger) (*GeminiAnalyzer, error) {
	if gemini.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiAnalyzer(client.Models.GenerateContent, cfg, log), nil
}

func newGeminiAnalyzer(generate generateFunc, cfg config.AnalysisConfig, log logrus.FieldLogger) *GeminiAnalyzer {
	return &GeminiAnalyzer{
		generate:          generate,
		model:             cfg.ModelName(),
		maxInputChars:     cfg.MaxInputChars,
		log:               log,
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          90 * time.Second,
		RequestTimeout:    cfg.Timeout,
		circuitBreakerMax: 5,
		now:               time.Now,

		CircuitBreakerCooldown: 90 * time.Second,
	}
}

func (s *GeminiAnalyzer) Analyze(ctx context.Context, text string) (*dto.AnalysisResult, error) {
	input, err := prepareInput(text, s.maxInputChars)
	if err != nil {
		return nil, err
	}

	resp, err := s.generateContent(ctx, buildPrompt(input))
	if err != nil {
		return nil, err
	}
	return parseAnalysis(resp.Text(), input)
}

func (s *GeminiAnalyzer) generateContent(ctx context.Context, prompt string) (*genai.GenerateContentResponse, error) {
	if errs, ok := s.allowRequest(); !ok {
		return nil, fmt.Errorf("circuit breaker open: too many consecutive errors (%d)", errs)
	}

	timeoutCtx := ctx
	if s.RequestTimeout > 0 {
		var cancel context.CancelFunc
		timeoutCtx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
	}

	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.calculateBackoff(attempt)
			s.log.WithFields(logrus.Fields{
				"attempt": attempt,
				"max":     s.MaxRetries,
				"delay":   delay.String(),
			}).Warn("analysis_retry")

			select {
			case <-time.After(delay):
			case <-timeoutCtx.Done():
				return nil, fmt.Errorf("context done during retry: %w", timeoutCtx.Err())
			}
		}

		result, err := s.generate(timeoutCtx, s.model, genai.Text(prompt), genConfig)
		if err == nil {
			if err := validateGenerateResponse(result); err != nil {
				s.recordFailure()
				return nil, fmt.Errorf("invalid response: %w", err)
			}
			s.ResetCircuitBreaker()
			return result, nil
		}

		lastErr = err
		if !s.isRetryableError(err) {
			s.recordFailure()
			return nil, fmt.Errorf("generate content failed: %w", err)
		}
	}

	s.recordFailure()
	return nil, fmt.Errorf("max retries (%d) exceeded for GenerateContent: %w", s.MaxRetries, lastErr)
}

func (s *GeminiAnalyzer) calculateBackoff(attempt int) time.Duration {
	delay := s.BaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > s.MaxDelay {
		delay = s.MaxDelay
	}
	return delay
}

func (s *GeminiAnalyzer) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "temporary failure") ||
		strings.Contains(errMsg, "EOF")
}

func validateGenerateResponse(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return fmt.Errorf("response is nil")
	}
	if len(resp.Candidates) == 0 {
		return fmt.Errorf("no candidates in response")
	}
	if resp.Candidates[0].Content == nil {
		return fmt.Errorf("candidate content is nil")
	}
	if len(resp.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("no parts in content")
	}
	return nil
}

// allowRequest reports whether a call may go out. While the breaker is open
// it admits one trial call per cooldown.
func (s *GeminiAnalyzer) allowRequest() (consecutiveErrors int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consecutiveErrors < s.circuitBreakerMax {
		return s.consecutiveErrors, true
	}
	now := s.now()
	if now.Sub(s.openedAt) < s.CircuitBreakerCooldown {
		return s.consecutiveErrors, false
	}
	s.openedAt = now
	s.log.WithField("consecutive_errors", s.consecutiveErrors).Info("circuit_breaker_trial")
	return s.consecutiveErrors, true
}

func (s *GeminiAnalyzer) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors++
	if s.consecutiveErrors >= s.circuitBreakerMax {
		s.openedAt = s.now()
	}
}

func (s *GeminiAnalyzer) ResetCircuitBreaker() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErrors = 0
}

func (s *GeminiAnalyzer) GetCircuitBreakerStatus() (consecutiveErrors int, isOpen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveErrors, s.consecutiveErrors >= s.circuitBreakerMax
}
