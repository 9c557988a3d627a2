package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/config"
	"github.com/fadilmartias/bioreport-worker/internal/dto"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// OpenRouterAnalyzer extracts entities through an OpenAI-compatible
// chat-completions endpoint.
type OpenRouterAnalyzer struct {
	client        *resty.Client
	model         string
	maxInputChars int
	log           logrus.FieldLogger
}

func NewOpenRouterAnalyzer(cfg config.AnalysisConfig, openRouter config.OpenRouterConfig, log logrus.FieldLogger) (*OpenRouterAnalyzer, error) {
	if openRouter.APIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY not set")
	}

	client := resty.New().
		SetBaseURL(openRouter.BaseURL).
		SetAuthToken(openRouter.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return r == nil || r.Request == nil || r.Request.Context().Err() == nil
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	return &OpenRouterAnalyzer{
		client:        client,
		model:         cfg.ModelName(),
		maxInputChars: cfg.MaxInputChars,
		log:           log,
	}, nil
}

func (s *OpenRouterAnalyzer) Analyze(ctx context.Context, text string) (*dto.AnalysisResult, error) {
	input, err := prepareInput(text, s.maxInputChars)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"model": s.model,
			"messages": []map[string]string{
				{"role": "system", "content": "You extract named entities from medical laboratory reports and answer only with JSON."},
				{"role": "user", "content": buildPrompt(input)},
			},
			"response_format": map[string]string{"type": "json_object"},
			"temperature":     0.1,
		}).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("analysis request failed: status %d: %s",
			resp.StatusCode(), gjson.Get(resp.String(), "error.message").String())
	}

	content := gjson.Get(resp.String(), "choices.0.message.content").String()
	if content == "" {
		return nil, fmt.Errorf("no response from analysis model")
	}
	s.log.WithFields(logrus.Fields{
		"model":        s.model,
		"total_tokens": gjson.Get(resp.String(), "usage.total_tokens").Int(),
	}).Debug("analysis_response")

	return parseAnalysis(content, input)
}
