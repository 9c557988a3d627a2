package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fadilmartias/bioreport-worker/internal/dto"
	"github.com/tidwall/gjson"
)

var ErrEmptyInput = errors.New("empty text")

const defaultLanguage = "en"

const analysisPrompt = `You are a named-entity recognizer for medical laboratory reports.
Find every person name (label PERSON), date (label DATE), organization (label ORG),
location (label GPE) and quantity (label QUANTITY) in the report below and detect its language.

Return your answer STRICTLY in JSON format with this schema:
{
  "language": "<ISO 639-1 code>",
  "entities": [
    {"text": "<exact text as it appears in the report>", "label": "<PERSON|DATE|ORG|GPE|QUANTITY>"}
  ]
}

Report:
%s
`

// prepareInput rejects blank text and caps it at maxChars runes.
func prepareInput(text string, maxChars int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars])
	}
	return text, nil
}

func buildPrompt(text string) string {
	return fmt.Sprintf(analysisPrompt, text)
}

// parseAnalysis reads the model's JSON reply. Entity offsets are located in
// text rather than trusted from the model.
func parseAnalysis(content, text string) (*dto.AnalysisResult, error) {
	content = stripCodeFence(content)
	if !gjson.Valid(content) {
		return nil, fmt.Errorf("analysis response is not valid JSON")
	}

	result := &dto.AnalysisResult{
		Entities:   []dto.Entity{},
		Language:   strings.ToLower(strings.TrimSpace(gjson.Get(content, "language").String())),
		TextLength: utf8.RuneCountInString(text),
	}
	if result.Language == "" {
		result.Language = defaultLanguage
	}

	gjson.Get(content, "entities").ForEach(func(_, value gjson.Result) bool {
		span := strings.TrimSpace(value.Get("text").String())
		label := strings.ToUpper(strings.TrimSpace(value.Get("label").String()))
		if span == "" || label == "" {
			return true
		}
		start, end := locate(text, span)
		result.Entities = append(result.Entities, dto.Entity{
			Text:  span,
			Label: label,
			Start: start,
			End:   end,
		})
		return true
	})
	return result, nil
}

func locate(text, span string) (int, int) {
	idx := strings.Index(text, span)
	if idx < 0 {
		return -1, -1
	}
	start := utf8.RuneCountInString(text[:idx])
	return start, start + utf8.RuneCountInString(span)
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
