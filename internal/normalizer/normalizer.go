// Package normalizer turns analysis output and report text into the stored
// patient record. It is pure and never fails: missing inputs leave fields empty.
package normalizer

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fadilmartias/bioreport-worker/internal/dto"
)

const (
	commonChars     = 10000
	scanChars       = 50000
	maxNameChars    = 80
	maxCodeChars    = 20
	maxObservations = 500
	missingValue    = "—"
	defaultLanguage = "en"
	labelPerson     = "PERSON"
	labelDate       = "DATE"
)

// name, optional ":" or "=", numeric value, optional unit, optional [reference range].
var observationPattern = regexp.MustCompile(
	`(?P<name>[A-Za-z][A-Za-z\s\-]+?)\s*[:=]?\s*(?P<value>\d+\.?\d*)\s*(?P<unit>[a-zA-Z/%]+)?\s*(?:\[?(?P<ref>[^\]\n]+)\]?)?`,
)

func Normalize(analysis *dto.AnalysisResult, text string) dto.NormalizedResult {
	result := dto.NormalizedResult{
		Language:     defaultLanguage,
		Common:       truncateRunes(text, commonChars),
		Observations: extractObservations(truncateRunes(text, scanChars)),
	}
	if analysis == nil {
		return result
	}
	if lang := strings.TrimSpace(analysis.Language); lang != "" {
		result.Language = lang
	}

	var persons []string
	for _, ent := range analysis.Entities {
		span := strings.TrimSpace(ent.Text)
		if span == "" {
			continue
		}
		switch ent.Label {
		case labelPerson:
			persons = append(persons, span)
		case labelDate:
			if result.DOB == "" {
				result.DOB = span
			}
		}
	}

	if len(persons) > 0 {
		words := strings.Fields(persons[0])
		result.FirstName = words[0]
		switch {
		case len(words) > 1:
			result.SecondName = words[len(words)-1]
		case len(persons) > 1:
			result.SecondName = persons[1]
		}
	}
	return result
}

func extractObservations(text string) []dto.Observation {
	observations := []dto.Observation{}
	names := observationPattern.SubexpNames()

	for _, match := range observationPattern.FindAllStringSubmatch(text, -1) {
		if len(observations) >= maxObservations {
			break
		}
		groups := make(map[string]string, len(names))
		for i, name := range names {
			if name != "" {
				groups[name] = match[i]
			}
		}

		name := strings.TrimSpace(groups["name"])
		if name == "" || utf8.RuneCountInString(name) > maxNameChars {
			continue
		}
		value, err := strconv.ParseFloat(groups["value"], 64)
		if err != nil {
			continue
		}

		observations = append(observations, dto.Observation{
			BiomarkerName:  name,
			BiomarkerCode:  initials(name),
			Value:          value,
			Unit:           orMissing(groups["unit"]),
			ReferenceRange: orMissing(groups["ref"]),
		})
	}
	return observations
}

func initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(r)
	}
	return truncateRunes(b.String(), maxCodeChars)
}

func orMissing(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return missingValue
	}
	return s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
