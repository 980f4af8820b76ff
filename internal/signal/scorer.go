// Package signal implements the deterministic job-signal model: a weighted
// keyword scorer for single messages and an evaluator that aggregates scored
// windows into per-channel verdicts.
package signal

import (
	"context"
	"strings"

	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/ports"
)

// Keyword category names, also the keys of SignalScore.CategoryHits.
const (
	CategoryJobIndicators = "job_indicators"
	CategoryRoles         = "roles"
	CategoryTechnologies  = "technologies"
	CategoryLocations     = "locations"
)

// The keyword model is fixed configuration: four categories, each with a
// weight and a keyword set matched as lowercase substrings. Explicit hiring
// cues weigh most, location hints least.
var keywordCategories = []struct {
	name     string
	weight   float64
	keywords []string
}{
	{
		name:   CategoryJobIndicators,
		weight: 3,
		keywords: []string{
			"hiring", "job", "vacancy", "position", "opening", "opportunity",
			"salary", "ctc", "lpa", "experience", "apply", "resume",
			"interview", "recruitment", "we are hiring", "job alert",
		},
	},
	{
		name:   CategoryRoles,
		weight: 2,
		keywords: []string{
			"developer", "engineer", "programmer", "architect", "analyst",
			"designer", "manager", "lead", "intern", "fresher", "fullstack",
			"frontend", "backend", "devops", "tester",
		},
	},
	{
		name:   CategoryTechnologies,
		weight: 1.5,
		keywords: []string{
			"python", "java", "javascript", "react", "angular", "node",
			"django", "sql", "aws", "docker", "kubernetes", "linux",
			"android", "flutter", "machine learning", "data science",
		},
	},
	{
		name:   CategoryLocations,
		weight: 1,
		keywords: []string{
			"bangalore", "mumbai", "delhi", "hyderabad", "pune", "chennai",
			"gurgaon", "noida", "remote", "work from home", "onsite", "hybrid",
		},
	},
}

// maxPossibleScore normalizes confidence to [0,1]; every keyword matching at
// once would score exactly 1.0.
var maxPossibleScore = func() float64 {
	var total float64
	for _, cat := range keywordCategories {
		total += float64(len(cat.keywords)) * cat.weight
	}
	return total
}()

const (
	indicatorThreshold = 0.10
	overallThreshold   = 0.15
)

// Score classifies a message text. Pure: identical input always yields the
// identical result. A message qualifies either through at least one explicit
// hiring cue plus modest overall relevance, or through high overall relevance
// alone. Empty or whitespace-only text scores zero with no categories counted.
func Score(text string) domain.SignalScore {
	if strings.TrimSpace(text) == "" {
		return domain.SignalScore{CategoryHits: map[string]int{}}
	}

	lower := strings.ToLower(text)
	hits := make(map[string]int, len(keywordCategories))

	var weighted float64
	for _, cat := range keywordCategories {
		count := 0
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		hits[cat.name] = count
		weighted += float64(count) * cat.weight
	}

	confidence := weighted / maxPossibleScore
	if confidence > 1.0 {
		confidence = 1.0
	}

	isSignal := (confidence > indicatorThreshold && hits[CategoryJobIndicators] > 0) ||
		confidence > overallThreshold

	return domain.SignalScore{
		IsSignal:     isSignal,
		Confidence:   confidence,
		CategoryHits: hits,
	}
}

// KeywordClassifier adapts the pure scorer to the Classifier port.
type KeywordClassifier struct{}

var _ ports.Classifier = KeywordClassifier{}

// Classify scores the message text and tags the result with the message id.
func (KeywordClassifier) Classify(_ context.Context, msg domain.RawMessage) (domain.SignalScore, error) {
	score := Score(msg.Text)
	score.MessageID = msg.ID
	return score, nil
}
