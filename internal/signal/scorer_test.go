package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ChannelPilot/internal/domain"
)

func TestScoreHiringMessage(t *testing.T) {
	t.Parallel()

	text := "We are hiring Python developers, 3+ years experience, apply now, salary 10 LPA, Bangalore"
	score := Score(text)

	require.True(t, score.IsSignal)
	require.Greater(t, score.Confidence, 0.15)
	require.Greater(t, score.CategoryHits[CategoryJobIndicators], 0)
	require.Equal(t, 1, score.CategoryHits[CategoryRoles])
	require.Equal(t, 1, score.CategoryHits[CategoryTechnologies])
	require.Equal(t, 1, score.CategoryHits[CategoryLocations])
}

func TestScoreCasualMessage(t *testing.T) {
	t.Parallel()

	score := Score("Good morning everyone, nice weather today")

	require.False(t, score.IsSignal)
	require.Less(t, score.Confidence, 0.05)
}

func TestScoreEmptyText(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "\n\t"} {
		score := Score(text)
		require.False(t, score.IsSignal)
		require.Zero(t, score.Confidence)
		require.Empty(t, score.CategoryHits)
	}
}

func TestScoreIndicatorClause(t *testing.T) {
	t.Parallel()

	// Modest overall relevance plus an explicit hiring cue qualifies even
	// below the high-confidence threshold.
	score := Score("hiring python developer in bangalore, apply with resume")

	require.True(t, score.IsSignal)
	require.Greater(t, score.Confidence, 0.10)
	require.LessOrEqual(t, score.Confidence, 0.15)
	require.Greater(t, score.CategoryHits[CategoryJobIndicators], 0)
}

func TestScoreTechnologiesAloneDoNotQualify(t *testing.T) {
	t.Parallel()

	score := Score("python java react node docker")

	require.False(t, score.IsSignal)
	require.Zero(t, score.CategoryHits[CategoryJobIndicators])
}

func TestScoreDeterminism(t *testing.T) {
	t.Parallel()

	text := "Senior backend engineer opening, remote, apply today"
	first := Score(text)
	second := Score(text)

	require.Equal(t, first, second)
}

func TestScoreConfidenceBounds(t *testing.T) {
	t.Parallel()

	// A message hitting many keywords still stays within [0,1].
	text := "hiring job vacancy position opening opportunity salary apply resume interview " +
		"developer engineer programmer architect analyst python java react docker bangalore remote"
	score := Score(text)

	require.GreaterOrEqual(t, score.Confidence, 0.0)
	require.LessOrEqual(t, score.Confidence, 1.0)
	require.True(t, score.IsSignal)
}

func TestKeywordClassifierTagsMessageID(t *testing.T) {
	t.Parallel()

	msg := domain.RawMessage{ID: "chan/42", Text: "We are hiring backend developers, apply now"}
	score, err := KeywordClassifier{}.Classify(context.Background(), msg)

	require.NoError(t, err)
	require.Equal(t, "chan/42", score.MessageID)
	require.True(t, score.IsSignal)
}
