package coach

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-duet/internal/aimove"
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/pkg/chessdto"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, prompt string, opts aimove.GenerateOptions) (string, error) {
	args := m.Called(ctx, prompt, opts)
	return args.String(0), args.Error(1)
}

func TestTutorUsesCatalogWithoutModel(t *testing.T) {
	tutor := NewTutor(rules.NewStandard(), nil, nil, nil)

	fb := tutor.Feedback(context.Background(), chessdto.StandardStart, "e2", "e4", "")
	assert.True(t, fb.IsLegalMove)
	assert.Contains(t, fb.Feedback, "e2e4 is a legal move")

	fb = tutor.Feedback(context.Background(), chessdto.StandardStart, "e2", "e5", "")
	assert.False(t, fb.IsLegalMove)
	assert.Contains(t, fb.Feedback, "not legal")

	fb = tutor.Feedback(context.Background(), chessdto.StandardStart, "e7", "e5", "")
	assert.False(t, fb.IsLegalMove)
	assert.Contains(t, fb.Feedback, "side that is not to move")

	fb = tutor.Feedback(context.Background(), "4k3/8/8/8/8/8/4Q3/4K3 w - - 0 1", "e2", "e8", "")
	assert.False(t, fb.IsLegalMove)
	assert.Contains(t, fb.Feedback, "capture the king")
}

func TestTutorPrefersModelText(t *testing.T) {
	model := new(mockModel)
	model.On("Generate", mock.Anything, mock.Anything, aimove.GenerateOptions{Temperature: 0.3, JSON: true}).
		Return("```json\n{\"isLegalMove\": true, \"feedback\": \"Good central control.\"}\n```", nil).Once()

	fb := NewTutor(rules.NewStandard(), model, nil, nil).Feedback(context.Background(), chessdto.StandardStart, "e2", "e4", "")
	assert.True(t, fb.IsLegalMove)
	assert.Equal(t, "Good central control.", fb.Feedback)
	model.AssertExpectations(t)
}

func TestTutorOracleIsAuthoritative(t *testing.T) {
	model := new(mockModel)
	model.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"isLegalMove": true, "feedback": "Nice move!"}`, nil)

	fb := NewTutor(rules.NewStandard(), model, nil, nil).Feedback(context.Background(), chessdto.StandardStart, "e2", "e5", "")
	assert.False(t, fb.IsLegalMove)
	assert.NotEqual(t, "Nice move!", fb.Feedback)
}

func TestTutorModelFailureFallsBack(t *testing.T) {
	model := new(mockModel)
	model.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", aimove.ErrRateLimited)

	fb := NewTutor(rules.NewStandard(), model, nil, nil).Feedback(context.Background(), chessdto.StandardStart, "g1", "f3", "")
	assert.True(t, fb.IsLegalMove)
	assert.Contains(t, fb.Feedback, "g1f3")
}

func TestAnalyzer(t *testing.T) {
	_, err := NewAnalyzer(nil).Analyze(context.Background(), []string{"e4"})
	assert.ErrorIs(t, err, ErrNoModel)

	model := new(mockModel)
	model.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "1. f3 e5 2. g4 Qh4#")
	}), mock.Anything).Return(`{"strengths":"Quick","weaknesses":"King safety","overallAssessment":"Beginner"}`, nil).Once()

	got, err := NewAnalyzer(model).Analyze(context.Background(), []string{"f3", "e5", "g4", "Qh4#"})
	require.NoError(t, err)
	assert.Equal(t, chessdto.Analysis{Strengths: "Quick", Weaknesses: "King safety", OverallAssessment: "Beginner"}, got)

	bad := new(mockModel)
	bad.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("not json", nil)
	_, err = NewAnalyzer(bad).Analyze(context.Background(), []string{"e4"})
	assert.True(t, errors.Is(err, aimove.ErrMalformed))
}
