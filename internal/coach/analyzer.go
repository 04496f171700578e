package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"

	"github.com/park285/chess-duet/internal/aimove"
	"github.com/park285/chess-duet/internal/presenter"
	"github.com/park285/chess-duet/pkg/chessdto"
)

var ErrNoModel = errors.New("analysis model not configured")

const defaultAnalysisTimeout = 20 * time.Second

type Analyzer struct {
	model   aimove.TextModel
	timeout time.Duration
}

func NewAnalyzer(model aimove.TextModel) *Analyzer {
	return &Analyzer{model: model, timeout: defaultAnalysisTimeout}
}

// Analyze summarizes the player's strengths and weaknesses from a finished game.
func (a *Analyzer) Analyze(ctx context.Context, history []string) (chessdto.Analysis, error) {
	if a == nil || a.model == nil {
		return chessdto.Analysis{}, ErrNoModel
	}
	if len(history) == 0 {
		return chessdto.Analysis{}, errors.New("empty move history")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.model.Generate(ctx, AnalysisPrompt(presenter.NumberedMoves(history)), aimove.GenerateOptions{Temperature: 0.4, JSON: true})
	if err != nil {
		return chessdto.Analysis{}, err
	}
	var out chessdto.Analysis
	if err := json.Unmarshal([]byte(stripFence(raw)), &out); err != nil {
		return chessdto.Analysis{}, fmt.Errorf("%w: %w", aimove.ErrMalformed, err)
	}
	if strings.TrimSpace(out.OverallAssessment) == "" {
		return chessdto.Analysis{}, fmt.Errorf("%w: missing overallAssessment", aimove.ErrMalformed)
	}
	return out, nil
}

func AnalysisPrompt(numbered string) string {
	return heredoc.Docf(`
		You are an expert chess coach analyzing a player's game to identify strengths and weaknesses.
		Summarize the player's strengths, weaknesses and give an overall assessment of their skill.

		Game (SAN):
		%s

		Respond with JSON only: {"strengths": "...", "weaknesses": "...", "overallAssessment": "..."}
	`, numbered)
}
