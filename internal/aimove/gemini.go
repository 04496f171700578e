package aimove

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/park285/chess-duet/pkg/chessdto"
)

const DefaultGeminiModel = "gemini-flash-latest"

// Gemini serves both move suggestions and free-form prompts.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Close() error {
	if g == nil || g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) SuggestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	difficulty := chessdto.ParseDifficulty(string(req.Difficulty))
	out, err := g.Generate(ctx, MovePrompt(req.Position, difficulty), GenerateOptions{Temperature: moveTemperature(difficulty)})
	if err != nil {
		return MoveResponse{}, err
	}
	return MoveResponse{Move: strings.TrimSpace(out)}, nil
}

// Generate runs one prompt and joins the text parts of the first candidate.
func (g *Gemini) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(opts.Temperature)
	if opts.JSON {
		m.ResponseMIMEType = "application/json"
	}
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGemini(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response from gemini", ErrMalformed)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

func classifyGemini(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return fmt.Errorf("%w: gemini generation error: %w", ErrUnavailable, err)
}

func moveTemperature(d chessdto.Difficulty) float32 {
	switch d {
	case chessdto.DifficultyEasy:
		return 0.9
	case chessdto.DifficultyHard:
		return 0.1
	default:
		return 0.4
	}
}

// MovePrompt asks for a single UCI move for the side to move in fen.
func MovePrompt(fen string, difficulty chessdto.Difficulty) string {
	return heredoc.Docf(`
		You are an expert chess engine.
		Analyze the board state given in FEN and provide the best legal move for the side to move.

		Current FEN: %s
		Difficulty Level: %s

		Difficulty guidelines:
		- easy: make simple, occasionally weak moves. Focus on basic development.
		- medium: play strategically, look for 1-2 move tactical advantages.
		- hard: play at grandmaster level, maximizing long-term strategy and immediate tactics.

		Steps:
		1. The side to move is the character after the first space in the FEN.
		2. Choose a legal move for that side.
		3. Return the move in exact UCI notation (for example e2e4, g1f3, or e7e8q for promotion).

		Respond only with the UCI move. No explanation, no quotes, no extra text.
	`, strings.TrimSpace(fen), difficulty)
}
