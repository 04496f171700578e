// Package coach produces learning-mode move feedback and post-game analysis.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"go.uber.org/zap"

	"github.com/park285/chess-duet/internal/aimove"
	"github.com/park285/chess-duet/internal/msgcat"
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/pkg/chessdto"
)

const defaultTutorTimeout = 5 * time.Second

// Tutor judges an attempted move. Legality always comes from the oracle; the
// language model only phrases the explanation.
type Tutor struct {
	oracle  rules.Oracle
	model   aimove.TextModel
	catalog *msgcat.Catalog
	timeout time.Duration
	logger  *zap.Logger
}

// NewTutor builds a tutor. model may be nil, in which case catalog text is used.
func NewTutor(oracle rules.Oracle, model aimove.TextModel, catalog *msgcat.Catalog, logger *zap.Logger) *Tutor {
	if catalog == nil {
		catalog = msgcat.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tutor{oracle: oracle, model: model, catalog: catalog, timeout: defaultTutorTimeout, logger: logger}
}

func (t *Tutor) Feedback(ctx context.Context, position string, from, to rules.Square, promotion string) chessdto.MoveFeedback {
	move := string(from) + string(to) + strings.ToLower(promotion)
	_, err := t.oracle.ApplyMove(position, from, to, promotion)
	legal := err == nil

	key := "tutor.legal"
	switch {
	case legal:
	case errors.Is(err, rules.ErrKingCapture):
		key = "tutor.king_capture"
	case t.wrongSide(position, from):
		key = "tutor.wrong_side"
	default:
		key = "tutor.illegal"
	}
	out := chessdto.MoveFeedback{IsLegalMove: legal, Feedback: t.catalog.Text(key, map[string]any{"Move": move})}
	if t.model == nil {
		return out
	}

	askCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	raw, err := t.model.Generate(askCtx, FeedbackPrompt(position, move, legal), aimove.GenerateOptions{Temperature: 0.3, JSON: true})
	if err != nil {
		t.logger.Debug("tutor_model_error", zap.String("move", move), zap.Error(err))
		return out
	}
	var fb chessdto.MoveFeedback
	if err := json.Unmarshal([]byte(stripFence(raw)), &fb); err != nil || strings.TrimSpace(fb.Feedback) == "" {
		t.logger.Debug("tutor_model_malformed", zap.String("move", move))
		return out
	}
	if fb.IsLegalMove != legal {
		t.logger.Info("tutor_model_disagrees", zap.String("move", move), zap.Bool("oracle_legal", legal))
		return out
	}
	out.Feedback = strings.TrimSpace(fb.Feedback)
	return out
}

// wrongSide reports whether from holds a piece that could move if the other
// side were to move.
func (t *Tutor) wrongSide(position string, from rules.Square) bool {
	fields := strings.Fields(position)
	if len(fields) < 4 {
		return false
	}
	if fields[1] == "w" {
		fields[1] = "b"
	} else {
		fields[1] = "w"
	}
	fields[3] = "-"
	targets, err := t.oracle.LegalMoves(strings.Join(fields, " "), from)
	return err == nil && len(targets) > 0
}

func FeedbackPrompt(fen, move string, legal bool) string {
	return heredoc.Docf(`
		You are a chess tutor giving feedback to a student on their moves.
		The move has already been checked against the rules: isLegalMove is %t.
		If the move is legal, give short encouraging feedback about its idea.
		If it is not legal, explain why, referencing the rules of chess.

		Current board state (FEN): %s
		Student move (UCI): %s

		Respond with JSON only: {"isLegalMove": <bool>, "feedback": "<one or two sentences>"}
	`, legal, strings.TrimSpace(fen), move)
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
