package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-duet/pkg/chessdto"
)

// libMu serializes every use of corentings/chess: its FEN decoder works on
// package-level buffers.
var libMu sync.Mutex

// Exclusive runs fn while holding the lock guarding the chess library. Code
// outside this package that decodes FEN with corentings/chess must use it.
func Exclusive(fn func()) {
	libMu.Lock()
	defer libMu.Unlock()
	fn()
}

// Standard implements Oracle on top of corentings/chess. Check status for bare
// positions comes from the mess probe.
type Standard struct{}

func NewStandard() *Standard { return &Standard{} }

var _ Oracle = (*Standard)(nil)

func (s *Standard) FromNotation(fen string) (string, error) {
	libMu.Lock()
	defer libMu.Unlock()
	game, err := load(fen)
	if err != nil {
		return "", err
	}
	return game.FEN(), nil
}

func (s *Standard) ToNotation(position string) string { return strings.TrimSpace(position) }

func (s *Standard) SideToMove(position string) (chessdto.Side, error) {
	libMu.Lock()
	defer libMu.Unlock()
	game, err := load(position)
	if err != nil {
		return "", err
	}
	return sideOf(game.Position().Turn()), nil
}

func (s *Standard) LegalMoves(position string, from Square) ([]Square, error) {
	libMu.Lock()
	defer libMu.Unlock()
	game, err := load(position)
	if err != nil {
		return nil, err
	}
	src, err := toSquare(from)
	if err != nil {
		return nil, err
	}
	seen := make(map[Square]struct{})
	var out []Square
	moves := game.ValidMoves()
	for i := range moves {
		mv := &moves[i]
		if mv.S1() != src {
			continue
		}
		dst := Square(mv.S2().String())
		if _, ok := seen[dst]; ok {
			continue
		}
		seen[dst] = struct{}{}
		out = append(out, dst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Standard) AllMoves(position string) ([]string, error) {
	libMu.Lock()
	defer libMu.Unlock()
	game, err := load(position)
	if err != nil {
		return nil, err
	}
	moves := game.ValidMoves()
	out := make([]string, 0, len(moves))
	for i := range moves {
		out = append(out, strings.ToLower(moves[i].String()))
	}
	sort.Strings(out)
	return out, nil
}

func (s *Standard) ApplyMove(position string, from, to Square, promotion string) (Applied, error) {
	libMu.Lock()
	defer libMu.Unlock()
	game, err := load(position)
	if err != nil {
		return Applied{}, err
	}
	if game.Outcome() != nchess.NoOutcome {
		return Applied{}, ErrGameOver
	}
	src, err := toSquare(from)
	if err != nil {
		return Applied{}, err
	}
	dst, err := toSquare(to)
	if err != nil {
		return Applied{}, err
	}
	pos := game.Position()
	if pos.Board().Piece(dst).Type() == nchess.King {
		return Applied{}, fmt.Errorf("%w: %s%s", ErrKingCapture, from, to)
	}

	promo, err := promotionType(promotion)
	if err != nil {
		return Applied{}, err
	}
	mv, ok := findMove(game.ValidMoves(), src, dst, promo)
	if !ok && promo == nchess.NoPieceType {
		mv, ok = findMove(game.ValidMoves(), src, dst, nchess.Queen)
	}
	if !ok {
		return Applied{}, fmt.Errorf("%w: %s%s%s", ErrIllegalMove, from, to, promotion)
	}

	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	uci := strings.ToLower(mv.String())
	if err := game.Move(mv, nil); err != nil {
		return Applied{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return Applied{
		Position: game.FEN(),
		SAN:      san,
		UCI:      uci,
		Turn:     sideOf(game.Position().Turn()),
		Check:    strings.HasSuffix(san, "+") || strings.HasSuffix(san, "#"),
	}, nil
}

func (s *Standard) Status(position string) (Status, error) {
	libMu.Lock()
	defer libMu.Unlock()
	game, err := load(position)
	if err != nil {
		return Status{}, err
	}
	return statusOf(game, "")
}

func (s *Standard) Evaluate(initial string, history []string) (Status, error) {
	libMu.Lock()
	defer libMu.Unlock()
	game, err := replay(initial, history)
	if err != nil {
		return Status{}, err
	}
	last := ""
	if len(history) > 0 {
		last = history[len(history)-1]
	}
	return statusOf(game, last)
}

func (s *Standard) Replay(initial string, history []string) (string, error) {
	libMu.Lock()
	defer libMu.Unlock()
	game, err := replay(initial, history)
	if err != nil {
		return "", err
	}
	return game.FEN(), nil
}

func (s *Standard) KingCount(position string) (int, int, error) {
	libMu.Lock()
	defer libMu.Unlock()
	game, err := load(position)
	if err != nil {
		return 0, 0, err
	}
	board := game.Position().Board()
	white, black := 0, 0
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			p := board.Piece(nchess.NewSquare(file, rank))
			if p.Type() != nchess.King {
				continue
			}
			if p.Color() == nchess.White {
				white++
			} else {
				black++
			}
		}
	}
	return white, black, nil
}

func load(position string) (*nchess.Game, error) {
	opt, err := nchess.FEN(strings.TrimSpace(position))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return nchess.NewGame(opt), nil
}

func replay(initial string, history []string) (*nchess.Game, error) {
	game, err := load(initial)
	if err != nil {
		return nil, err
	}
	for i, san := range history {
		if err := game.PushNotationMove(san, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: replay ply %d (%s): %v", ErrIllegalMove, i+1, san, err)
		}
	}
	return game, nil
}

func statusOf(game *nchess.Game, lastSAN string) (Status, error) {
	st := Status{
		Outcome:   string(game.Outcome()),
		Method:    methodName(game.Method()),
		Checkmate: game.Method() == nchess.Checkmate,
		GameOver:  game.Outcome() != nchess.NoOutcome,
		Draw:      game.Outcome() == nchess.Draw,
	}
	if st.Checkmate {
		st.Check = true
		return st, nil
	}
	inCheck, err := probeCheck(game.FEN())
	if err != nil {
		inCheck = strings.HasSuffix(lastSAN, "+")
	}
	st.Check = inCheck
	return st, nil
}

func findMove(moves []nchess.Move, src, dst nchess.Square, promo nchess.PieceType) (*nchess.Move, bool) {
	for i := range moves {
		mv := &moves[i]
		if mv.S1() == src && mv.S2() == dst && mv.Promo() == promo {
			return mv, true
		}
	}
	return nil, false
}

func toSquare(sq Square) (nchess.Square, error) {
	v := strings.ToLower(strings.TrimSpace(string(sq)))
	if len(v) != 2 || v[0] < 'a' || v[0] > 'h' || v[1] < '1' || v[1] > '8' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSquare, string(sq))
	}
	return nchess.NewSquare(nchess.File(v[0]-'a'), nchess.Rank(v[1]-'1')), nil
}

func promotionType(p string) (nchess.PieceType, error) {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "":
		return nchess.NoPieceType, nil
	case "q":
		return nchess.Queen, nil
	case "r":
		return nchess.Rook, nil
	case "b":
		return nchess.Bishop, nil
	case "n":
		return nchess.Knight, nil
	}
	return nchess.NoPieceType, fmt.Errorf("%w: promotion %q", ErrIllegalMove, p)
}

func sideOf(c nchess.Color) chessdto.Side {
	if c == nchess.Black {
		return chessdto.SideBlack
	}
	return chessdto.SideWhite
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Resignation:
		return "resignation"
	case nchess.DrawOffer:
		return "draw_offer"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	}
	return ""
}
