package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-duet/pkg/chessdto"
)

func applyUCI(t *testing.T, o Oracle, position string, moves ...string) (string, []string) {
	t.Helper()
	var history []string
	for _, m := range moves {
		from, to, promo, err := ParseUCI(m)
		require.NoError(t, err)
		res, err := o.ApplyMove(position, from, to, promo)
		require.NoError(t, err, "move %s", m)
		position = res.Position
		history = append(history, res.SAN)
	}
	return position, history
}

func TestApplyMovePawnPush(t *testing.T) {
	o := NewStandard()
	res, err := o.ApplyMove(chessdto.StandardStart, "e2", "e4", "")
	require.NoError(t, err)

	fields := strings.Fields(res.Position)
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR", fields[0])
	assert.Equal(t, "b", fields[1])
	assert.Equal(t, "e4", res.SAN)
	assert.Equal(t, "e2e4", res.UCI)
	assert.Equal(t, chessdto.SideBlack, res.Turn)
	assert.False(t, res.Check)
}

func TestApplyMoveRejectsIllegal(t *testing.T) {
	o := NewStandard()
	_, err := o.ApplyMove(chessdto.StandardStart, "e2", "e5", "")
	assert.ErrorIs(t, err, ErrIllegalMove)

	_, err = o.ApplyMove(chessdto.StandardStart, "e7", "e5", "")
	assert.ErrorIs(t, err, ErrIllegalMove, "black cannot move on white's turn")

	_, err = o.ApplyMove(chessdto.StandardStart, "z9", "e5", "")
	assert.ErrorIs(t, err, ErrInvalidSquare)
}

func TestApplyMoveRejectsKingSquare(t *testing.T) {
	o := NewStandard()
	// the black king is en prise on white's turn; taking it is never a move
	_, err := o.ApplyMove("4k3/8/8/8/8/8/4Q3/4K3 w - - 0 1", "e2", "e8", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKingCapture))
}

func TestApplyMovePromotionDefaultsToQueen(t *testing.T) {
	o := NewStandard()
	res, err := o.ApplyMove("8/P7/8/8/8/8/8/k6K w - - 0 1", "a7", "a8", "")
	require.NoError(t, err)
	assert.Equal(t, "a7a8q", res.UCI)
	assert.True(t, strings.HasPrefix(res.SAN, "a8=Q"))

	res, err = o.ApplyMove("8/P7/8/8/8/8/8/k6K w - - 0 1", "a7", "a8", "n")
	require.NoError(t, err)
	assert.Equal(t, "a7a8n", res.UCI)
}

func TestLegalMovesFromSquare(t *testing.T) {
	o := NewStandard()
	got, err := o.LegalMoves(chessdto.StandardStart, "g1")
	require.NoError(t, err)
	assert.Equal(t, []Square{"f3", "h3"}, got)

	got, err = o.LegalMoves(chessdto.StandardStart, "e1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAllMovesSortedAndComplete(t *testing.T) {
	o := NewStandard()
	got, err := o.AllMoves(chessdto.StandardStart)
	require.NoError(t, err)
	require.Len(t, got, 20)
	assert.Equal(t, "a2a3", got[0])
	assert.Contains(t, got, "e2e4")
}

func TestFoolsMateStatus(t *testing.T) {
	o := NewStandard()
	pos, history := applyUCI(t, o, chessdto.StandardStart, "f2f3", "e7e5", "g2g4", "d8h4")

	st, err := o.Status(pos)
	require.NoError(t, err)
	assert.True(t, st.Checkmate)
	assert.True(t, st.GameOver)
	assert.True(t, st.Check)
	assert.False(t, st.Draw)
	assert.Equal(t, "0-1", st.Outcome)
	assert.Equal(t, "checkmate", st.Method)

	st, err = o.Evaluate(chessdto.StandardStart, history)
	require.NoError(t, err)
	assert.True(t, st.Checkmate)

	_, err = o.ApplyMove(pos, "e1", "f2", "")
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestCheckWithoutMate(t *testing.T) {
	o := NewStandard()
	pos, history := applyUCI(t, o, chessdto.StandardStart, "e2e4", "f7f5", "d1h5")
	assert.Equal(t, "Qh5+", history[2])

	st, err := o.Status(pos)
	require.NoError(t, err)
	assert.True(t, st.Check)
	assert.False(t, st.GameOver)
}

func TestStatusProbeOnBarePosition(t *testing.T) {
	o := NewStandard()
	st, err := o.Status("4k3/8/8/8/8/8/4R3/4K3 b - - 0 1")
	require.NoError(t, err)
	assert.True(t, st.Check)
	assert.False(t, st.GameOver)

	st, err = o.Status(chessdto.StandardStart)
	require.NoError(t, err)
	assert.False(t, st.Check)
}

func TestStalemateIsDraw(t *testing.T) {
	o := NewStandard()
	st, err := o.Status("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	require.NoError(t, err)
	assert.True(t, st.Draw)
	assert.True(t, st.GameOver)
	assert.False(t, st.Check)
	assert.Equal(t, "stalemate", st.Method)
}

func TestReplayReproducesPosition(t *testing.T) {
	o := NewStandard()
	pos, history := applyUCI(t, o, chessdto.StandardStart,
		"e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "g8f6", "e1g1", "f8c5")

	replayed, err := o.Replay(chessdto.StandardStart, history)
	require.NoError(t, err)
	assert.Equal(t, pos, replayed)

	_, err = o.Replay(chessdto.StandardStart, []string{"e4", "e4"})
	assert.ErrorIs(t, err, ErrIllegalMove)
}

func TestKingsSurviveAndTurnAlternates(t *testing.T) {
	o := NewStandard()
	pos := chessdto.StandardStart
	prev := chessdto.SideWhite
	// deterministic walk: always the first legal move in sorted order
	for ply := 0; ply < 60; ply++ {
		moves, err := o.AllMoves(pos)
		require.NoError(t, err)
		if len(moves) == 0 {
			break
		}
		from, to, promo, err := ParseUCI(moves[0])
		require.NoError(t, err)
		res, err := o.ApplyMove(pos, from, to, promo)
		if errors.Is(err, ErrGameOver) {
			break
		}
		require.NoError(t, err)
		assert.NotEqual(t, prev, res.Turn)
		prev = res.Turn
		pos = res.Position

		w, b, err := o.KingCount(pos)
		require.NoError(t, err)
		assert.Equal(t, 1, w)
		assert.Equal(t, 1, b)

		st, err := o.Status(pos)
		require.NoError(t, err)
		if st.GameOver {
			break
		}
	}
}

func TestFromNotationRejectsGarbage(t *testing.T) {
	o := NewStandard()
	_, err := o.FromNotation("not a fen")
	assert.ErrorIs(t, err, ErrInvalidPosition)

	side, err := o.SideToMove(chessdto.StandardStart)
	require.NoError(t, err)
	assert.Equal(t, chessdto.SideWhite, side)
}

func TestParseAndFindUCI(t *testing.T) {
	from, to, promo, err := ParseUCI(" E7E8Q ")
	require.NoError(t, err)
	assert.Equal(t, Square("e7"), from)
	assert.Equal(t, Square("e8"), to)
	assert.Equal(t, "q", promo)

	_, _, _, err = ParseUCI("Nf3")
	assert.ErrorIs(t, err, ErrIllegalMove)

	mv, ok := FindUCI("Best move: `g1f3`.")
	assert.True(t, ok)
	assert.Equal(t, "g1f3", mv)

	_, ok = FindUCI("I resign")
	assert.False(t, ok)
}

func TestConcurrentCallsStayConsistent(t *testing.T) {
	o := NewStandard()
	const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	positions := []string{chessdto.StandardStart, afterE4}
	want := make([][]string, len(positions))
	for i, p := range positions {
		moves, err := o.AllMoves(p)
		require.NoError(t, err)
		want[i] = moves
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := 0; g < 32; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				i := (g + n) % len(positions)
				got, err := o.AllMoves(positions[i])
				if err != nil {
					errs <- err
					return
				}
				if strings.Join(got, ",") != strings.Join(want[i], ",") {
					errs <- fmt.Errorf("position %d: got %v", i, got)
					return
				}
				if _, err := o.ApplyMove(positions[i], "g1", "f3", ""); i == 0 && err != nil {
					errs <- err
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
