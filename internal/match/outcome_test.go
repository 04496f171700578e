package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/pkg/chessdto"
)

func playDoc(t *testing.T, oracle rules.Oracle, moves ...string) *chessdto.GameSession {
	t.Helper()
	doc := NewDocument(chessdto.ModePvP, "alice", "bob", "", "")
	for _, mv := range moves {
		from, to, promo, err := rules.ParseUCI(mv)
		require.NoError(t, err)
		applied, err := oracle.ApplyMove(doc.Position, from, to, promo)
		require.NoError(t, err)
		doc.Position, doc.Turn = applied.Position, applied.Turn
		doc.MoveHistory = append(doc.MoveHistory, applied.SAN)
	}
	return doc
}

func TestDetectorCheckIsEdgeTriggered(t *testing.T) {
	oracle := rules.NewStandard()
	d := NewDetector(oracle)

	checked := playDoc(t, oracle, "e2e4", "f7f5", "d1h5")
	v := d.Observe(checked)
	require.NoError(t, v.Err)
	assert.False(t, v.Over)
	assert.Equal(t, chessdto.SideBlack, v.CheckSide)

	v = d.Observe(checked)
	assert.Empty(t, v.CheckSide)

	v = d.Observe(playDoc(t, oracle, "e2e4", "f7f5", "d1h5", "g7g6"))
	assert.Empty(t, v.CheckSide)
	assert.False(t, v.Over)

	v = d.Observe(checked)
	assert.Equal(t, chessdto.SideBlack, v.CheckSide)
}

func TestDetectorTerminalFiresOnce(t *testing.T) {
	oracle := rules.NewStandard()
	d := NewDetector(oracle)
	mated := playDoc(t, oracle, "f2f3", "e7e5", "g2g4", "d8h4")

	v := d.Observe(mated)
	require.NoError(t, v.Err)
	assert.True(t, v.Over)
	assert.True(t, v.Terminal)
	assert.Equal(t, "0-1", v.Outcome)
	assert.Equal(t, "checkmate", v.Method)
	assert.Empty(t, v.CheckSide)
	assert.True(t, d.Fired())

	v = d.Observe(mated)
	assert.True(t, v.Over)
	assert.False(t, v.Terminal)

	d.Reset()
	assert.True(t, d.Observe(mated).Terminal)
}

func TestDetectorSeedSuppressesKnownState(t *testing.T) {
	oracle := rules.NewStandard()

	done := playDoc(t, oracle, "f2f3", "e7e5", "g2g4", "d8h4")
	done.Status, done.Outcome, done.Method = chessdto.StatusComplete, "0-1", "checkmate"
	d := NewDetector(oracle)
	d.Seed(done)
	assert.False(t, d.Observe(done).Terminal)

	checked := playDoc(t, oracle, "e2e4", "f7f5", "d1h5")
	d = NewDetector(oracle)
	d.Seed(checked)
	assert.Empty(t, d.Observe(checked).CheckSide)
}

func TestDetectorHonorsStoredCompletion(t *testing.T) {
	oracle := rules.NewStandard()
	resigned := playDoc(t, oracle, "e2e4")
	resigned.Status, resigned.Outcome, resigned.Method = chessdto.StatusComplete, "1-0", "resignation"

	v := NewDetector(oracle).Observe(resigned)
	assert.True(t, v.Terminal)
	assert.Equal(t, "1-0", v.Outcome)
	assert.Equal(t, "resignation", v.Method)
}

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, "100ms", backoffDuration(0).String())
	assert.Equal(t, "100ms", backoffDuration(1).String())
	assert.Equal(t, "400ms", backoffDuration(3).String())
	assert.Equal(t, "3.2s", backoffDuration(6).String())
	assert.Equal(t, "3.2s", backoffDuration(9).String())
}
