package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/park285/chess-duet/pkg/chessdto"
)

func TestBuildPGN(t *testing.T) {
	doc := &chessdto.GameSession{
		ID:           "g1",
		Participants: chessdto.Participants{Player1ID: "alice", Player2ID: `b"ob`},
		Mode:         chessdto.ModePvP,
		Status:       chessdto.StatusComplete,
		MoveHistory:  []string{"f3", "e5", "g4", "Qh4#"},
		Outcome:      "0-1",
		Method:       "Checkmate",
		UpdatedAt:    time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	}
	pgn := BuildPGN(doc)
	for _, want := range []string{
		`[Date "2026.03.04"]`,
		`[White "alice"]`,
		`[Black "b'ob"]`,
		`[Termination "checkmate"]`,
		`[Result "0-1"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if strings.Contains(pgn, "[FEN") {
		t.Fatalf("standard start must not emit FEN header")
	}
}

func TestBuildPGNCustomStartAndAI(t *testing.T) {
	doc := &chessdto.GameSession{
		InitialPosition: "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1",
		Participants:    chessdto.Participants{Player1ID: "alice"},
		Mode:            chessdto.ModeAI,
		Difficulty:      chessdto.DifficultyHard,
		MoveHistory:     []string{"e4"},
	}
	pgn := BuildPGN(doc)
	if !strings.Contains(pgn, `[Black "AI (hard)"]`) || !strings.Contains(pgn, `[SetUp "1"]`) {
		t.Fatalf("unexpected headers:\n%s", pgn)
	}
	if !strings.HasSuffix(pgn, "1. e4 *") {
		t.Fatalf("unexpected movetext:\n%s", pgn)
	}
}

func TestNormalizeResult(t *testing.T) {
	cases := map[string]string{"1-0": "1-0", " 0-1 ": "0-1", "1/2-1/2": "1/2-1/2", "": "*", "white": "*"}
	for in, want := range cases {
		if got := normalizeResult(in); got != want {
			t.Fatalf("normalizeResult(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveResultNilRepository(t *testing.T) {
	var r *Repository
	if err := r.SaveResult(context.Background(), &chessdto.GameSession{Status: chessdto.StatusComplete}); err != nil {
		t.Fatalf("nil repository must be a no-op: %v", err)
	}
	if _, err := NewRepository("  "); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
