package uci

import (
	"strings"
	"testing"
	"time"
)

func TestBuildGoTokens(t *testing.T) {
	got, err := buildGoTokens(Limits{Depth: 8, MoveTimeMillis: 300})
	if err != nil {
		t.Fatalf("buildGoTokens: %v", err)
	}
	if strings.Join(got, " ") != "go depth 8 movetime 300" {
		t.Fatalf("unexpected tokens: %v", got)
	}
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("expected error without limits")
	}
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand(""); got != "position startpos\n" {
		t.Fatalf("got %q", got)
	}
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	if got := buildPositionCommand(fen); got != "position fen "+fen+"\n" {
		t.Fatalf("got %q", got)
	}
}

func TestParseInfo(t *testing.T) {
	depth, cp, ok := parseInfo("info depth 12 seldepth 18 multipv 1 score cp -35 nodes 1000 pv e7e5 g1f3")
	if !ok || depth != 12 || cp != -35 {
		t.Fatalf("got depth=%d cp=%d ok=%v", depth, cp, ok)
	}
	_, cp, ok = parseInfo("info depth 5 score mate -2 pv h7h6")
	if !ok || cp != -30000 {
		t.Fatalf("mate score not clamped: %d", cp)
	}
	if _, _, ok := parseInfo("info string NNUE enabled"); ok {
		t.Fatalf("info string must not parse as a score")
	}
}

func TestComputeSearchTimeout(t *testing.T) {
	if got := computeSearchTimeout(Limits{MoveTimeMillis: 500}); got != 2500*time.Millisecond {
		t.Fatalf("movetime timeout = %v", got)
	}
	if got := computeSearchTimeout(Limits{Depth: 2}); got != 6*time.Second {
		t.Fatalf("depth floor = %v", got)
	}
	if got := computeSearchTimeout(Limits{Depth: 100}); got != 20*time.Second {
		t.Fatalf("depth cap = %v", got)
	}
}

func TestValidateOptionsAndCommands(t *testing.T) {
	if err := validateOptions(Options{SkillLevel: 21, HashMB: 16}); err == nil {
		t.Fatalf("expected skill range error")
	}
	cmds := optionCommands(Options{SkillLevel: 5, HashMB: 16})
	for _, c := range cmds {
		if strings.Contains(c, "UCI_Elo") {
			t.Fatalf("elo must be omitted when zero")
		}
	}
	cmds = optionCommands(Options{SkillLevel: 5, HashMB: 16, Elo: 1400})
	if !strings.Contains(strings.Join(cmds, ""), "UCI_Elo value 1400") {
		t.Fatalf("elo option missing: %v", cmds)
	}
}

func TestNewPoolRequiresBinary(t *testing.T) {
	if _, err := NewPool(PoolConfig{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := NewPool(PoolConfig{BinaryPath: "/nonexistent/stockfish"}); err == nil {
		t.Fatalf("expected error for missing binary")
	}
}
